// Package poller evaluates a fixed set of watch locations on a cron schedule.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/forecast"
)

const DefaultSchedule = "0 */3 * * *"

type Evaluator interface {
	Evaluate(ctx context.Context, req advisor.Request) (*advisor.Evaluation, error)
}

type Poller struct {
	evaluator Evaluator
	watches   []Watch
	schedule  string
	timeout   time.Duration
}

// New returns a Poller for cfg. An empty cfg.Schedule uses DefaultSchedule.
func New(evaluator Evaluator, cfg *Config) *Poller {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Poller{
		evaluator: evaluator,
		watches:   cfg.Locations,
		schedule:  schedule,
		timeout:   time.Minute,
	}
}

// Run evaluates every location immediately and then on each schedule tick
// until ctx is cancelled. Overlapping ticks are skipped.
func (p *Poller) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(p.schedule, func() {
		if err := p.RunOnce(ctx); err != nil {
			log.Printf("poller: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("parse schedule %q: %w", p.schedule, err)
	}

	if err := p.RunOnce(ctx); err != nil {
		log.Printf("poller: %v", err)
	}

	log.Printf("poller: watching %d locations on schedule %q", len(p.watches), p.schedule)
	c.Start()
	<-ctx.Done()
	log.Println("poller: shutting down")
	<-c.Stop().Done()
	return nil
}

// RunOnce evaluates each watch in turn. A failing location does not stop the
// others; all failures are returned together.
func (p *Poller) RunOnce(ctx context.Context) error {
	var errs []error
	for _, w := range p.watches {
		if err := p.check(ctx, w); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Poller) check(ctx context.Context, w Watch) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ev, err := p.evaluator.Evaluate(ctx, w.Request())
	if err != nil {
		return err
	}

	next, ok := ev.NextWindow()
	if !ok {
		log.Printf("poller: %s: no windows in the next %d days", w.Name, len(ev.VisibleDays))
		return nil
	}
	log.Printf("poller: %s: next window %s (%d admissible hours)", w.Name, forecast.FormatPeriod(next), ev.AdmissibleHours())
	return nil
}
