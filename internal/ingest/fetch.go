package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/lox/openwindow/internal/httputil"
	"github.com/lox/openwindow/internal/metrics"
)

// FetchResult describes one provider call, for the ingest_runs audit table.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
	QualityFlags []string
	Duration     time.Duration
	Error        error
}

// StatusError is a non-200 response from a provider.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Option func(*options)

type options struct {
	client      *http.Client
	newBackOff  func() backoff.BackOff
	minInterval time.Duration
}

// WithHTTPClient replaces the default client (30s timeout, User-Agent set).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithBackOff sets the retry policy used for each request.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(o *options) { o.newBackOff = fn }
}

// WithMinInterval sets the minimum gap between geocoding requests.
func WithMinInterval(d time.Duration) Option {
	return func(o *options) { o.minInterval = d }
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return bo
}

func buildOptions(timeout time.Duration, userAgent string, opts []Option) options {
	o := options{newBackOff: defaultBackOff, minInterval: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = httputil.NewClient(timeout, userAgent)
	}
	return o
}

// fetcher performs GETs against one provider with retries and a circuit breaker.
type fetcher struct {
	provider   string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	newBackOff func() backoff.BackOff
}

func newFetcher(provider string, o options) *fetcher {
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("ingest: %s circuit breaker %s -> %s", name, from, to)
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return &fetcher{
		provider:   provider,
		client:     o.client,
		breaker:    cb,
		newBackOff: o.newBackOff,
	}
}

// get fetches url and returns the body of a 200 response. Network errors,
// 429 and 5xx are retried; an open breaker or any other status is final.
func (f *fetcher) get(ctx context.Context, url string, result *FetchResult) ([]byte, error) {
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		metrics.ProviderLatency.WithLabelValues(f.provider).Observe(result.Duration.Seconds())
	}()

	var body []byte
	operation := func() error {
		b, err := f.breaker.Execute(func() ([]byte, error) {
			return f.do(ctx, url, result)
		})
		if err != nil {
			metrics.ProviderCallsTotal.WithLabelValues(f.provider, statusLabel(result.HTTPStatus, err)).Inc()
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%s: %w", f.provider, err))
			}
			var se *StatusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		metrics.ProviderCallsTotal.WithLabelValues(f.provider, "ok").Inc()
		body = b
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(f.newBackOff(), ctx)); err != nil {
		result.Error = err
		return nil, err
	}
	return body, nil
}

func (f *fetcher) do(ctx context.Context, url string, result *FetchResult) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", f.provider, err)
	}
	req.Header.Set("Accept", "application/json")

	result.HTTPStatus = 0
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.provider, err)
	}
	defer resp.Body.Close()

	result.HTTPStatus = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", f.provider, err)
	}
	result.ResponseSize = len(body)

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: f.provider, Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func statusLabel(status int, err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case status == 0:
		return "network_error"
	default:
		return fmt.Sprintf("http_%d", status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
