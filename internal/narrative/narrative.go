// Package narrative describes an evaluation in a sentence, optionally
// rephrased by an LLM.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/forecast"
	"github.com/lox/openwindow/internal/models"
)

// Summary is the deterministic description of ev's upcoming windows.
func Summary(ev *advisor.Evaluation) string {
	upcoming := upcomingWindows(ev)
	if len(upcoming) == 0 {
		return "No good times to open windows in the forecast period."
	}

	best := upcoming[0]
	days := make(map[string]bool)
	for _, iv := range upcoming {
		if iv.End.Sub(iv.Start) > best.End.Sub(best.Start) {
			best = iv
		}
		days[forecast.DayKey(iv.Start)] = true
	}

	return fmt.Sprintf("Best window: %s; %s over %s.",
		forecast.FormatPeriod(best),
		plural(len(upcoming), "window"),
		plural(len(days), "day"))
}

func upcomingWindows(ev *advisor.Evaluation) []models.Interval {
	var out []models.Interval
	for _, iv := range ev.Result.Intervals {
		if iv.End.After(ev.EvaluatedAt) {
			out = append(out, iv)
		}
	}
	return out
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Writer rephrases summaries with OpenAI's chat API.
type Writer struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewWriter returns a Writer, or an error when apiKey is empty.
func NewWriter(apiKey string, opts ...option.RequestOption) (*Writer, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Writer{
		client:  openai.NewClient(opts...),
		model:   openai.ChatModelGPT4_1Mini,
		timeout: 10 * time.Second,
	}, nil
}

const systemPrompt = `You help people decide when to open their windows. Rewrite the given summary as one short, friendly sentence. Keep every day and time exactly as given and do not add facts.`

// Describe returns an LLM rephrasing of Summary(ev). On any failure, or when
// w is nil, it returns the plain summary.
func (w *Writer) Describe(ctx context.Context, ev *advisor.Evaluation) string {
	summary := Summary(ev)
	if w == nil {
		return summary
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: w.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt(ev, summary)),
		},
		MaxCompletionTokens: openai.Int(120),
	})
	if err != nil {
		log.Printf("narrative: completion failed: %v", err)
		return summary
	}
	if len(resp.Choices) == 0 {
		log.Printf("narrative: no choices returned")
		return summary
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return summary
	}
	return text
}

func prompt(ev *advisor.Evaluation, summary string) string {
	th := ev.Thresholds
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s\n", ev.Address)
	fmt.Fprintf(&b, "Comfort: outdoor %.0f-%.0f°F, indoor humidity %.0f-%.0f%%", th.MinOutdoorTempF, th.MaxOutdoorTempF, th.MinIndoorRH, th.MaxIndoorRH)
	if ev.Result.AQIAvailable {
		fmt.Fprintf(&b, ", AQI at most %d", th.MaxAQI)
	}
	fmt.Fprintf(&b, "\nSummary: %s", summary)
	return b.String()
}
