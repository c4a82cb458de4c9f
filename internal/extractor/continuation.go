package extractor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"subforge-go/internal/metrics"
	"subforge-go/internal/retry"
	"subforge-go/internal/types"
)

// ContinuePrompt is sent after a truncated response.
const ContinuePrompt = "Your previous response was cut off. Continue exactly where you left off. " +
	"Do not repeat the last complete element and do not restart the array. Output only the remaining JSON."

// Generator is the model adapter used for JSON-array producing calls.
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (string, error)
}

type Options struct {
	MaxAttempts int
	Retry       retry.Policy
	// Op labels retries in logs and metrics.
	Op      string
	Log     *logrus.Entry
	Metrics *metrics.Metrics
}

// Continue calls gen and, while the accumulated text looks truncated, asks the model to
// continue the same conversation. At most MaxAttempts calls are made; the accumulated
// text is returned as-is when it still does not parse.
func Continue(ctx context.Context, gen Generator, req types.GenerateRequest, opts Options) (string, error) {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	policy := opts.Retry.Observed(opts.Op, log, opts.Metrics)

	var acc string
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
			return gen.Generate(ctx, req)
		})
		if err != nil {
			return acc, fmt.Errorf("%s attempt %d: %w", opts.Op, attempt, err)
		}
		acc += text

		res := ParseJSONArray(acc)
		if res.Outcome != Truncated {
			return acc, nil
		}
		if attempt == attempts {
			log.WithField("attempts", attempts).Warn("output still truncated, giving up on continuation")
			break
		}

		log.WithFields(logrus.Fields{"attempt": attempt, "chars": len(acc)}).Info("output truncated, continuing")
		opts.Metrics.Continued()
		req = req.WithTurns(
			types.Message{Role: types.RoleModel, Parts: []types.Part{types.TextPart(text)}},
			types.Message{Role: types.RoleUser, Parts: []types.Part{types.TextPart(ContinuePrompt)}},
		)
	}
	return acc, nil
}
