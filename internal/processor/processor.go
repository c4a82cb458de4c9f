package processor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"subforge-go/internal/aggregator"
	"subforge-go/internal/audio"
	"subforge-go/internal/batch"
	"subforge-go/internal/config"
	"subforge-go/internal/extractor"
	"subforge-go/internal/glossary"
	"subforge-go/internal/metrics"
	"subforge-go/internal/pipeline"
	"subforge-go/internal/retry"
	"subforge-go/internal/scheduler"
	"subforge-go/internal/types"
)

// ErrInvalidRequest marks regeneration requests rejected before any work starts.
var ErrInvalidRequest = errors.New("invalid regeneration request")

// PartialError reports chunks that contributed no items. The accompanying Result still
// carries every item the other chunks produced.
type PartialError struct {
	Failed []int
	Err    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%d chunk(s) failed %v: %v", len(e.Failed), e.Failed, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

type Result struct {
	RunID   string               `json:"run_id"`
	Items   []types.SubtitleItem `json:"items"`
	Summary aggregator.Summary   `json:"summary"`
}

// Request selects what a regeneration run touches. Comments are keyed by batch index.
type Request struct {
	Mode     types.Mode     `json:"mode" yaml:"mode"`
	Batches  []int          `json:"batches" yaml:"batches"`
	Comments map[int]string `json:"comments,omitempty" yaml:"comments"`
}

// Hooks are optional observers of a run.
type Hooks struct {
	Progress types.ProgressFunc
	Snapshot types.SnapshotFunc
}

type Deps struct {
	Transcriber     pipeline.Transcriber
	Generator       extractor.Generator
	SpeechTransient func(error) bool
	ModelTransient  func(error) bool
	Glossary        glossary.Glossary
	Log             *logrus.Entry
	Metrics         *metrics.Metrics
}

// Processor orchestrates generation and regeneration runs. It holds no per-run state and
// can serve concurrent runs.
type Processor struct {
	cfg  *config.Config
	deps Deps
	log  *logrus.Entry
}

func New(cfg *config.Config, deps Deps) *Processor {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{cfg: cfg, deps: deps, log: log}
}

func (p *Processor) policy(transient func(error) bool) retry.Policy {
	return retry.Policy{
		MaxRetries:  p.cfg.Retry.MaxRetries,
		BaseDelay:   p.cfg.Retry.BaseDelay(),
		MaxJitter:   p.cfg.Retry.MaxJitter(),
		IsTransient: transient,
	}
}

// Generate transcribes, refines and translates src chunk by chunk. Failed chunks
// contribute nothing; when any fail the error is a *PartialError and the Result holds
// the items of the chunks that succeeded, in chunk order.
func (p *Processor) Generate(ctx context.Context, src audio.Source, hooks Hooks) (Result, error) {
	runID := uuid.NewString()
	log := p.log.WithFields(logrus.Fields{"run_id": runID, "op": "generate"})
	res := Result{RunID: runID}
	if p.deps.Transcriber == nil || p.deps.Generator == nil {
		return res, errors.New("generate requires a transcriber and a generator")
	}

	chunks := audio.Segment(src.Duration(), p.cfg.Generation.ChunkSeconds)
	tracker := aggregator.NewTracker("generate", hooks.Progress)
	pl := pipeline.New(src, p.deps.Transcriber, p.deps.Generator, pipeline.Config{
		Model:              p.cfg.Gemini.Model,
		TargetLanguage:     p.cfg.TargetLanguage,
		TranslateBatchSize: p.cfg.Generation.TranslateBatchSize,
		MaxAttempts:        p.cfg.Continuation.MaxAttempts,
		ModelRetry:         p.policy(p.deps.ModelTransient),
		SpeechRetry:        p.policy(p.deps.SpeechTransient),
		Glossary:           p.deps.Glossary,
	}, log, p.deps.Metrics, tracker.Observe)

	log.WithFields(logrus.Fields{
		"duration_sec": src.Duration(),
		"chunks":       len(chunks),
		"concurrency":  p.cfg.Generation.Concurrency,
	}).Info("generation started")

	table := newSlotTable(len(chunks))
	var (
		mu     sync.Mutex
		failed []int
	)
	_, runErr := scheduler.Run(ctx, len(chunks), p.cfg.Generation.Concurrency, func(ctx context.Context, i int) (struct{}, error) {
		items, err := pl.Run(ctx, chunks[i], len(chunks))
		if err != nil {
			if ctx.Err() == nil {
				p.deps.Metrics.ChunkDone(false)
				mu.Lock()
				failed = append(failed, i)
				mu.Unlock()
			}
			return struct{}{}, err
		}
		p.deps.Metrics.ChunkDone(true)
		table.fill(i, items, nil, hooks.Snapshot)
		return struct{}{}, nil
	})

	res.Items = table.flatten()
	res.Summary = tracker.Summary(len(res.Items))
	log = log.WithFields(logrus.Fields{"items": len(res.Items), "elapsed": res.Summary.Elapsed.String()})

	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("generation cancelled, returning completed chunks")
		return res, err
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		log.WithField("failed", failed).Warn("generation finished with failed chunks")
		return res, &PartialError{Failed: failed, Err: runErr}
	}
	log.Info("generation finished")
	return res, nil
}

// Regenerate reprocesses the selected batches of items. Groups whose request fails keep
// their original items; the run itself only fails for an invalid request or cancellation.
// src may be nil, in which case audio-backed modes work from text alone.
func (p *Processor) Regenerate(ctx context.Context, items []types.SubtitleItem, req Request, src audio.Source, hooks Hooks) (Result, error) {
	runID := uuid.NewString()
	log := p.log.WithFields(logrus.Fields{"run_id": runID, "op": "regenerate", "mode": string(req.Mode)})
	res := Result{RunID: runID, Items: types.Renumber(items)}

	mode, ok := types.ParseMode(string(req.Mode))
	if !ok {
		return res, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if p.deps.Generator == nil {
		return res, errors.New("regenerate requires a generator")
	}

	batches := batch.Partition(res.Items, p.cfg.Regeneration.BatchSize)
	groups, err := batch.GroupBatches(batches, req.Batches, req.Comments)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	limit := p.cfg.Regeneration.Concurrency
	if mode == types.ModeProofread {
		limit = p.cfg.Regeneration.ProofreadConcurrency
	}
	if src == nil && mode != types.ModeRetranslate {
		log.Warn("no media given, regenerating from text only")
	}

	tracker := aggregator.NewTracker(string(mode), hooks.Progress)
	bp := batch.NewProcessor(p.deps.Generator, batch.Config{
		Model:          p.cfg.Gemini.Model,
		ProofreadModel: p.cfg.Gemini.ProofreadModel,
		TargetLanguage: p.cfg.TargetLanguage,
		MaxAttempts:    p.cfg.Continuation.MaxAttempts,
		Retry:          p.policy(p.deps.ModelTransient),
		Glossary:       p.deps.Glossary,
	}, log, p.deps.Metrics)

	table := newSlotTable(len(batches))
	for i, b := range batches {
		table.slots[i] = b
	}

	log.WithFields(logrus.Fields{
		"items":       len(res.Items),
		"batches":     len(batches),
		"groups":      len(groups),
		"concurrency": limit,
	}).Info("regeneration started")

	_, _ = scheduler.Run(ctx, len(groups), limit, func(ctx context.Context, i int) (struct{}, error) {
		g := groups[i]
		id := fmt.Sprintf("group-%d", i+1)
		tracker.Observe(types.ProgressUpdate{ID: id, Total: len(groups), Status: types.StatusProcessing, Stage: string(mode)})

		out, err := bp.Process(ctx, g, mode, src)
		if err != nil {
			tracker.Observe(types.ProgressUpdate{ID: id, Total: len(groups), Status: types.StatusError, Message: err.Error()})
		} else {
			tracker.Observe(types.ProgressUpdate{ID: id, Total: len(groups), Status: types.StatusCompleted})
		}
		table.fill(g.Batches[0], out, g.Batches[1:], hooks.Snapshot)
		return struct{}{}, nil
	})

	res.Items = table.flatten()
	res.Summary = tracker.Summary(len(res.Items))
	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("regeneration cancelled, returning applied groups")
		return res, err
	}
	log.WithFields(logrus.Fields{
		"items":  len(res.Items),
		"kept":   len(res.Summary.Failed),
		"groups": len(groups),
	}).Info("regeneration finished")
	return res, nil
}
