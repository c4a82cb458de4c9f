package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"subforge-go/internal/audio"
	"subforge-go/internal/extractor"
	"subforge-go/internal/glossary"
	"subforge-go/internal/metrics"
	"subforge-go/internal/retry"
	"subforge-go/internal/types"
)

const (
	StageSlice      = "slice"
	StageTranscribe = "transcribe"
	StageRefine     = "refine"
	StageTranslate  = "translate"

	// minimum duration given to a segment whose end does not follow its start
	minCueSeconds = 0.5
)

// Transcriber turns a WAV slice into chunk-relative segments.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) ([]types.Segment, error)
}

// StageError is a fatal failure of one chunk.
type StageError struct {
	Chunk int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("chunk %d %s: %v", e.Chunk, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Config struct {
	Model              string
	TargetLanguage     string
	TranslateBatchSize int
	MaxAttempts        int
	// ModelRetry applies to generative calls, SpeechRetry to transcription.
	ModelRetry  retry.Policy
	SpeechRetry retry.Policy
	Glossary    glossary.Glossary
}

// ChunkPipeline turns one time window of audio into absolute-timestamped subtitle items.
type ChunkPipeline struct {
	audio    audio.Source
	stt      Transcriber
	gen      extractor.Generator
	cfg      Config
	log      *logrus.Entry
	metrics  *metrics.Metrics
	progress types.ProgressFunc
}

func New(src audio.Source, stt Transcriber, gen extractor.Generator, cfg Config, log *logrus.Entry, m *metrics.Metrics, progress types.ProgressFunc) *ChunkPipeline {
	if cfg.TranslateBatchSize <= 0 {
		cfg.TranslateBatchSize = 20
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ChunkPipeline{audio: src, stt: stt, gen: gen, cfg: cfg, log: log, metrics: m, progress: progress}
}

// Run processes one chunk. Only slicing and transcription failures are fatal; refinement
// and translation degrade to the previous stage's text.
func (p *ChunkPipeline) Run(ctx context.Context, chunk types.ChunkDescriptor, total int) ([]types.SubtitleItem, error) {
	id := fmt.Sprintf("chunk-%d", chunk.Index+1)
	log := p.log.WithFields(logrus.Fields{"chunk": chunk.Index, "start": chunk.StartSec, "end": chunk.EndSec})
	emit := func(status types.ProgressStatus, stage, msg string) {
		p.progress.Emit(types.ProgressUpdate{ID: id, Total: total, Status: status, Stage: stage, Message: msg})
	}
	fail := func(stage string, err error) ([]types.SubtitleItem, error) {
		p.metrics.StageFailed(stage)
		emit(types.StatusError, stage, err.Error())
		log.WithField("stage", stage).WithError(err).Error("chunk failed")
		return nil, &StageError{Chunk: chunk.Index, Stage: stage, Err: err}
	}

	wav, err := p.audio.Slice(chunk.StartSec, chunk.EndSec)
	if err != nil {
		return fail(StageSlice, err)
	}

	emit(types.StatusProcessing, StageTranscribe, "")
	t0 := time.Now()
	raw, err := retry.Do(ctx, p.cfg.SpeechRetry.Observed(StageTranscribe, log, p.metrics), func(ctx context.Context) ([]types.Segment, error) {
		return p.stt.Transcribe(ctx, wav)
	})
	p.metrics.ObserveStage(StageTranscribe, time.Since(t0).Seconds())
	if err != nil {
		return fail(StageTranscribe, err)
	}
	raw = dropEmpty(raw)
	if len(raw) == 0 {
		log.Info("no speech in chunk")
		emit(types.StatusCompleted, "", "no speech")
		return nil, nil
	}

	emit(types.StatusProcessing, StageRefine, "")
	segs := p.refine(ctx, log, wav, raw)

	emit(types.StatusProcessing, StageTranslate, "")
	translated := p.translate(ctx, log, segs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := buildItems(chunk, segs, translated)
	log.WithFields(logrus.Fields{"raw": len(raw), "items": len(items)}).Info("chunk completed")
	emit(types.StatusCompleted, "", fmt.Sprintf("%d items", len(items)))
	return items, nil
}

type refinedSegment struct {
	Start types.Timestamp `json:"start"`
	End   types.Timestamp `json:"end"`
	Text  string          `json:"text"`
}

func (p *ChunkPipeline) refine(ctx context.Context, log *logrus.Entry, wav []byte, raw []types.Segment) []types.Segment {
	t0 := time.Now()
	defer func() { p.metrics.ObserveStage(StageRefine, time.Since(t0).Seconds()) }()

	fallback := func(err error) []types.Segment {
		p.metrics.StageFailed(StageRefine)
		log.WithError(err).Warn("refinement failed, keeping raw segments")
		return raw
	}

	req, err := refineRequest(p.cfg.Model, wav, raw)
	if err != nil {
		return fallback(err)
	}
	text, err := extractor.Continue(ctx, p.gen, req, p.continueOpts(StageRefine, log))
	if err != nil {
		return fallback(err)
	}
	decoded, err := extractor.DecodeArray[refinedSegment](text)
	if err != nil {
		return fallback(err)
	}
	out := make([]types.Segment, 0, len(decoded))
	for _, s := range decoded {
		out = append(out, types.Segment{Start: float64(s.Start), End: float64(s.End), Text: s.Text})
	}
	out = dropEmpty(out)
	if len(out) == 0 {
		return fallback(fmt.Errorf("refinement returned no segments"))
	}
	return out
}

type translation struct {
	ID         int    `json:"id"`
	Translated string `json:"text_translated"`
}

// translate returns one translation per segment. Missing ids and failed sub-batches fall
// back to the original text.
func (p *ChunkPipeline) translate(ctx context.Context, log *logrus.Entry, segs []types.Segment) []string {
	t0 := time.Now()
	defer func() { p.metrics.ObserveStage(StageTranslate, time.Since(t0).Seconds()) }()

	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Text
	}

	size := p.cfg.TranslateBatchSize
	for from := 0; from < len(segs); from += size {
		to := min(from+size, len(segs))
		batch := make([]translateInput, 0, to-from)
		for i := from; i < to; i++ {
			batch = append(batch, translateInput{ID: i + 1, Original: segs[i].Text})
		}
		blog := log.WithField("batch", fmt.Sprintf("%d-%d", from+1, to))

		got, err := p.translateBatch(ctx, blog, batch)
		if err != nil {
			p.metrics.StageFailed(StageTranslate)
			blog.WithError(err).Warn("translation batch failed, keeping original text")
			continue
		}
		missing := 0
		for i := from; i < to; i++ {
			if t, ok := got[i+1]; ok {
				out[i] = t
			} else {
				missing++
			}
		}
		if missing > 0 {
			blog.WithField("missing", missing).Warn("translation missing ids, keeping original text")
		}
	}
	return out
}

func (p *ChunkPipeline) translateBatch(ctx context.Context, log *logrus.Entry, batch []translateInput) (map[int]string, error) {
	req, err := translateRequest(p.cfg.Model, p.cfg.TargetLanguage, p.cfg.Glossary, batch)
	if err != nil {
		return nil, err
	}
	text, err := extractor.Continue(ctx, p.gen, req, p.continueOpts(StageTranslate, log))
	if err != nil {
		return nil, err
	}
	decoded, err := extractor.DecodeArray[translation](text)
	if err != nil {
		return nil, err
	}
	got := make(map[int]string, len(decoded))
	for _, t := range decoded {
		if s := strings.TrimSpace(t.Translated); s != "" {
			got[t.ID] = s
		}
	}
	return got, nil
}

func (p *ChunkPipeline) continueOpts(op string, log *logrus.Entry) extractor.Options {
	return extractor.Options{
		MaxAttempts: p.cfg.MaxAttempts,
		Retry:       p.cfg.ModelRetry,
		Op:          op,
		Log:         log,
		Metrics:     p.metrics,
	}
}

func roundMS(sec float64) float64 { return math.Round(sec*1000) / 1000 }

func dropEmpty(segs []types.Segment) []types.Segment {
	out := segs[:0:0]
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text != "" {
			out = append(out, s)
		}
	}
	return out
}

// buildItems shifts chunk-relative segments to absolute time and guarantees start < end.
func buildItems(chunk types.ChunkDescriptor, segs []types.Segment, translated []string) []types.SubtitleItem {
	items := make([]types.SubtitleItem, 0, len(segs))
	for i, s := range segs {
		start := roundMS(chunk.StartSec + max(s.Start, 0))
		end := roundMS(chunk.StartSec + s.End)
		if end <= start {
			end = start + minCueSeconds
			if limit := roundMS(chunk.EndSec); start < limit && end > limit {
				end = limit
			}
		}
		items = append(items, types.SubtitleItem{
			ID:         i + 1,
			StartTime:  types.FormatTimestamp(start),
			EndTime:    types.FormatTimestamp(end),
			Original:   s.Text,
			Translated: translated[i],
		})
	}
	return items
}
