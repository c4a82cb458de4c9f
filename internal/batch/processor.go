package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"subforge-go/internal/audio"
	"subforge-go/internal/extractor"
	"subforge-go/internal/glossary"
	"subforge-go/internal/metrics"
	"subforge-go/internal/retry"
	"subforge-go/internal/types"
)

// contextPadding is the audio added on each side of a group's span.
const contextPadding = 1.0

type Config struct {
	Model          string
	ProofreadModel string
	TargetLanguage string
	MaxAttempts    int
	Retry          retry.Policy
	Glossary       glossary.Glossary
}

// Processor runs one regeneration request per group.
type Processor struct {
	gen     extractor.Generator
	cfg     Config
	log     *logrus.Entry
	metrics *metrics.Metrics
}

func NewProcessor(gen extractor.Generator, cfg Config, log *logrus.Entry, m *metrics.Metrics) *Processor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{gen: gen, cfg: cfg, log: log, metrics: m}
}

// Process returns the regenerated items for g. On any failure it returns a copy of the
// original items together with the cause, so the result is always safe to write back.
func (p *Processor) Process(ctx context.Context, g types.Group, mode types.Mode, src audio.Source) ([]types.SubtitleItem, error) {
	log := p.log.WithFields(logrus.Fields{"group": label(g), "mode": string(mode)})
	items, err := p.process(ctx, log, g, mode, src)
	if err != nil {
		p.metrics.BatchDone(string(mode), "kept")
		log.WithError(err).Warn("regeneration failed, keeping original items")
		return slices.Clone(g.Items), err
	}
	p.metrics.BatchDone(string(mode), "applied")
	log.WithFields(logrus.Fields{"in": len(g.Items), "out": len(items)}).Info("group regenerated")
	return items, nil
}

// returnedItem accepts numeric or string timestamps.
type returnedItem struct {
	ID         int             `json:"id"`
	Start      types.Timestamp `json:"start"`
	End        types.Timestamp `json:"end"`
	Original   string          `json:"text_original"`
	Translated string          `json:"text_translated"`
}

func (p *Processor) process(ctx context.Context, log *logrus.Entry, g types.Group, mode types.Mode, src audio.Source) ([]types.SubtitleItem, error) {
	if len(g.Items) == 0 {
		return nil, errors.New("empty group")
	}
	prof, err := profileFor(mode)
	if err != nil {
		return nil, err
	}
	spanStart, _, err := g.Items[0].Span()
	if err != nil {
		return nil, err
	}
	_, spanEnd, err := g.Items[len(g.Items)-1].Span()
	if err != nil {
		return nil, err
	}

	var (
		wav     []byte
		padding float64
	)
	if prof.needsAudio && src != nil {
		from := max(spanStart-contextPadding, 0)
		to := min(spanEnd+contextPadding, src.Duration())
		if wav, err = src.Slice(from, to); err != nil {
			return nil, fmt.Errorf("slice audio: %w", err)
		}
		padding = spanStart - from
	}

	req, err := p.request(g, prof, wav, spanStart)
	if err != nil {
		return nil, err
	}
	text, err := extractor.Continue(ctx, p.gen, req, extractor.Options{
		MaxAttempts: p.cfg.MaxAttempts,
		Retry:       p.cfg.Retry,
		Op:          "regenerate_" + string(mode),
		Log:         log,
		Metrics:     p.metrics,
	})
	if err != nil {
		return nil, err
	}
	got, err := extractor.DecodeArray[returnedItem](text)
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return nil, errors.New("model returned no items")
	}

	if padding > 0 {
		switch h := ResolveOffset(float64(got[0].Start), spanStart, padding); h {
		case OffsetRelative:
			log.WithField("padding", padding).Debug("timestamps relative to slice, shifting")
			for i := range got {
				got[i].Start += types.Timestamp(padding)
				got[i].End += types.Timestamp(padding)
			}
		case OffsetAmbiguous:
			log.WithFields(logrus.Fields{"first_start": float64(got[0].Start), "span_start": spanStart, "padding": padding}).
				Warn("timestamp offset ambiguous, treating as absolute")
		}
	}

	return freeze(mode, g.Items, got)
}

func (p *Processor) request(g types.Group, prof profile, wav []byte, spanStart float64) (types.GenerateRequest, error) {
	payload, err := json.Marshal(g.Items)
	if err != nil {
		return types.GenerateRequest{}, err
	}
	var b strings.Builder
	if strings.TrimSpace(g.Instruction) != "" {
		b.WriteString("User instructions:\n")
		b.WriteString(g.Instruction)
		b.WriteString("\n\n")
	}
	if len(wav) > 0 {
		fmt.Fprintf(&b, "The attached audio starts shortly before %s.\n", types.FormatTimestamp(spanStart))
	}
	b.WriteString("Items (a non-empty comment is a user instruction for that item):\n")
	b.Write(payload)

	var parts []types.Part
	if len(wav) > 0 {
		parts = append(parts, types.AudioPart(wav))
	}
	parts = append(parts, types.TextPart(b.String()))

	model := p.cfg.Model
	if prof.proModel && p.cfg.ProofreadModel != "" {
		model = p.cfg.ProofreadModel
	}
	return types.GenerateRequest{
		Model:   model,
		System:  prof.system(p.cfg.TargetLanguage, p.cfg.Glossary),
		Schema:  types.SchemaItems,
		History: []types.Message{{Role: types.RoleUser, Parts: parts}},
	}, nil
}

// freeze re-imposes the mode's untouchable fields from the originals and validates timing.
func freeze(mode types.Mode, originals []types.SubtitleItem, got []returnedItem) ([]types.SubtitleItem, error) {
	byID := make(map[int]types.SubtitleItem, len(originals))
	for _, it := range originals {
		byID[it.ID] = it
	}
	if mode == types.ModeRetime || mode == types.ModeRetranslate {
		if err := sameIDs(mode, byID, got); err != nil {
			return nil, err
		}
	}

	out := make([]types.SubtitleItem, 0, len(got))
	for _, r := range got {
		it := types.SubtitleItem{
			ID:         r.ID,
			StartTime:  types.FormatTimestamp(float64(r.Start)),
			EndTime:    types.FormatTimestamp(float64(r.End)),
			Original:   strings.TrimSpace(r.Original),
			Translated: strings.TrimSpace(r.Translated),
		}
		switch mode {
		case types.ModeRetime:
			orig := byID[r.ID]
			it.Original, it.Translated = orig.Original, orig.Translated
		case types.ModeRetranslate:
			orig := byID[r.ID]
			it.StartTime, it.EndTime, it.Original = orig.StartTime, orig.EndTime, orig.Original
			if it.Translated == "" {
				it.Translated = orig.Translated
			}
		}
		if it.Original == "" {
			return nil, fmt.Errorf("item %d has no text", r.ID)
		}
		start, end, err := it.Span()
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("item %d: end %s not after start %s", r.ID, it.EndTime, it.StartTime)
		}
		out = append(out, it)
	}
	return out, nil
}

// sameIDs requires exactly one returned item per original id. Retime and retranslate
// never split, merge or drop cues.
func sameIDs(mode types.Mode, byID map[int]types.SubtitleItem, got []returnedItem) error {
	if len(got) != len(byID) {
		return fmt.Errorf("%s returned %d items for %d originals", mode, len(got), len(byID))
	}
	seen := make(map[int]bool, len(got))
	for _, r := range got {
		if _, ok := byID[r.ID]; !ok {
			return fmt.Errorf("unknown id %d in %s result", r.ID, mode)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate id %d in %s result", r.ID, mode)
		}
		seen[r.ID] = true
	}
	return nil
}

func label(g types.Group) string {
	if len(g.Batches) == 0 {
		return "-"
	}
	if len(g.Batches) == 1 {
		return fmt.Sprintf("batch %d", g.Batches[0])
	}
	return fmt.Sprintf("batches %d-%d", g.Batches[0], g.Batches[len(g.Batches)-1])
}
