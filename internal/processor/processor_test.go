package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subforge-go/internal/config"
	"subforge-go/internal/logger"
	"subforge-go/internal/types"
)

// fakeAudio encodes the slice bounds into the "wav" so fakes can tell chunks apart.
type fakeAudio struct{ dur float64 }

func (f fakeAudio) Duration() float64 { return f.dur }
func (f fakeAudio) Slice(start, end float64) ([]byte, error) {
	return []byte(fmt.Sprintf("%g-%g", start, end)), nil
}

// fakeSTT returns n segments per chunk keyed by the chunk's start, with random latency.
type fakeSTT struct {
	perChunk map[string]int
	fail     map[string]bool
}

func (f *fakeSTT) Transcribe(_ context.Context, wav []byte) ([]types.Segment, error) {
	time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
	key := strings.SplitN(string(wav), "-", 2)[0]
	if f.fail[key] {
		return nil, errors.New("400 unsupported audio")
	}
	var segs []types.Segment
	for i := 0; i < f.perChunk[key]; i++ {
		segs = append(segs, types.Segment{Start: float64(i * 10), End: float64(i*10 + 5), Text: fmt.Sprintf("c%s-s%d", key, i)})
	}
	return segs, nil
}

// fakeGen fails refinement (so raw segments are kept) and echoes translations.
type fakeGen struct {
	mu    sync.Mutex
	items func(types.GenerateRequest) (string, error)
	reqs  []types.GenerateRequest
}

func (f *fakeGen) Generate(_ context.Context, req types.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)

	last := req.History[len(req.History)-1].Parts
	text := last[len(last)-1].Text
	switch req.Schema {
	case types.SchemaSegments:
		return "", errors.New("refinement unavailable")
	case types.SchemaTranslation:
		var in []struct {
			ID       int    `json:"id"`
			Original string `json:"text_original"`
		}
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			return "", err
		}
		var out []map[string]any
		for _, it := range in {
			out = append(out, map[string]any{"id": it.ID, "text_translated": "tr " + it.Original})
		}
		b, _ := json.Marshal(out)
		return string(b), nil
	case types.SchemaItems:
		return f.items(req)
	}
	return "", errors.New("unexpected request")
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retry.BaseDelayMS = 1
	cfg.Retry.MaxJitterMS = 0
	return cfg
}

func newTestProcessor(cfg *config.Config, stt *fakeSTT, gen *fakeGen) *Processor {
	return New(cfg, Deps{Transcriber: stt, Generator: gen, Log: logger.Discard()})
}

func TestGenerateSurvivesMiddleChunkFailure(t *testing.T) {
	stt := &fakeSTT{
		perChunk: map[string]int{"0": 5, "300": 4, "600": 3},
		fail:     map[string]bool{"300": true},
	}
	p := newTestProcessor(testConfig(), stt, &fakeGen{})

	var snapshots [][]types.SubtitleItem
	var progress []types.ProgressUpdate
	var mu sync.Mutex
	hooks := Hooks{
		Snapshot: func(items []types.SubtitleItem) { snapshots = append(snapshots, items) },
		Progress: func(u types.ProgressUpdate) { mu.Lock(); progress = append(progress, u); mu.Unlock() },
	}

	res, err := p.Generate(context.Background(), fakeAudio{dur: 700}, hooks)
	var pe *PartialError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []int{1}, pe.Failed)

	require.Len(t, res.Items, 8)
	for i, it := range res.Items {
		assert.Equal(t, i+1, it.ID)
	}
	assert.Equal(t, "c0-s0", res.Items[0].Original)
	assert.Equal(t, "tr c0-s0", res.Items[0].Translated)
	assert.Equal(t, "c600-s0", res.Items[5].Original)
	assert.Equal(t, "00:10:00,000", res.Items[5].StartTime)
	assert.NotEmpty(t, res.RunID)

	assert.Len(t, snapshots, 2)
	assert.Equal(t, res.Items, snapshots[len(snapshots)-1])
	assert.Equal(t, 3, res.Summary.Units)
	assert.Equal(t, 2, res.Summary.Completed)
	assert.Equal(t, []string{"chunk-2"}, res.Summary.Failed)
}

func TestGenerateOrderIndependentOfCompletion(t *testing.T) {
	per := map[string]int{}
	for i := 0; i < 12; i++ {
		per[fmt.Sprint(i*60)] = 1 + i%3
	}
	cfg := testConfig()
	cfg.Generation.ChunkSeconds = 60

	var reference []types.SubtitleItem
	for run := 0; run < 5; run++ {
		cfg.Generation.Concurrency = 1 + run
		res, err := newTestProcessor(cfg, &fakeSTT{perChunk: per}, &fakeGen{}).
			Generate(context.Background(), fakeAudio{dur: 720}, Hooks{})
		require.NoError(t, err)
		if reference == nil {
			reference = res.Items
			continue
		}
		assert.Equal(t, reference, res.Items)
	}
	assert.Len(t, reference, 24)
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newTestProcessor(testConfig(), &fakeSTT{perChunk: map[string]int{"0": 1}}, &fakeGen{}).
		Generate(ctx, fakeAudio{dur: 700}, Hooks{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Items)
}

func TestGenerateRequiresAdapters(t *testing.T) {
	_, err := New(testConfig(), Deps{}).Generate(context.Background(), fakeAudio{dur: 10}, Hooks{})
	assert.Error(t, err)
}

func makeItems(n int) []types.SubtitleItem {
	out := make([]types.SubtitleItem, n)
	for i := range out {
		start := float64(i * 3)
		out[i] = types.SubtitleItem{
			ID:         i + 1,
			StartTime:  types.FormatTimestamp(start),
			EndTime:    types.FormatTimestamp(start + 2),
			Original:   fmt.Sprintf("o%d", i+1),
			Translated: fmt.Sprintf("t%d", i+1),
		}
	}
	return out
}

// splitEveryItem answers a proofread request by splitting each item in two.
func splitEveryItem(req types.GenerateRequest) (string, error) {
	text := req.History[0].Parts[len(req.History[0].Parts)-1].Text
	payload := text[strings.Index(text, `[{"id"`):]
	var in []types.SubtitleItem
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return "", err
	}
	var out []map[string]any
	for _, it := range in {
		start, end, _ := it.Span()
		mid := (start + end) / 2
		out = append(out,
			map[string]any{"id": it.ID, "start": start, "end": mid, "text_original": it.Original + "a", "text_translated": it.Translated + "a"},
			map[string]any{"id": it.ID, "start": mid, "end": end, "text_original": it.Original + "b", "text_translated": it.Translated + "b"},
		)
	}
	b, _ := json.Marshal(out)
	return string(b), nil
}

func TestRegenerateMergedGroupWritesFirstSlot(t *testing.T) {
	cfg := testConfig()
	cfg.Regeneration.BatchSize = 5
	gen := &fakeGen{items: splitEveryItem}
	p := newTestProcessor(cfg, nil, gen)

	items := makeItems(30)
	res, err := p.Regenerate(context.Background(), items, Request{
		Mode:     types.ModeProofread,
		Batches:  []int{2, 3, 4},
		Comments: map[int]string{3: "check names"},
	}, nil, Hooks{})
	require.NoError(t, err)

	require.Len(t, gen.reqs, 1)
	assert.Equal(t, "gemini-2.5-pro", gen.reqs[0].Model)
	assert.Contains(t, gen.reqs[0].History[0].Parts[0].Text, "[IDs 16-20]: check names")

	require.Len(t, res.Items, 45)
	assert.Equal(t, "o10", res.Items[9].Original)
	assert.Equal(t, "o11a", res.Items[10].Original)
	assert.Equal(t, "o25b", res.Items[39].Original)
	assert.Equal(t, "o26", res.Items[40].Original)
	for i, it := range res.Items {
		assert.Equal(t, i+1, it.ID)
	}
	assert.Equal(t, 1, res.Summary.Completed)
}

func TestRegenerateFailedGroupKeepsOriginals(t *testing.T) {
	cfg := testConfig()
	cfg.Regeneration.BatchSize = 4
	gen := &fakeGen{items: func(req types.GenerateRequest) (string, error) {
		if strings.Contains(req.History[0].Parts[0].Text, `"id":5`) {
			return "", errors.New("400 invalid argument")
		}
		return splitEveryItem(req)
	}}
	items := makeItems(12)
	res, err := newTestProcessor(cfg, nil, gen).Regenerate(context.Background(), items, Request{
		Mode:    types.ModeProofread,
		Batches: []int{0, 1, 2},
	}, nil, Hooks{})
	require.NoError(t, err)

	// full selection: one group per batch, batch 1 failed
	assert.Len(t, gen.reqs, 3)
	require.Len(t, res.Items, 8+4+8)
	assert.Equal(t, items[4].Original, res.Items[8].Original)
	assert.Equal(t, items[7].EndTime, res.Items[11].EndTime)
	assert.Equal(t, []string{"group-2"}, res.Summary.Failed)
}

func TestRegenerateRejectsBadRequests(t *testing.T) {
	p := newTestProcessor(testConfig(), nil, &fakeGen{})
	items := makeItems(10)

	res, err := p.Regenerate(context.Background(), items, Request{Mode: "rewrite"}, nil, Hooks{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, items, res.Items)

	_, err = p.Regenerate(context.Background(), items, Request{Mode: types.ModeRetime, Batches: []int{3}}, nil, Hooks{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRegenerateNothingSelected(t *testing.T) {
	gen := &fakeGen{}
	items := makeItems(3)
	res, err := newTestProcessor(testConfig(), nil, gen).Regenerate(context.Background(), items, Request{Mode: types.ModeRetranslate}, nil, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, items, res.Items)
	assert.Empty(t, gen.reqs)
}
