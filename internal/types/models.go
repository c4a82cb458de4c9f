package types

import "strings"

// SubtitleItem is one bilingual cue. Timestamps are absolute, formatted HH:MM:SS,mmm.
type SubtitleItem struct {
	ID         int    `json:"id"`
	StartTime  string `json:"start"`
	EndTime    string `json:"end"`
	Original   string `json:"text_original"`
	Translated string `json:"text_translated"`
	Comment    string `json:"comment,omitempty"`
}

// Segment is a chunk-relative span returned by transcription or refinement.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type ChunkDescriptor struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

func (c ChunkDescriptor) Duration() float64 { return c.EndSec - c.StartSec }

// Group is one or more consecutive batches merged into a single regeneration request.
type Group struct {
	Batches     []int          `json:"batches"`
	Items       []SubtitleItem `json:"items"`
	Instruction string         `json:"instruction,omitempty"`
}

// Mode selects the regeneration pass.
type Mode string

const (
	ModeProofread   Mode = "proofread"
	ModeRetime      Mode = "retime"
	ModeRetranslate Mode = "retranslate"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeProofread:
		return ModeProofread, true
	case ModeRetime:
		return ModeRetime, true
	case ModeRetranslate:
		return ModeRetranslate, true
	}
	return "", false
}

type ProgressStatus string

const (
	StatusProcessing ProgressStatus = "processing"
	StatusCompleted  ProgressStatus = "completed"
	StatusError      ProgressStatus = "error"
)

// ProgressUpdate is a fire-and-forget notification about one chunk or group.
type ProgressUpdate struct {
	ID      string         `json:"id"`
	Total   int            `json:"total"`
	Status  ProgressStatus `json:"status"`
	Stage   string         `json:"stage,omitempty"`
	Message string         `json:"message,omitempty"`
}

type ProgressFunc func(ProgressUpdate)

// SnapshotFunc receives an ordered, renumbered view of all slots filled so far.
type SnapshotFunc func([]SubtitleItem)

// Emit forwards u when fn is configured.
func (fn ProgressFunc) Emit(u ProgressUpdate) {
	if fn != nil {
		fn(u)
	}
}

// Flatten concatenates slots in index order, skipping empty ones, and renumbers ids 1..N.
func Flatten(slots [][]SubtitleItem) []SubtitleItem {
	total := 0
	for _, s := range slots {
		total += len(s)
	}
	out := make([]SubtitleItem, 0, total)
	for _, s := range slots {
		out = append(out, s...)
	}
	return Renumber(out)
}

// Renumber returns a copy of items with dense ids starting at 1.
func Renumber(items []SubtitleItem) []SubtitleItem {
	out := make([]SubtitleItem, len(items))
	for i, it := range items {
		it.ID = i + 1
		out[i] = it
	}
	return out
}
