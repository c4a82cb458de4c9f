package batch

import (
	"fmt"
	"strings"

	"subforge-go/internal/glossary"
	"subforge-go/internal/types"
)

// profile is the per-mode prompt and model selection.
type profile struct {
	mode       types.Mode
	needsAudio bool
	proModel   bool
	objective  string
	quality    string
	frozen     string
}

var profiles = map[types.Mode]profile{
	types.ModeProofread: {
		mode:       types.ModeProofread,
		needsAudio: true,
		proModel:   true,
		objective: "Proofread the subtitles against the audio: fix transcription mistakes, mistranslations and timing. " +
			"You may split, merge or drop items when the audio requires it.",
		quality: "Keep translations natural and concise. Keep every cue at least 0.5 seconds long and never overlapping the next one.",
		frozen:  "Keep items in chronological order.",
	},
	types.ModeRetime: {
		mode:       types.ModeRetime,
		needsAudio: true,
		objective:  "Re-time the subtitles so each cue starts and ends exactly with the matching speech in the audio.",
		quality:    "Cues must not overlap and must be at least 0.5 seconds long. Return the same ids.",
		frozen:     "Do not change text_original or text_translated in any way.",
	},
	types.ModeRetranslate: {
		mode:      types.ModeRetranslate,
		objective: "Translate text_original again into %s, improving accuracy and fluency.",
		quality:   "Keep each translation short enough to read as a subtitle and consistent in terminology across items. Return the same ids.",
		frozen:    "Do not change start or end in any way.",
	},
}

func profileFor(mode types.Mode) (profile, error) {
	p, ok := profiles[mode]
	if !ok {
		return profile{}, fmt.Errorf("unknown mode %q", mode)
	}
	return p, nil
}

// system renders the prompt with the precedence order
// user directive > objective > quality constraints > frozen field.
func (p profile) system(target string, g glossary.Glossary) string {
	objective := p.objective
	if strings.Contains(objective, "%s") {
		objective = fmt.Sprintf(objective, target)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional subtitle editor working on %s subtitles.\n", target)
	b.WriteString("Apply the rules below in priority order; a higher rule wins over a lower one.\n")
	b.WriteString("1. Follow the user's instructions for the referenced items.\n")
	fmt.Fprintf(&b, "2. %s\n", objective)
	fmt.Fprintf(&b, "3. %s\n", p.quality)
	fmt.Fprintf(&b, "4. %s\n", p.frozen)
	b.WriteString("Timestamps are absolute within the whole media, formatted HH:MM:SS,mmm.\n")
	b.WriteString(`Return only a JSON array of {"id","start","end","text_original","text_translated"} objects.`)
	if gp := g.Prompt(); gp != "" && p.mode != types.ModeRetime {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(gp))
	}
	return b.String()
}
