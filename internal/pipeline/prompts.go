package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"subforge-go/internal/glossary"
	"subforge-go/internal/types"
)

const refineSystem = `You are a professional subtitle editor. You receive an audio clip and a machine transcript of it as a JSON array of {start,end,text} segments, with times in seconds relative to the start of the clip.
Listen to the audio and return the corrected transcript:
- fix misheard words, names and punctuation
- remove filler words and false starts
- split segments longer than about 7 seconds or 20 words at natural pauses
- keep times relative to the clip, in seconds
Return only a JSON array of {"start": number, "end": number, "text": string}.`

const translateSystemTmpl = `You are a professional subtitle translator. Translate every item's text_original into %s.
Keep each translation concise enough to read as a subtitle and faithful to the meaning and tone of the source.
Return only a JSON array with one {"id": number, "text_original": string, "text_translated": string} object per input item, keeping every id.`

func refineRequest(model string, wav []byte, raw []types.Segment) (types.GenerateRequest, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return types.GenerateRequest{}, err
	}
	return types.GenerateRequest{
		Model:  model,
		System: refineSystem,
		Schema: types.SchemaSegments,
		History: []types.Message{{
			Role: types.RoleUser,
			Parts: []types.Part{
				types.AudioPart(wav),
				types.TextPart("Transcript segments:\n" + string(payload)),
			},
		}},
	}, nil
}

type translateInput struct {
	ID       int    `json:"id"`
	Original string `json:"text_original"`
}

func translateRequest(model, target string, g glossary.Glossary, batch []translateInput) (types.GenerateRequest, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return types.GenerateRequest{}, err
	}
	system := fmt.Sprintf(translateSystemTmpl, target)
	if gp := g.Prompt(); gp != "" {
		system += "\n\n" + strings.TrimSpace(gp)
	}
	return types.GenerateRequest{
		Model:   model,
		System:  system,
		Schema:  types.SchemaTranslation,
		History: []types.Message{{Role: types.RoleUser, Parts: []types.Part{types.TextPart(string(payload))}}},
	}, nil
}
