package gemini

import (
	"github.com/google/generative-ai-go/genai"

	"subforge-go/internal/types"
)

func arrayOf(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   required,
		},
	}
}

var (
	str     = &genai.Schema{Type: genai.TypeString}
	num     = &genai.Schema{Type: genai.TypeNumber}
	integer = &genai.Schema{Type: genai.TypeInteger}
)

func schemaFor(kind types.SchemaKind) *genai.Schema {
	switch kind {
	case types.SchemaSegments:
		return arrayOf(map[string]*genai.Schema{
			"start": num,
			"end":   num,
			"text":  str,
		}, "start", "end", "text")
	case types.SchemaTranslation:
		return arrayOf(map[string]*genai.Schema{
			"id":              integer,
			"text_original":   str,
			"text_translated": str,
		}, "id", "text_translated")
	case types.SchemaItems:
		return arrayOf(map[string]*genai.Schema{
			"id":              integer,
			"start":           str,
			"end":             str,
			"text_original":   str,
			"text_translated": str,
		}, "id", "start", "end", "text_original", "text_translated")
	}
	return nil
}
