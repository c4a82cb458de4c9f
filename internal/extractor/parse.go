package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Outcome int

const (
	Parsed Outcome = iota
	// Truncated means the text may be the head of a longer array; continuing can help.
	Truncated
	// Malformed means continuing cannot help: empty text or a complete non-array value.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case Truncated:
		return "truncated"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type ParseResult struct {
	Outcome  Outcome
	Elements []json.RawMessage
	// Salvaged is set when the array was extracted from surrounding text.
	Salvaged bool
}

// ParseError is returned when model output could not be decoded into the expected array.
type ParseError struct {
	Outcome Outcome
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse model output (%s): %v", e.Outcome, e.Err)
	}
	return fmt.Sprintf("parse model output (%s): %q", e.Outcome, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseJSONArray tries a strict parse, then salvages the outermost well-formed array
// from surrounding text such as markdown fences.
func ParseJSONArray(text string) ParseResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult{Outcome: Malformed}
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil && arr != nil {
		return ParseResult{Outcome: Parsed, Elements: arr}
	}

	cleaned := stripFences(trimmed)
	if cand := extractArray(cleaned); cand != "" {
		if err := json.Unmarshal([]byte(cand), &arr); err == nil {
			return ParseResult{Outcome: Parsed, Elements: arr, Salvaged: true}
		}
	}

	// A complete object or scalar will not turn into an array by continuing.
	if json.Valid([]byte(cleaned)) {
		return ParseResult{Outcome: Malformed}
	}
	return ParseResult{Outcome: Truncated}
}

// DecodeArray parses text and decodes every element into T.
func DecodeArray[T any](text string) ([]T, error) {
	res := ParseJSONArray(text)
	if res.Outcome != Parsed {
		return nil, &ParseError{Outcome: res.Outcome, Snippet: snippet(text)}
	}
	out := make([]T, 0, len(res.Elements))
	for i, raw := range res.Elements {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &ParseError{Outcome: Malformed, Snippet: snippet(string(raw)), Err: fmt.Errorf("element %d: %w", i, err)}
		}
		out = append(out, v)
	}
	return out, nil
}

// stripFences drops a markdown fence line at the start and a closing fence at the end.
// Fences in the middle of the text are left to extractArray.
func stripFences(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl != -1 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s[3:], "jsonJSON")
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// extractArray returns the longest balanced, valid JSON array in s. Brackets inside
// string literals are ignored. An unclosed array anywhere in s means the output was cut
// off, so nothing is returned and the caller reports Truncated.
func extractArray(s string) string {
	best := ""
	for start := strings.IndexByte(s, '['); start != -1; {
		end := matchBracket(s, start)
		if end == -1 {
			return ""
		}
		if cand := s[start : end+1]; len(cand) > len(best) && json.Valid([]byte(cand)) {
			best = cand
		}
		// nested arrays belong to the candidate just scanned
		next := strings.IndexByte(s[end+1:], '[')
		if next == -1 {
			break
		}
		start = end + 1 + next
	}
	return best
}

func matchBracket(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				if c != ']' {
					return -1
				}
				return i
			}
		}
	}
	return -1
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
