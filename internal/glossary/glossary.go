package glossary

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Term struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
	Note        string `json:"note,omitempty"`
}

type Glossary []Term

// Load reads term/translation pairs from the first sheet, detecting columns by header.
func Load(path string) (Glossary, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	termIdx, transIdx, noteIdx := -1, -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "translation") || strings.Contains(l, "target"):
			if transIdx == -1 {
				transIdx = i
			}
		case strings.Contains(l, "term") || strings.Contains(l, "source") || strings.Contains(l, "original"):
			if termIdx == -1 {
				termIdx = i
			}
		case strings.Contains(l, "note") || strings.Contains(l, "comment"):
			noteIdx = i
		}
	}
	// fallback: first two columns
	if termIdx == -1 && transIdx == -1 && len(header) >= 2 {
		termIdx, transIdx = 0, 1
	}
	if termIdx == -1 || transIdx == -1 {
		return nil, fmt.Errorf("no term/translation columns in header %v", header)
	}

	cell := func(r []string, i int) string {
		if i >= 0 && i < len(r) {
			return strings.TrimSpace(r[i])
		}
		return ""
	}

	var out Glossary
	for _, r := range rows[1:] {
		t := Term{Term: cell(r, termIdx), Translation: cell(r, transIdx), Note: cell(r, noteIdx)}
		// skip incomplete rows quietly
		if t.Term == "" || t.Translation == "" {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Prompt renders the glossary as an instruction block; empty when there are no terms.
func (g Glossary) Prompt() string {
	if len(g) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Use these fixed translations for the following terms:\n")
	for _, t := range g {
		fmt.Fprintf(&b, "- %s => %s", t.Term, t.Translation)
		if t.Note != "" {
			fmt.Fprintf(&b, " (%s)", t.Note)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
