package batch

import "math"

// OffsetHypothesis says which time base a model used for returned timestamps.
type OffsetHypothesis int

const (
	// OffsetAbsolute: timestamps already refer to the whole media.
	OffsetAbsolute OffsetHypothesis = iota
	// OffsetRelative: timestamps are relative to the padded slice and need the padding added back.
	OffsetRelative
	// OffsetAmbiguous: both hypotheses fit equally well. Treated as absolute.
	OffsetAmbiguous
)

func (h OffsetHypothesis) String() string {
	switch h {
	case OffsetAbsolute:
		return "absolute"
	case OffsetRelative:
		return "relative"
	case OffsetAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// ResolveOffset compares the first returned start against spanStart-padding (relative
// to the padded slice) and spanStart (absolute).
func ResolveOffset(firstStart, spanStart, padding float64) OffsetHypothesis {
	rel := math.Abs(firstStart - (spanStart - padding))
	abs := math.Abs(firstStart - spanStart)
	switch {
	case rel < abs:
		return OffsetRelative
	case abs < rel:
		return OffsetAbsolute
	}
	return OffsetAmbiguous
}
