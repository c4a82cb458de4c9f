package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Negative input clamps to zero.
func FormatTimestamp(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm, MM:SS.mmm and bare seconds.
func ParseTimestamp(s string) (float64, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	norm := strings.Replace(raw, ",", ".", 1)
	parts := strings.Split(norm, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", raw)
	}
	total := 0.0
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", raw)
		}
		// only the last component may carry a fraction
		if i < len(parts)-1 && v != math.Trunc(v) {
			return 0, fmt.Errorf("invalid timestamp %q", raw)
		}
		total = total*60 + v
	}
	return math.Round(total*1000) / 1000, nil
}

// Timestamp decodes from either a JSON number of seconds or a timestamp string.
type Timestamp float64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var num float64
	if err := json.Unmarshal(b, &num); err == nil {
		*t = Timestamp(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	v, err := ParseTimestamp(str)
	if err != nil {
		return err
	}
	*t = Timestamp(v)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatTimestamp(float64(t)))
}

// Span returns the parsed start and end of an item.
func (it SubtitleItem) Span() (float64, float64, error) {
	start, err := ParseTimestamp(it.StartTime)
	if err != nil {
		return 0, 0, fmt.Errorf("item %d start: %w", it.ID, err)
	}
	end, err := ParseTimestamp(it.EndTime)
	if err != nil {
		return 0, 0, fmt.Errorf("item %d end: %w", it.ID, err)
	}
	return start, end, nil
}
