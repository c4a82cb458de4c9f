package audio

import "subforge-go/internal/types"

// Segment splits [0,total) into consecutive windows of length window. The last window is
// truncated to total. total <= 0 yields no windows; window <= 0 yields one window.
func Segment(total, window float64) []types.ChunkDescriptor {
	if total <= 0 {
		return nil
	}
	if window <= 0 || window >= total {
		return []types.ChunkDescriptor{{Index: 0, StartSec: 0, EndSec: total}}
	}
	var out []types.ChunkDescriptor
	for i := 0; ; i++ {
		start := float64(i) * window
		if start >= total {
			break
		}
		end := start + window
		if end > total {
			end = total
		}
		out = append(out, types.ChunkDescriptor{Index: i, StartSec: start, EndSec: end})
	}
	return out
}
