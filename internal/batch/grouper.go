package batch

import (
	"fmt"
	"slices"
	"strings"

	"subforge-go/internal/types"
)

// Partition splits items into contiguous batches of size; the last may be shorter.
func Partition(items []types.SubtitleItem, size int) [][]types.SubtitleItem {
	if size <= 0 {
		size = len(items)
	}
	var out [][]types.SubtitleItem
	for from := 0; from < len(items); from += size {
		out = append(out, items[from:min(from+size, len(items))])
	}
	return out
}

// GroupBatches turns a selection of batch indexes into processing groups. Selecting every
// batch yields one group per batch; otherwise numerically consecutive indexes are merged.
// comments holds optional per-batch instructions keyed by batch index.
func GroupBatches(batches [][]types.SubtitleItem, selected []int, comments map[int]string) ([]types.Group, error) {
	idx := slices.Clone(selected)
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		if i < 0 || i >= len(batches) {
			return nil, fmt.Errorf("batch index %d out of range [0,%d)", i, len(batches))
		}
	}
	if len(idx) == 0 {
		return nil, nil
	}

	var runs [][]int
	if len(idx) == len(batches) {
		for _, i := range idx {
			runs = append(runs, []int{i})
		}
	} else {
		run := []int{idx[0]}
		for _, i := range idx[1:] {
			if i == run[len(run)-1]+1 {
				run = append(run, i)
				continue
			}
			runs = append(runs, run)
			run = []int{i}
		}
		runs = append(runs, run)
	}

	groups := make([]types.Group, 0, len(runs))
	for _, run := range runs {
		g := types.Group{Batches: run}
		var notes []string
		for _, b := range run {
			g.Items = append(g.Items, batches[b]...)
			if c := strings.TrimSpace(comments[b]); c != "" {
				notes = append(notes, fmt.Sprintf("[%s]: %s", idRange(batches[b]), c))
			}
		}
		g.Instruction = strings.Join(notes, "\n")
		groups = append(groups, g)
	}
	return groups, nil
}

func idRange(items []types.SubtitleItem) string {
	if len(items) == 0 {
		return "IDs -"
	}
	return fmt.Sprintf("IDs %d-%d", items[0].ID, items[len(items)-1].ID)
}
