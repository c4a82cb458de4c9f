package processor

import (
	"sync"

	"subforge-go/internal/types"
)

// slotTable holds one result slot per work unit. Writers own distinct indexes; the
// mutex keeps snapshots from observing a half-applied group write.
type slotTable struct {
	mu    sync.Mutex
	slots [][]types.SubtitleItem
}

func newSlotTable(n int) *slotTable {
	return &slotTable{slots: make([][]types.SubtitleItem, n)}
}

// fill writes items into slot first and empties the rest, then passes the ordered view
// to snap while still holding the lock so snapshots arrive in write order.
func (t *slotTable) fill(first int, items []types.SubtitleItem, rest []int, snap types.SnapshotFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[first] = items
	for _, i := range rest {
		t.slots[i] = nil
	}
	if snap != nil {
		snap(types.Flatten(t.slots))
	}
}

func (t *slotTable) flatten() []types.SubtitleItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.Flatten(t.slots)
}
