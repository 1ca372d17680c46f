package invoice

import (
	"sort"
	"sync"
	"time"

	"github.com/3tcapital/facturador/internal/core/invoice"
)

// BatchStats summarizes a batch.
type BatchStats struct {
	Total      int   `json:"total"`
	Authorized int   `json:"authorized"`
	Rejected   int   `json:"rejected"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"durationMs"`
}

// BatchResult holds every item of a batch in submission order.
type BatchResult struct {
	Items []BatchItem `json:"items"`
	Stats BatchStats  `json:"stats"`
}

// resultAggregator collects batch items from concurrent workers.
type resultAggregator struct {
	mu        sync.Mutex
	items     []BatchItem
	stats     BatchStats
	startTime time.Time
}

func newResultAggregator(total int) *resultAggregator {
	return &resultAggregator{
		items:     make([]BatchItem, 0, total),
		stats:     BatchStats{Total: total},
		startTime: time.Now(),
	}
}

func (a *resultAggregator) add(item BatchItem) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.items = append(a.items, item)
	switch {
	case item.Failed():
		a.stats.Failed++
	case item.State == invoice.StateRejected:
		a.stats.Rejected++
	default:
		a.stats.Authorized++
	}
}

func (a *resultAggregator) result() BatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	items := make([]BatchItem, len(a.items))
	copy(items, a.items)
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })

	stats := a.stats
	stats.DurationMs = time.Since(a.startTime).Milliseconds()
	return BatchResult{Items: items, Stats: stats}
}
