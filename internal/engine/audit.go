package engine

import "sync"

// Aggregator accumulates transformation events into counts. It never retains
// event order, field paths, or any original value.
type Aggregator struct {
	mu       sync.Mutex
	total    int
	byAction map[Action]int
	byEntity map[string]*entityCounts
}

type entityCounts struct {
	count    int
	byAction map[Action]int
}

// NewAggregator returns an empty audit aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byAction: make(map[Action]int),
		byEntity: make(map[string]*entityCounts),
	}
}

// Record counts one transformation event.
func (a *Aggregator) Record(event TransformationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byAction[event.Action]++

	stats, ok := a.byEntity[event.Entity]
	if !ok {
		stats = &entityCounts{byAction: make(map[Action]int)}
		a.byEntity[event.Entity] = stats
	}
	stats.count++
	stats.byAction[event.Action]++
}

// Finalize builds the summary from the current counts. It is idempotent and
// side-effect-free: repeated calls return equal summaries until another event
// is recorded. The returned maps are copies, safe for the caller to hold.
func (a *Aggregator) Finalize() *AuditSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := &AuditSummary{
		TotalTransformations: a.total,
		ByAction:             make(map[Action]int, len(a.byAction)),
		ByEntity:             make(map[string]EntityStats, len(a.byEntity)),
	}
	for action, n := range a.byAction {
		summary.ByAction[action] = n
	}
	for entity, stats := range a.byEntity {
		byAction := make(map[Action]int, len(stats.byAction))
		for action, n := range stats.byAction {
			byAction[action] = n
		}
		summary.ByEntity[entity] = EntityStats{Count: stats.count, ByAction: byAction}
	}
	return summary
}
