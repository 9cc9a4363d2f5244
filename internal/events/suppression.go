package events

import (
	"sync"

	"scada-maintenance/internal/observability/metrics"
)

// SuppressionList is the concurrent set of point and source ids currently
// inside an active maintenance window. The alarm pipeline consults it before
// raising alarms. Counts are reference counts: overlapping windows covering
// the same point must all end before the point is released.
type SuppressionList struct {
	mu      sync.RWMutex
	points  map[int]int
	sources map[int]int
}

// NewSuppressionList constructs an empty list.
func NewSuppressionList() *SuppressionList {
	return &SuppressionList{
		points:  make(map[int]int),
		sources: make(map[int]int),
	}
}

// Suppress registers the points and sources of an activated window.
func (l *SuppressionList) Suppress(pointIDs, sourceIDs []int) {
	l.mu.Lock()
	for _, id := range pointIDs {
		l.points[id]++
	}
	for _, id := range sourceIDs {
		l.sources[id]++
	}
	points, sources := len(l.points), len(l.sources)
	l.mu.Unlock()
	metrics.SetSuppressedCounts(points, sources)
}

// Release removes the points and sources of a deactivated window.
func (l *SuppressionList) Release(pointIDs, sourceIDs []int) {
	l.mu.Lock()
	for _, id := range pointIDs {
		if l.points[id] <= 1 {
			delete(l.points, id)
		} else {
			l.points[id]--
		}
	}
	for _, id := range sourceIDs {
		if l.sources[id] <= 1 {
			delete(l.sources, id)
		} else {
			l.sources[id]--
		}
	}
	points, sources := len(l.points), len(l.sources)
	l.mu.Unlock()
	metrics.SetSuppressedCounts(points, sources)
}

// IsPointSuppressed reports whether alarms for the point are suppressed.
func (l *SuppressionList) IsPointSuppressed(pointID int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.points[pointID] > 0
}

// IsSourceSuppressed reports whether alarms for the source are suppressed.
func (l *SuppressionList) IsSourceSuppressed(sourceID int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sources[sourceID] > 0
}
