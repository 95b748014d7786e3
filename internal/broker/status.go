package broker

import (
	"sync"
	"time"
)

// FeedProgress is the harvest state of one feed.
type FeedProgress struct {
	Pages      int       `json:"pages"`
	Items      int       `json:"items"`
	LastPageAt time.Time `json:"lastPageAt"`
	UpToDate   bool      `json:"upToDate"`
}

// HarvestStatus tracks per-feed harvest progress for the health endpoint. A
// feed that serves an empty page has reached its live front and is counted
// up to date until the next non-empty page.
type HarvestStatus struct {
	mu    sync.RWMutex
	feeds map[string]FeedProgress
}

// NewHarvestStatus creates an empty tracker.
func NewHarvestStatus() *HarvestStatus {
	return &HarvestStatus{feeds: make(map[string]FeedProgress)}
}

// RecordPage records one handled page for a feed.
func (hs *HarvestStatus) RecordPage(feed string, items int) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	progress := hs.feeds[feed]
	progress.Pages++
	progress.Items += items
	progress.LastPageAt = time.Now()
	progress.UpToDate = items == 0
	hs.feeds[feed] = progress
}

// Snapshot returns a copy of all feed progress.
func (hs *HarvestStatus) Snapshot() map[string]FeedProgress {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	snapshot := make(map[string]FeedProgress, len(hs.feeds))
	for feed, progress := range hs.feeds {
		snapshot[feed] = progress
	}
	return snapshot
}
