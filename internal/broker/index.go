package broker

import (
	"math/rand/v2"
	"sync"

	"stealthcompany.com/openbroker/internal/metrics"
)

// BookableIndex tracks which opportunity ids are currently bookable, per
// type, supporting random selection. An id is held at most once: repeated
// "still bookable" observations do not duplicate it.
type BookableIndex struct {
	mu     sync.RWMutex
	byType map[string][]string
	typeOf map[string]string
}

// NewBookableIndex creates an empty index.
func NewBookableIndex() *BookableIndex {
	return &BookableIndex{
		byType: make(map[string][]string),
		typeOf: make(map[string]string),
	}
}

// Add records id as bookable under opportunityType. A no-op when already
// present; if the id changed type, it is moved.
func (bi *BookableIndex) Add(opportunityType, id string) {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	if existing, ok := bi.typeOf[id]; ok {
		if existing == opportunityType {
			return
		}
		bi.removeLocked(id)
	}
	bi.byType[opportunityType] = append(bi.byType[opportunityType], id)
	bi.typeOf[id] = opportunityType
	metrics.SetBookableIndexSize(opportunityType, len(bi.byType[opportunityType]))
}

// Remove drops id from the index if present.
func (bi *BookableIndex) Remove(id string) {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	bi.removeLocked(id)
}

func (bi *BookableIndex) removeLocked(id string) {
	opportunityType, ok := bi.typeOf[id]
	if !ok {
		return
	}
	delete(bi.typeOf, id)

	ids := bi.byType[opportunityType]
	for i, existing := range ids {
		if existing == id {
			bi.byType[opportunityType] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	metrics.SetBookableIndexSize(opportunityType, len(bi.byType[opportunityType]))
}

// Random picks an arbitrary bookable id, optionally restricted to one type.
// Returns the id's type alongside it.
func (bi *BookableIndex) Random(opportunityType string) (string, string, bool) {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	if opportunityType != "" {
		ids := bi.byType[opportunityType]
		if len(ids) == 0 {
			return "", "", false
		}
		return opportunityType, ids[rand.IntN(len(ids))], true
	}

	if len(bi.typeOf) == 0 {
		return "", "", false
	}
	n := rand.IntN(len(bi.typeOf))
	for _, ids := range bi.byType {
		if n < len(ids) {
			id := ids[n]
			return bi.typeOf[id], id, true
		}
		n -= len(ids)
	}
	return "", "", false
}

// Contains reports whether id is currently held bookable.
func (bi *BookableIndex) Contains(id string) bool {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	_, ok := bi.typeOf[id]
	return ok
}

// Count returns the number of bookable ids for a type ("" for all).
func (bi *BookableIndex) Count(opportunityType string) int {
	bi.mu.RLock()
	defer bi.mu.RUnlock()
	if opportunityType == "" {
		return len(bi.typeOf)
	}
	return len(bi.byType[opportunityType])
}
