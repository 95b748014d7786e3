package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the default RecordStore backend. State is rebuilt by
// re-harvesting from the start of each feed on restart, so an in-process
// store is sufficient for conformance runs.
type MemoryStore struct {
	mu       sync.RWMutex
	parents  map[string]ParentRecord
	children map[string]ChildRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parents:  make(map[string]ParentRecord),
		children: make(map[string]ChildRecord),
	}
}

// UpsertParent replaces the parent row keyed by rec.ID.
func (s *MemoryStore) UpsertParent(ctx context.Context, rec ParentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parents[rec.ID] = rec
	return nil
}

// UpsertChild replaces the child row keyed by rec.ID.
func (s *MemoryStore) UpsertChild(ctx context.Context, rec ChildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[rec.ID] = rec
	return nil
}

// MarkChildrenParentIngested flips parentIngested and bumps feedModified on
// every child referencing one of the given parent documentIds.
func (s *MemoryStore) MarkChildrenParentIngested(ctx context.Context, parentDocumentIDs []string, feedModified int64) (int, error) {
	if len(parentDocumentIDs) == 0 {
		return 0, nil
	}
	ids := make(map[string]struct{}, len(parentDocumentIDs))
	for _, id := range parentDocumentIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var touched int
	for key, child := range s.children {
		if _, ok := ids[child.ParentDocumentID]; !ok {
			continue
		}
		child.ParentIngested = true
		child.FeedModified = feedModified
		s.children[key] = child
		touched++
	}
	return touched, nil
}

// QueryChildrenPage returns visible, parent-ingested children after the
// cursor in (feedModified, documentId) order.
func (s *MemoryStore) QueryChildrenPage(ctx context.Context, cursor *Cursor, now int64, pageSize int) ([]ChildRecord, error) {
	s.mu.RLock()
	matched := make([]ChildRecord, 0, len(s.children))
	for _, child := range s.children {
		if !child.ParentIngested {
			continue
		}
		if child.FeedModified > now {
			continue
		}
		if !cursor.After(child.FeedModified, child.DocumentID) {
			continue
		}
		matched = append(matched, child)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].FeedModified != matched[j].FeedModified {
			return matched[i].FeedModified < matched[j].FeedModified
		}
		return matched[i].DocumentID < matched[j].DocumentID
	})
	if len(matched) > pageSize {
		matched = matched[:pageSize]
	}
	return matched, nil
}

// Parent returns the stored parent row for a feed item id.
func (s *MemoryStore) Parent(id string) (ParentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.parents[id]
	return rec, ok
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
