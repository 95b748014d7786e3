package store

import "sync"

// CachedChild is the in-memory projection of a child record needed to serve
// reads without touching the durable store: the document itself plus the
// fields required to join and gate it.
type CachedChild struct {
	DocumentType     string
	ParentDocumentID string
	ParentIngested   bool
	FeedModified     int64
	Document         map[string]interface{}
}

// DocumentCache holds the join-avoidance maps mirroring the durable store:
// documentId -> latest JSON document for parents and children. Updated
// synchronously within every ingestion step.
type DocumentCache struct {
	mu       sync.RWMutex
	parents  map[string]map[string]interface{}
	children map[string]CachedChild
}

// NewDocumentCache creates empty join maps.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{
		parents:  make(map[string]map[string]interface{}),
		children: make(map[string]CachedChild),
	}
}

// SetParent stores the latest parent document.
func (c *DocumentCache) SetParent(documentID string, document map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parents[documentID] = document
}

// DeleteParent drops a parent document.
func (c *DocumentCache) DeleteParent(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.parents, documentID)
}

// GetParent returns the parent document for documentID, if cached.
func (c *DocumentCache) GetParent(documentID string) (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.parents[documentID]
	return doc, ok
}

// HasParent reports whether a parent with documentID is cached.
func (c *DocumentCache) HasParent(documentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.parents[documentID]
	return ok
}

// SetChild stores the latest child projection.
func (c *DocumentCache) SetChild(documentID string, child CachedChild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children[documentID] = child
}

// MarkChildrenParentIngested flips the gate on every cached child
// referencing one of the given parent documentIds, mirroring the store-side
// bulk update.
func (c *DocumentCache) MarkChildrenParentIngested(parentDocumentIDs []string) {
	ids := make(map[string]struct{}, len(parentDocumentIDs))
	for _, id := range parentDocumentIDs {
		ids[id] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for documentID, child := range c.children {
		if _, ok := ids[child.ParentDocumentID]; !ok {
			continue
		}
		child.ParentIngested = true
		c.children[documentID] = child
	}
}

// DeleteChild drops a child projection.
func (c *DocumentCache) DeleteChild(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.children, documentID)
}

// GetChild returns the child projection for documentID, if cached.
func (c *DocumentCache) GetChild(documentID string) (CachedChild, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	child, ok := c.children[documentID]
	return child, ok
}
