// Package broker coordinates the feed-harvesting pipeline: it ingests
// parent and child catalogue feeds into the record store and join cache,
// republishes a consistency-gated merged feed, and bridges feed
// observations to parked HTTP waiters.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/openbroker/internal/config"
	"stealthcompany.com/openbroker/internal/rpde"
	"stealthcompany.com/openbroker/internal/store"
	"stealthcompany.com/openbroker/internal/waiters"
)

// Broker owns all shared pipeline state. Each structure carries its own
// lock; nothing here is an ambient global.
type Broker struct {
	cfg   *config.Config
	store store.RecordStore
	cache *store.DocumentCache

	Bookable           *BookableIndex
	OpportunityWaiters *waiters.Registry
	OrderWaiters       *waiters.Registry
	Status             *HarvestStatus

	// Clock is swappable for tests.
	Clock func() time.Time

	mu              sync.Mutex
	parentDocByItem map[string]string // feed item id -> documentId
	childDocByItem  map[string]string
}

// New creates a broker over the given record store.
func New(cfg *config.Config, recordStore store.RecordStore) *Broker {
	return &Broker{
		cfg:                cfg,
		store:              recordStore,
		cache:              store.NewDocumentCache(),
		Bookable:           NewBookableIndex(),
		OpportunityWaiters: waiters.NewRegistry("opportunities"),
		OrderWaiters:       waiters.NewRegistry("orders"),
		Status:             NewHarvestStatus(),
		Clock:              time.Now,
		parentDocByItem:    make(map[string]string),
		childDocByItem:     make(map[string]string),
	}
}

// nextFeedModified assigns the local feed timestamp for freshly written
// rows: one second ahead of now, so a row is never visible to a concurrent
// cursor read before its write has settled.
func (b *Broker) nextFeedModified() int64 {
	return b.Clock().Add(time.Second).UnixMilli()
}

// ParentPageHandler returns the ingestion callback for a parent-kind feed.
func (b *Broker) ParentPageHandler(feedName string) rpde.PageHandler {
	return func(ctx context.Context, page *rpde.Page, pageNumber int) error {
		feedModified := b.nextFeedModified()
		var ingestedDocIDs []string

		for _, item := range page.Items {
			itemID := item.IDString()
			if itemID == "" {
				continue
			}

			if item.Deleted() {
				docID := b.forgetParentItem(itemID)
				if docID == "" {
					// Tombstone for an item never seen with data, e.g. a
					// deletion retained in the feed from before our first
					// harvest. The feed item id is the only handle we have.
					docID = itemID
				}
				rec := store.ParentRecord{
					ID:           itemID,
					Modified:     item.ModifiedString(),
					Deleted:      true,
					DocumentID:   docID,
					FeedModified: feedModified,
				}
				if err := b.store.UpsertParent(ctx, rec); err != nil {
					return err
				}
				b.cache.DeleteParent(docID)
				continue
			}

			docID := extractDocumentID(item.Data)
			rec := store.ParentRecord{
				ID:           itemID,
				Modified:     item.ModifiedString(),
				DocumentID:   docID,
				FeedModified: feedModified,
				Document:     item.Data,
			}
			if err := b.store.UpsertParent(ctx, rec); err != nil {
				return err
			}
			b.rememberParentItem(itemID, docID)
			b.cache.SetParent(docID, item.Data)
			ingestedDocIDs = append(ingestedDocIDs, docID)
		}

		// Requeue every child referencing a parent just written, so children
		// that arrived first catch up once their parent becomes known.
		if len(ingestedDocIDs) > 0 {
			touched, err := b.store.MarkChildrenParentIngested(ctx, ingestedDocIDs, b.nextFeedModified())
			if err != nil {
				return err
			}
			b.cache.MarkChildrenParentIngested(ingestedDocIDs)
			if touched > 0 {
				log.Debug().
					Str("feed", feedName).
					Int("children", touched).
					Msg("Requeued children for newly ingested parents")
			}
		}

		b.Status.RecordPage(feedName, len(page.Items))
		return nil
	}
}

// ChildPageHandler returns the ingestion callback for a child-kind feed.
func (b *Broker) ChildPageHandler(feedName string) rpde.PageHandler {
	return func(ctx context.Context, page *rpde.Page, pageNumber int) error {
		feedModified := b.nextFeedModified()

		for _, item := range page.Items {
			itemID := item.IDString()
			if itemID == "" {
				continue
			}

			if item.Deleted() {
				docID := b.forgetChildItem(itemID)
				if docID == "" {
					// Tombstone for an item never seen with data, e.g. a
					// deletion retained in the feed from before our first
					// harvest. The feed item id keeps the republished id
					// unique and non-empty.
					docID = itemID
				}
				rec := store.ChildRecord{
					ID:           itemID,
					Modified:     item.ModifiedString(),
					Deleted:      true,
					DocumentID:   docID,
					FeedModified: feedModified,
					// ParentIngested stays true if previously set, so the
					// deletion itself flows through the gated feed. A child
					// never seen with a parent has nothing to retract.
					ParentIngested: true,
				}
				if err := b.store.UpsertChild(ctx, rec); err != nil {
					return err
				}
				b.cache.DeleteChild(docID)
				continue
			}

			docID := extractDocumentID(item.Data)
			docType := extractDocumentType(item.Data)
			spec := kindFor(docType)
			parentDocID := extractParentRef(item.Data, spec)

			// The in-memory parent map answers the join instead of a store
			// query; a small staleness window in exchange for a cheap write.
			parentIngested := b.cache.HasParent(parentDocID)

			rec := store.ChildRecord{
				ID:               itemID,
				Modified:         item.ModifiedString(),
				DocumentID:       docID,
				DocumentType:     docType,
				ParentDocumentID: parentDocID,
				ParentIngested:   parentIngested,
				FeedModified:     feedModified,
				Document:         item.Data,
			}
			if err := b.store.UpsertChild(ctx, rec); err != nil {
				return err
			}
			b.rememberChildItem(itemID, docID)
			b.cache.SetChild(docID, store.CachedChild{
				DocumentType:     docType,
				ParentDocumentID: parentDocID,
				ParentIngested:   parentIngested,
				FeedModified:     feedModified,
				Document:         item.Data,
			})
		}

		b.Status.RecordPage(feedName, len(page.Items))
		return nil
	}
}

// FeedItem is one entry on the republished feed.
type FeedItem struct {
	State    string                 `json:"state"`
	Kind     string                 `json:"kind,omitempty"`
	ID       string                 `json:"id"`
	Modified int64                  `json:"modified"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// FeedPage queries one page of the republished feed and merges each child
// with its parent document from the join cache. The returned cursor points
// at the last returned item, or equals the input cursor when the page is
// empty (the feed front).
func (b *Broker) FeedPage(ctx context.Context, cursor *store.Cursor, pageSize int) ([]FeedItem, *store.Cursor, error) {
	children, err := b.store.QueryChildrenPage(ctx, cursor, b.Clock().UnixMilli(), pageSize)
	if err != nil {
		return nil, cursor, err
	}

	items := make([]FeedItem, 0, len(children))
	next := cursor
	for _, child := range children {
		if child.Deleted {
			items = append(items, FeedItem{
				State:    rpde.StateDeleted,
				ID:       child.DocumentID,
				Modified: child.FeedModified,
			})
		} else {
			items = append(items, FeedItem{
				State:    rpde.StateUpdated,
				Kind:     child.DocumentType,
				ID:       child.DocumentID,
				Modified: child.FeedModified,
				Data:     b.mergeParent(child.DocumentType, child.ParentDocumentID, child.Document),
			})
		}
		next = &store.Cursor{AfterTimestamp: child.FeedModified, AfterID: child.DocumentID}
	}
	return items, next, nil
}

// CachedOpportunity serves a child from the join cache, honoring the parent
// gate. Returns false when the caller should park a waiter instead.
func (b *Broker) CachedOpportunity(documentID string) (map[string]interface{}, bool) {
	child, ok := b.cache.GetChild(documentID)
	if !ok || !child.ParentIngested || child.Document == nil {
		return nil, false
	}
	return map[string]interface{}{
		"state":    rpde.StateUpdated,
		"kind":     child.DocumentType,
		"id":       documentID,
		"modified": child.FeedModified,
		"data":     b.mergeParent(child.DocumentType, child.ParentDocumentID, child.Document),
	}, true
}

// mergeParent copies the child document and injects the parent document
// under the kind's reference field, replacing the bare reference. This is
// the join-avoidance read path: the in-memory map stands in for a
// store-level join.
func (b *Broker) mergeParent(documentType, parentDocumentID string, document map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(document)+1)
	for k, v := range document {
		merged[k] = v
	}
	if parentDoc, ok := b.cache.GetParent(parentDocumentID); ok {
		merged[kindFor(documentType).ParentRefField] = parentDoc
	}
	return merged
}

func (b *Broker) rememberParentItem(itemID, docID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parentDocByItem[itemID] = docID
}

func (b *Broker) forgetParentItem(itemID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	docID := b.parentDocByItem[itemID]
	delete(b.parentDocByItem, itemID)
	return docID
}

func (b *Broker) rememberChildItem(itemID, docID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.childDocByItem[itemID] = docID
}

func (b *Broker) forgetChildItem(itemID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	docID := b.childDocByItem[itemID]
	delete(b.childDocByItem, itemID)
	return docID
}
