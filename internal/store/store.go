package store

import "context"

// ParentRecord is a catalogue series/use entry as last observed on a
// parent-kind feed. Keyed by the feed item id; also looked up by DocumentID.
type ParentRecord struct {
	ID           string                 `json:"id"`
	Modified     string                 `json:"modified"`
	Deleted      bool                   `json:"deleted"`
	DocumentID   string                 `json:"documentId"`
	FeedModified int64                  `json:"feedModified"`
	Document     map[string]interface{} `json:"document"`
}

// ChildRecord is a bookable unit referencing a ParentRecord by DocumentID.
// ParentIngested is true iff the store held the referenced parent at last
// evaluation; it gates visibility on the republished feed.
type ChildRecord struct {
	ID               string                 `json:"id"`
	Modified         string                 `json:"modified"`
	Deleted          bool                   `json:"deleted"`
	DocumentID       string                 `json:"documentId"`
	DocumentType     string                 `json:"documentType"`
	ParentDocumentID string                 `json:"parentDocumentId"`
	ParentIngested   bool                   `json:"parentIngested"`
	FeedModified     int64                  `json:"feedModified"`
	Document         map[string]interface{} `json:"document"`
}

// Cursor is the opaque pagination state of the republished feed. A nil
// cursor means "from the beginning".
type Cursor struct {
	AfterTimestamp int64
	AfterID        string
}

// After reports whether the record sorts strictly after the cursor in
// (feedModified, documentId) order.
func (c *Cursor) After(feedModified int64, documentID string) bool {
	if c == nil {
		return true
	}
	if feedModified != c.AfterTimestamp {
		return feedModified > c.AfterTimestamp
	}
	return documentID > c.AfterID
}

// RecordStore is the durable two-table store behind the broker. Rows are
// replaced wholesale on every observation; feed order wins, timestamps are
// never compared.
type RecordStore interface {
	// UpsertParent replaces the parent row keyed by rec.ID.
	UpsertParent(ctx context.Context, rec ParentRecord) error

	// UpsertChild replaces the child row keyed by rec.ID.
	UpsertChild(ctx context.Context, rec ChildRecord) error

	// MarkChildrenParentIngested flips parentIngested on every child whose
	// parentDocumentId is in parentDocumentIDs and bumps its feedModified,
	// requeueing those children for feed delivery. Returns the number of
	// children touched.
	MarkChildrenParentIngested(ctx context.Context, parentDocumentIDs []string, feedModified int64) (int, error)

	// QueryChildrenPage returns parent-ingested children after the cursor
	// whose feedModified is visible at now, ordered ascending by
	// (feedModified, documentId), limited to pageSize.
	QueryChildrenPage(ctx context.Context, cursor *Cursor, now int64, pageSize int) ([]ChildRecord, error)

	Close() error
}
