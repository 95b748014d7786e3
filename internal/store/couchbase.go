package store

import (
	"context"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

const (
	recordKindParent = "parent"
	recordKindChild  = "child"
)

// CouchbaseStore is the durable RecordStore backend. Each record is one
// JSON document keyed by "<kind>::<feed item id>", with a recordKind
// discriminator for N1QL queries.
type CouchbaseStore struct {
	cluster *gocb.Cluster
	bucket  *gocb.Bucket
	name    string
}

type couchbaseChildDoc struct {
	RecordKind string `json:"recordKind"`
	ChildRecord
}

type couchbaseParentDoc struct {
	RecordKind string `json:"recordKind"`
	ParentRecord
}

// NewCouchbaseStore connects to the cluster and prepares the bucket for KV
// and query operations.
func NewCouchbaseStore(url, username, password, bucketName string) (*CouchbaseStore, error) {
	cluster, err := gocb.Connect(url, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: username,
			Password: password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: 60 * time.Second,
			KVTimeout:      5 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Couchbase: %w", err)
	}

	bucket := cluster.Bucket(bucketName)
	err = bucket.WaitUntilReady(90*time.Second, &gocb.WaitUntilReadyOptions{
		Context:      context.Background(),
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		return nil, fmt.Errorf("couchbase bucket not ready: %w", err)
	}

	_, err = cluster.Query(fmt.Sprintf("CREATE PRIMARY INDEX IF NOT EXISTS ON `%s`", bucketName), &gocb.QueryOptions{})
	if err != nil {
		log.Warn().Err(err).Str("bucket", bucketName).Msg("Failed to ensure primary index")
	}

	log.Info().
		Str("couchbase_url", url).
		Str("bucket", bucketName).
		Msg("Couchbase record store initialized")

	return &CouchbaseStore{cluster: cluster, bucket: bucket, name: bucketName}, nil
}

// UpsertParent replaces the parent document keyed by rec.ID.
func (s *CouchbaseStore) UpsertParent(ctx context.Context, rec ParentRecord) error {
	docID := fmt.Sprintf("%s::%s", recordKindParent, rec.ID)
	doc := couchbaseParentDoc{RecordKind: recordKindParent, ParentRecord: rec}
	_, err := s.bucket.DefaultCollection().Upsert(docID, doc, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to upsert parent %s: %w", rec.ID, err)
	}
	return nil
}

// UpsertChild replaces the child document keyed by rec.ID.
func (s *CouchbaseStore) UpsertChild(ctx context.Context, rec ChildRecord) error {
	docID := fmt.Sprintf("%s::%s", recordKindChild, rec.ID)
	doc := couchbaseChildDoc{RecordKind: recordKindChild, ChildRecord: rec}
	_, err := s.bucket.DefaultCollection().Upsert(docID, doc, &gocb.UpsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to upsert child %s: %w", rec.ID, err)
	}
	return nil
}

// MarkChildrenParentIngested bulk-updates children referencing the given
// parent documentIds.
func (s *CouchbaseStore) MarkChildrenParentIngested(ctx context.Context, parentDocumentIDs []string, feedModified int64) (int, error) {
	if len(parentDocumentIDs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(
		"UPDATE `%s` SET parentIngested = true, feedModified = $feedModified "+
			"WHERE recordKind = $kind AND parentDocumentId IN $parentIds "+
			"RETURNING META().id", s.name)
	rows, err := s.cluster.Query(query, &gocb.QueryOptions{
		Context: ctx,
		NamedParameters: map[string]interface{}{
			"feedModified": feedModified,
			"kind":         recordKindChild,
			"parentIds":    parentDocumentIDs,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark children parent-ingested: %w", err)
	}
	defer rows.Close()

	var touched int
	for rows.Next() {
		touched++
	}
	return touched, rows.Err()
}

// QueryChildrenPage pages through visible, parent-ingested children in
// (feedModified, documentId) order.
func (s *CouchbaseStore) QueryChildrenPage(ctx context.Context, cursor *Cursor, now int64, pageSize int) ([]ChildRecord, error) {
	query := fmt.Sprintf(
		"SELECT d.* FROM `%s` AS d "+
			"WHERE d.recordKind = $kind AND d.parentIngested = true AND d.feedModified <= $now "+
			"AND (d.feedModified > $afterTimestamp "+
			"OR (d.feedModified = $afterTimestamp AND d.documentId > $afterId)) "+
			"ORDER BY d.feedModified ASC, d.documentId ASC LIMIT $pageSize", s.name)

	params := map[string]interface{}{
		"kind":           recordKindChild,
		"now":            now,
		"afterTimestamp": int64(-1),
		"afterId":        "",
		"pageSize":       pageSize,
	}
	if cursor != nil {
		params["afterTimestamp"] = cursor.AfterTimestamp
		params["afterId"] = cursor.AfterID
	}

	rows, err := s.cluster.Query(query, &gocb.QueryOptions{
		Context:         ctx,
		NamedParameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query children page: %w", err)
	}
	defer rows.Close()

	var children []ChildRecord
	for rows.Next() {
		var child ChildRecord
		if err := rows.Row(&child); err != nil {
			log.Warn().Err(err).Msg("Failed to read child row")
			continue
		}
		children = append(children, child)
	}
	return children, rows.Err()
}

// Close closes the cluster connection.
func (s *CouchbaseStore) Close() error {
	return s.cluster.Close(nil)
}
