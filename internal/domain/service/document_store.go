package service

import (
	"context"

	"cloud.google.com/go/firestore/apiv1/firestorepb"
)

// QueryDirection orders a structured query by a single field.
type QueryDirection int

const (
	// Ascending sorts results by the order field, smallest first.
	Ascending QueryDirection = iota
	// Descending sorts results by the order field, largest first.
	Descending
)

// Query is the minimal structured-query shape passed through to the store:
// one collection, optional single-field ordering, optional result limit, and
// an optional sub-collection parent path prefix.
type Query struct {
	// Parent is a document path prefix for sub-collection queries, or ""
	// for a root collection.
	Parent string
	// CollectionID names the collection to query.
	CollectionID string
	// OrderByField is the field to sort on; "" disables ordering.
	OrderByField string
	Direction    QueryDirection
	// Limit caps the result count; 0 means no limit.
	Limit int32
}

// ListenStream yields inbound change notifications from a Listen call until
// the stream errors or its context is cancelled.
type ListenStream interface {
	Recv() (*firestorepb.ListenResponse, error)
}

// DocumentStore is the configured transport/interceptor pair used to call the
// remote document store. Document values are the store's own typed value
// model, passed through opaquely.
//
// Paths are relative to the database's documents root: "collection/docid".
type DocumentStore interface {
	CreateDocument(ctx context.Context, collectionID, documentID string, fields map[string]*firestorepb.Value) (*firestorepb.Document, error)
	GetDocument(ctx context.Context, documentPath string) (*firestorepb.Document, error)
	// UpdateDocument patches exactly the fields named in the map; the update
	// mask is derived from the map's key set.
	UpdateDocument(ctx context.Context, documentPath string, fields map[string]*firestorepb.Value) (*firestorepb.Document, error)
	DeleteDocument(ctx context.Context, documentPath string) error

	// RunQuery drains the server stream and returns all responses. A
	// mid-stream error discards partial results and is returned instead.
	RunQuery(ctx context.Context, query Query) ([]*firestorepb.RunQueryResponse, error)

	// Listen opens a long-lived change subscription on a document or
	// collection path. The stream ends when ctx is cancelled or the server
	// errors.
	Listen(ctx context.Context, targetPath string) (ListenStream, error)

	// Close tears down the transport channel.
	Close() error
}
