package usecase

import (
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"

	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
)

// OpKind tags which store operation a response answers.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpRead   OpKind = "read"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
	OpQuery  OpKind = "query"
)

// Request is one fire-and-forget store operation. The caller-chosen
// correlation id is echoed unchanged on the response; the bridge does not
// enforce uniqueness, so callers that overlap ids must disambiguate
// deliveries themselves.
type Request interface {
	CorrelationID() int64
	Kind() OpKind
}

// CreateRequest creates collection/{DocumentID} with the given fields.
type CreateRequest struct {
	ID           int64
	CollectionID string
	DocumentID   string
	Fields       map[string]*firestorepb.Value
}

func (r CreateRequest) CorrelationID() int64 { return r.ID }
func (r CreateRequest) Kind() OpKind         { return OpCreate }

// ReadRequest reads the document at DocumentPath.
type ReadRequest struct {
	ID           int64
	DocumentPath string
}

func (r ReadRequest) CorrelationID() int64 { return r.ID }
func (r ReadRequest) Kind() OpKind         { return OpRead }

// UpdateRequest patches exactly the fields named in Fields; the update mask
// is derived from the map's key set.
type UpdateRequest struct {
	ID           int64
	DocumentPath string
	Fields       map[string]*firestorepb.Value
}

func (r UpdateRequest) CorrelationID() int64 { return r.ID }
func (r UpdateRequest) Kind() OpKind         { return OpUpdate }

// DeleteRequest deletes the document at DocumentPath.
type DeleteRequest struct {
	ID           int64
	DocumentPath string
}

func (r DeleteRequest) CorrelationID() int64 { return r.ID }
func (r DeleteRequest) Kind() OpKind         { return OpDelete }

// QueryRequest runs a structured query over one collection.
type QueryRequest struct {
	ID int64
	// Parent optionally prefixes a sub-collection's document path.
	Parent       string
	CollectionID string
	OrderByField string
	Direction    service.QueryDirection
	// Limit caps the result count; 0 means no limit.
	Limit int32
}

func (r QueryRequest) CorrelationID() int64 { return r.ID }
func (r QueryRequest) Kind() OpKind         { return OpQuery }

// Response pairs an operation result with the request's correlation id.
// Failures arrive as a non-nil Err, never as a missing response.
type Response struct {
	ID   int64
	Kind OpKind

	// Document is set for create/read/update successes.
	Document *firestorepb.Document
	// Results is set for query successes; a query that failed mid-stream
	// discards its partial results and reports only Err.
	Results []*firestorepb.RunQueryResponse

	Err error
}

// ListenerEvent is one inbound change notification, tagged with the
// caller's label. A terminal stream error is delivered as a final event
// with Err set.
type ListenerEvent struct {
	Label   string
	Message *firestorepb.ListenResponse
	Err     error
}

// StoreUsecase bridges store operations issued on the tick goroutine to the
// concurrent runtime and injects results back. All methods and handlers run
// on the tick goroutine.
type StoreUsecase interface {
	// OnSessionChanged drives the client bootstrap; wire it to the auth
	// machine's session handler. The first session advances
	// Start->Init->CreateClient->Ready; a refreshed token rebuilds the
	// client when configured to.
	OnSessionChanged(session *entity.Session)

	// State returns the bootstrap state.
	State() entity.ClientState

	// Dispatch issues one operation. Responses arrive via the response
	// handler on a later tick, including the not-ready failure case.
	Dispatch(req Request)

	// AddListener opens a change subscription on a document or collection
	// path and returns a handle for cancellation. Returns false unless
	// Ready.
	AddListener(targetPath, label string) (uuid.UUID, bool)

	// RemoveListener cancels a subscription. Unknown handles are ignored.
	RemoveListener(id uuid.UUID)

	// SetResponseHandler registers the callback for operation responses.
	SetResponseHandler(fn func(Response))

	// SetListenerHandler registers the callback for listener events.
	SetListenerHandler(fn func(ListenerEvent))

	// Close cancels all listeners and tears down the client.
	Close()
}
