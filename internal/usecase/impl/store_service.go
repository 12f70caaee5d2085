package impl

import (
	"context"
	"log/slog"

	"firelink/config"
	"firelink/internal/domain/entity"
	"firelink/internal/domain/service"
	"firelink/internal/loop"
	"firelink/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotReady is delivered as the response error for operations dispatched
// before the client bootstrap reaches ready.
var ErrNotReady = errors.New("document store client not ready")

// StoreDialer builds a document-store client authenticated with the given ID
// token. Production wires the Firestore gRPC client; tests inject fakes.
type StoreDialer func(idToken string) (service.DocumentStore, error)

type listenerEntry struct {
	label  string
	cancel context.CancelFunc
}

// storeService bridges fire-and-forget store operations to background
// goroutines and injects results back through the loop. Like the auth
// machine, all methods and posted closures run on the tick goroutine.
type storeService struct {
	cfg    *config.Config
	logger *slog.Logger
	lp     *loop.Loop
	dial   StoreDialer

	state   entity.ClientState
	store   service.DocumentStore
	idToken string

	listeners map[uuid.UUID]*listenerEntry

	responseHandler func(usecase.Response)
	listenerHandler func(usecase.ListenerEvent)
}

// NewStoreService wires the operation bridge.
func NewStoreService(cfg *config.Config, logger *slog.Logger, lp *loop.Loop, dial StoreDialer) usecase.StoreUsecase {
	return &storeService{
		cfg:       cfg,
		logger:    logger,
		lp:        lp,
		dial:      dial,
		state:     entity.ClientStart,
		listeners: make(map[uuid.UUID]*listenerEntry),
	}
}

func (s *storeService) State() entity.ClientState {
	return s.state
}

func (s *storeService) SetResponseHandler(fn func(usecase.Response)) {
	s.responseHandler = fn
}

func (s *storeService) SetListenerHandler(fn func(usecase.ListenerEvent)) {
	s.listenerHandler = fn
}

// OnSessionChanged drives the bootstrap. A nil session tears the client
// down; the first session builds it; a refreshed token rebuilds it when
// configured to, since the old client keeps stamping the stale token on
// every call.
func (s *storeService) OnSessionChanged(session *entity.Session) {
	if !session.LoggedIn() {
		s.teardown()

		return
	}

	switch s.state {
	case entity.ClientStart:
		s.createClient(session.IDToken)
	case entity.ClientReady:
		if session.IDToken != s.idToken && s.cfg.Firebase.ShouldRebuildOnRefresh() {
			s.logger.Info("session token changed, rebuilding store client")
			s.closeStore()
			s.state = entity.ClientStart
			s.createClient(session.IDToken)
		}
	case entity.ClientInit, entity.ClientCreate:
		// Bootstrap already in flight; record the fresher token so the
		// finished dial redials instead of binding the stale one.
		if session.IDToken != s.idToken && s.cfg.Firebase.ShouldRebuildOnRefresh() {
			s.idToken = session.IDToken
		}
	}
}

// createClient walks Start -> Init -> CreateClient on this tick and reaches
// Ready from a posted closure once the dial completes.
func (s *storeService) createClient(idToken string) {
	s.state = entity.ClientInit
	s.idToken = idToken
	s.state = entity.ClientCreate

	s.dialAsync(idToken)
}

func (s *storeService) dialAsync(idToken string) {
	go func() {
		store, err := s.dial(idToken)
		s.lp.Post(func() {
			s.onClientCreated(idToken, store, err)
		})
	}()
}

func (s *storeService) onClientCreated(idToken string, store service.DocumentStore, err error) {
	// A logout while the dial was in flight obsoletes this client.
	if s.state != entity.ClientCreate {
		if store != nil {
			_ = store.Close()
		}

		return
	}

	// A refreshed token arrived mid-dial; this client is bound to the stale
	// bearer, so drop it and redial with the current one.
	if s.idToken != idToken {
		if store != nil {
			_ = store.Close()
		}
		s.dialAsync(s.idToken)

		return
	}

	if err != nil {
		s.logger.Error("failed to create store client", slog.Any("error", err))
		s.state = entity.ClientStart

		return
	}

	s.store = store
	s.state = entity.ClientReady
	s.logger.Info("store client ready")
}

// Dispatch issues one operation. The response, including the not-ready
// failure, always arrives through the response handler on a later tick so
// callers see a single delivery path.
func (s *storeService) Dispatch(req usecase.Request) {
	if s.state != entity.ClientReady || s.store == nil {
		s.lp.Post(func() {
			s.deliver(usecase.Response{
				ID:   req.CorrelationID(),
				Kind: req.Kind(),
				Err:  ErrNotReady,
			})
		})

		return
	}

	store := s.store

	go func() {
		response := execute(context.Background(), store, req)
		s.lp.Post(func() {
			s.deliver(response)
		})
	}()
}

// execute runs one typed request against the store.
func execute(ctx context.Context, store service.DocumentStore, req usecase.Request) usecase.Response {
	response := usecase.Response{ID: req.CorrelationID(), Kind: req.Kind()}

	switch r := req.(type) {
	case usecase.CreateRequest:
		response.Document, response.Err = store.CreateDocument(ctx, r.CollectionID, r.DocumentID, r.Fields)
	case usecase.ReadRequest:
		response.Document, response.Err = store.GetDocument(ctx, r.DocumentPath)
	case usecase.UpdateRequest:
		response.Document, response.Err = store.UpdateDocument(ctx, r.DocumentPath, r.Fields)
	case usecase.DeleteRequest:
		response.Err = store.DeleteDocument(ctx, r.DocumentPath)
	case usecase.QueryRequest:
		response.Results, response.Err = store.RunQuery(ctx, service.Query{
			Parent:       r.Parent,
			CollectionID: r.CollectionID,
			OrderByField: r.OrderByField,
			Direction:    r.Direction,
			Limit:        r.Limit,
		})
	default:
		response.Err = errors.Errorf("unsupported request type %T", req)
	}

	return response
}

func (s *storeService) deliver(response usecase.Response) {
	if s.responseHandler != nil {
		s.responseHandler(response)
	}
}

// AddListener opens a change subscription and returns its handle. Events
// arrive tagged with label; a terminal stream error arrives as a final event
// with Err set, after which the handle is dead.
func (s *storeService) AddListener(targetPath, label string) (uuid.UUID, bool) {
	if s.state != entity.ClientReady || s.store == nil {
		return uuid.Nil, false
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	s.listeners[id] = &listenerEntry{label: label, cancel: cancel}

	store := s.store

	go func() {
		defer cancel()

		stream, err := store.Listen(ctx, targetPath)
		if err != nil {
			s.finishListener(id, label, ctx, err)

			return
		}

		for {
			message, err := stream.Recv()
			if err != nil {
				s.finishListener(id, label, ctx, err)

				return
			}

			s.lp.Post(func() {
				if _, live := s.listeners[id]; !live {
					return
				}
				if s.listenerHandler != nil {
					s.listenerHandler(usecase.ListenerEvent{Label: label, Message: message})
				}
			})
		}
	}()

	return id, true
}

// finishListener retires a listener from its own goroutine. Cancellation is
// silent; a server-side failure surfaces as a final error event.
func (s *storeService) finishListener(id uuid.UUID, label string, ctx context.Context, err error) {
	cancelled := ctx.Err() != nil

	s.lp.Post(func() {
		_, live := s.listeners[id]
		delete(s.listeners, id)

		if cancelled || !live {
			return
		}

		if s.listenerHandler != nil {
			s.listenerHandler(usecase.ListenerEvent{Label: label, Err: err})
		}
	})
}

// RemoveListener cancels a subscription. Events already posted but not yet
// ticked are dropped, so no event for this handle arrives after the call.
func (s *storeService) RemoveListener(id uuid.UUID) {
	entry, ok := s.listeners[id]
	if !ok {
		return
	}

	entry.cancel()
	delete(s.listeners, id)
}

// Close tears the client down.
func (s *storeService) Close() {
	s.teardown()
}

func (s *storeService) teardown() {
	for id, entry := range s.listeners {
		entry.cancel()
		delete(s.listeners, id)
	}

	s.closeStore()
	s.idToken = ""
	s.state = entity.ClientStart
}

func (s *storeService) closeStore() {
	if s.store == nil {
		return
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close store client", slog.Any("error", err))
	}
	s.store = nil
}
