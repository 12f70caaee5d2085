// Package firestore implements the document-store client: a gRPC channel to
// Firestore v1 with per-call credential injection, plus thin wrappers for the
// document, query and listen RPCs.
package firestore

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sort"

	"firelink/config"
	"firelink/internal/domain/service"

	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	firestoreTarget = "firestore.googleapis.com:443"

	// listenTargetID tags the single watch target of a Listen stream. The
	// value is arbitrary but must be non-zero.
	listenTargetID = 1
)

// Client wraps the transport channel and a per-request interceptor bound to
// one session's ID token and one database's resource path. It is safe to
// share across goroutines; the underlying channel is shared, not copied.
// Rebuild the client when the ID token changes.
type Client struct {
	conn     *grpc.ClientConn
	rpc      firestorepb.FirestoreClient
	database string
}

// Dial establishes the channel: TLS to the real service, or plaintext to a
// configured emulator. Extra dial options are appended last so tests can
// inject their own transport.
func Dial(cfg *config.Config, idToken string, extraOpts ...grpc.DialOption) (*Client, error) {
	target := firestoreTarget
	transport := credentials.NewTLS(&tls.Config{})

	if cfg.Emulator != nil && cfg.Emulator.Firestore != "" {
		target = cfg.Emulator.Firestore
		transport = insecure.NewCredentials()
	}

	database := fmt.Sprintf("projects/%s/databases/(default)", cfg.Firebase.ProjectID)
	unary, stream := credentialInterceptors("Bearer "+idToken, database)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(transport),
		grpc.WithChainUnaryInterceptor(unary),
		grpc.WithChainStreamInterceptor(stream),
	}
	opts = append(opts, extraOpts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "dial firestore")
	}

	return &Client{
		conn:     conn,
		rpc:      firestorepb.NewFirestoreClient(conn),
		database: database,
	}, nil
}

// credentialInterceptors stamp the bearer token and the database resource
// prefix onto every outgoing call.
func credentialInterceptors(bearer, database string) (grpc.UnaryClientInterceptor, grpc.StreamClientInterceptor) {
	annotate := func(ctx context.Context) context.Context {
		return metadata.AppendToOutgoingContext(ctx,
			"authorization", bearer,
			"google-cloud-resource-prefix", database,
		)
	}

	unary := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(annotate(ctx), method, req, reply, cc, opts...)
	}

	stream := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(annotate(ctx), desc, cc, method, opts...)
	}

	return unary, stream
}

// documentsRoot returns "projects/{p}/databases/(default)/documents".
func (c *Client) documentsRoot() string {
	return c.database + "/documents"
}

// documentName resolves a path relative to the documents root.
func (c *Client) documentName(documentPath string) string {
	return c.documentsRoot() + "/" + documentPath
}

// CreateDocument creates collection/{documentID} with the given fields.
func (c *Client) CreateDocument(ctx context.Context, collectionID, documentID string, fields map[string]*firestorepb.Value) (*firestorepb.Document, error) {
	return c.rpc.CreateDocument(ctx, &firestorepb.CreateDocumentRequest{
		Parent:       c.documentsRoot(),
		CollectionId: collectionID,
		DocumentId:   documentID,
		Document:     &firestorepb.Document{Fields: fields},
	})
}

// GetDocument reads one document.
func (c *Client) GetDocument(ctx context.Context, documentPath string) (*firestorepb.Document, error) {
	return c.rpc.GetDocument(ctx, &firestorepb.GetDocumentRequest{
		Name: c.documentName(documentPath),
	})
}

// UpdateDocument patches exactly the fields named in the map. The update
// mask is the map's key set, so fields not named are left untouched on the
// remote document.
func (c *Client) UpdateDocument(ctx context.Context, documentPath string, fields map[string]*firestorepb.Value) (*firestorepb.Document, error) {
	mask := make([]string, 0, len(fields))
	for path := range fields {
		mask = append(mask, path)
	}
	sort.Strings(mask)

	return c.rpc.UpdateDocument(ctx, &firestorepb.UpdateDocumentRequest{
		Document: &firestorepb.Document{
			Name:   c.documentName(documentPath),
			Fields: fields,
		},
		UpdateMask: &firestorepb.DocumentMask{FieldPaths: mask},
	})
}

// DeleteDocument removes one document.
func (c *Client) DeleteDocument(ctx context.Context, documentPath string) error {
	_, err := c.rpc.DeleteDocument(ctx, &firestorepb.DeleteDocumentRequest{
		Name: c.documentName(documentPath),
	})

	return err
}

// RunQuery executes a structured query and drains the server stream. A
// mid-stream error discards the partial result set; callers get everything
// or an error, never a truncated list.
func (c *Client) RunQuery(ctx context.Context, query service.Query) ([]*firestorepb.RunQueryResponse, error) {
	parent := c.documentsRoot()
	if query.Parent != "" {
		parent += "/" + query.Parent
	}

	structured := &firestorepb.StructuredQuery{
		From: []*firestorepb.StructuredQuery_CollectionSelector{
			{CollectionId: query.CollectionID},
		},
	}

	if query.OrderByField != "" {
		direction := firestorepb.StructuredQuery_ASCENDING
		if query.Direction == service.Descending {
			direction = firestorepb.StructuredQuery_DESCENDING
		}
		structured.OrderBy = []*firestorepb.StructuredQuery_Order{
			{
				Field:     &firestorepb.StructuredQuery_FieldReference{FieldPath: query.OrderByField},
				Direction: direction,
			},
		}
	}

	if query.Limit > 0 {
		structured.Limit = wrapperspb.Int32(query.Limit)
	}

	stream, err := c.rpc.RunQuery(ctx, &firestorepb.RunQueryRequest{
		Parent:    parent,
		QueryType: &firestorepb.RunQueryRequest_StructuredQuery{StructuredQuery: structured},
	})
	if err != nil {
		return nil, err
	}

	var responses []*firestorepb.RunQueryResponse
	for {
		response, err := stream.Recv()
		if err == io.EOF {
			return responses, nil
		}
		if err != nil {
			return nil, err
		}

		responses = append(responses, response)
	}
}

// Listen opens a change subscription on a document or collection path. The
// outbound half stays pending after the one-shot add-target message; inbound
// messages flow until ctx is cancelled or the server errors.
func (c *Client) Listen(ctx context.Context, targetPath string) (service.ListenStream, error) {
	stream, err := c.rpc.Listen(ctx)
	if err != nil {
		return nil, err
	}

	err = stream.Send(&firestorepb.ListenRequest{
		Database: c.database,
		TargetChange: &firestorepb.ListenRequest_AddTarget{
			AddTarget: &firestorepb.Target{
				TargetId: listenTargetID,
				TargetType: &firestorepb.Target_Documents{
					Documents: &firestorepb.Target_DocumentsTarget{
						Documents: []string{c.documentName(targetPath)},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "send add-target")
	}

	return stream, nil
}

// Close tears down the transport channel.
func (c *Client) Close() error {
	return c.conn.Close()
}
