package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/linkfeed/internal/gql"
)

var (
	// ErrUnsupportedOperation is returned by a transport asked to run an
	// operation kind it cannot carry.
	ErrUnsupportedOperation = errors.New("operation not supported by transport")
	// ErrClosed is returned after a transport is closed.
	ErrClosed = errors.New("transport closed")
)

// Transport carries GraphQL operations to the server.
type Transport interface {
	// Execute runs an operation and returns its single result.
	Execute(ctx context.Context, req *gql.Request) (*gql.Response, error)
	// Subscribe starts a streaming operation. The channel is closed when the
	// server completes the operation, the context ends or the transport is
	// closed.
	Subscribe(ctx context.Context, req *gql.Request) (<-chan *gql.Response, error)
}

// StatusError is a non-2xx HTTP response without GraphQL errors.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server responded %d", e.StatusCode)
	}
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Body)
}

// Kind parses the request to find its operation kind.
func Kind(req *gql.Request) (gql.OperationKind, error) {
	doc, err := gql.Parse(req.Query)
	if err != nil {
		return "", err
	}
	return doc.Kind(), nil
}
