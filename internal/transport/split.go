package transport

import (
	"context"

	"github.com/emrgen/linkfeed/internal/gql"
)

var _ Transport = (*Split)(nil)

// Split sends subscriptions over the stream transport and every other
// operation over the request transport.
type Split struct {
	request Transport
	stream  Transport
}

func NewSplit(request, stream Transport) *Split {
	return &Split{request: request, stream: stream}
}

func (s *Split) route(req *gql.Request) (Transport, error) {
	kind, err := Kind(req)
	if err != nil {
		return nil, err
	}
	if kind == gql.KindSubscription {
		return s.stream, nil
	}
	return s.request, nil
}

func (s *Split) Execute(ctx context.Context, req *gql.Request) (*gql.Response, error) {
	t, err := s.route(req)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, req)
}

func (s *Split) Subscribe(ctx context.Context, req *gql.Request) (<-chan *gql.Response, error) {
	t, err := s.route(req)
	if err != nil {
		return nil, err
	}
	if t == s.stream {
		return t.Subscribe(ctx, req)
	}

	// a query or mutation asked for as a stream yields its one result
	resp, err := t.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan *gql.Response, 1)
	out <- resp
	close(out)
	return out, nil
}
