package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedQuery = `query FeedQuery { feed { links { id } } }`

const newLinks = `subscription { newLink { id } }`

func TestHTTPExecute(t *testing.T) {
	var auth string
	var got gql.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"data":{"feed":{"links":[{"id":"1"}]}}}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, nil, AuthInterceptor(token.NewMemoryStore("secret")), RequestTimeInterceptor())
	resp, err := h.Execute(context.Background(), &gql.Request{Query: feedQuery, OperationName: "FeedQuery"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "FeedQuery", got.OperationName)
	assert.Equal(t, feedQuery, got.Query)
	assert.Equal(t, map[string]any{"links": []any{map[string]any{"id": "1"}}}, resp.Data["feed"])
}

func TestHTTPWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, nil, AuthInterceptor(token.NewMemoryStore("")))
	_, err := h.Execute(context.Background(), &gql.Request{Query: feedQuery})
	require.NoError(t, err)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
		errors  int
	}{
		{name: "graphql errors on 400", status: http.StatusBadRequest, body: `{"errors":[{"message":"bad query"}]}`, errors: 1},
		{name: "plain 500", status: http.StatusInternalServerError, body: "boom", wantErr: true},
		{name: "errors on 200", status: http.StatusOK, body: `{"data":null,"errors":[{"message":"a"},{"message":"b"}]}`, errors: 2},
		{name: "garbage on 200", status: http.StatusOK, body: "<html>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewHTTP(srv.URL, nil).Execute(context.Background(), &gql.Request{Query: feedQuery})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, resp.Errors, tt.errors)
		})
	}

	t.Run("status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHTTP(srv.URL, nil).Execute(context.Background(), &gql.Request{Query: feedQuery})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, "unavailable", statusErr.Body)
	})
}

func TestHTTPSubscribeUnsupported(t *testing.T) {
	_, err := NewHTTP("http://localhost", nil).Subscribe(context.Background(), &gql.Request{Query: newLinks})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestChainInterceptors(t *testing.T) {
	var order []string
	mark := func(name string) Interceptor {
		return func(ctx context.Context, req *gql.Request, header http.Header, next Handler) (*gql.Response, error) {
			order = append(order, name)
			header.Add("X-Seen", name)
			return next(ctx, req, header)
		}
	}

	chain := ChainInterceptors(mark("a"), mark("b"), mark("c"))
	_, err := chain(context.Background(), &gql.Request{}, make(http.Header), func(ctx context.Context, req *gql.Request, header http.Header) (*gql.Response, error) {
		assert.Equal(t, []string{"a", "b", "c"}, header.Values("X-Seen"))
		return &gql.Response{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

type recordingTransport struct {
	executed   int
	subscribed int
}

func (r *recordingTransport) Execute(ctx context.Context, req *gql.Request) (*gql.Response, error) {
	r.executed++
	return &gql.Response{Data: map[string]any{"ok": true}}, nil
}

func (r *recordingTransport) Subscribe(ctx context.Context, req *gql.Request) (<-chan *gql.Response, error) {
	r.subscribed++
	out := make(chan *gql.Response)
	close(out)
	return out, nil
}

func TestSplit(t *testing.T) {
	request, stream := &recordingTransport{}, &recordingTransport{}
	split := NewSplit(request, stream)
	ctx := context.Background()

	_, err := split.Execute(ctx, &gql.Request{Query: feedQuery})
	require.NoError(t, err)
	_, err = split.Execute(ctx, &gql.Request{Query: `mutation { vote(linkId: "1") { id } }`})
	require.NoError(t, err)
	_, err = split.Subscribe(ctx, &gql.Request{Query: newLinks})
	require.NoError(t, err)

	assert.Equal(t, 2, request.executed)
	assert.Equal(t, 0, request.subscribed)
	assert.Equal(t, 1, stream.subscribed)
	assert.Equal(t, 0, stream.executed)

	// a query asked for as a stream yields its single result
	out, err := split.Subscribe(ctx, &gql.Request{Query: feedQuery})
	require.NoError(t, err)
	resp, ok := <-out
	require.True(t, ok)
	assert.Equal(t, true, resp.Data["ok"])
	_, ok = <-out
	assert.False(t, ok)
	assert.Equal(t, 3, request.executed)

	_, err = split.Execute(ctx, &gql.Request{Query: "{"})
	assert.Error(t, err)
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("")
	require.NoError(t, err)
	assert.Equal(t, ProtocolGraphQLWS, p)

	p, err = ParseProtocol("graphql-transport-ws")
	require.NoError(t, err)
	assert.Equal(t, ProtocolTransportWS, p)
	assert.Equal(t, MsgSubscribe, p.StartType())
	assert.Equal(t, MsgComplete, p.StopType())
	assert.Equal(t, MsgNext, p.DataType())

	_, err = ParseProtocol("mqtt")
	assert.Error(t, err)
}

func TestDecodeErrors(t *testing.T) {
	errs := DecodeErrors(json.RawMessage(`[{"message":"a"},{"message":"b"}]`))
	require.Len(t, errs, 2)
	assert.Equal(t, "b", errs[1].Message)

	errs = DecodeErrors(json.RawMessage(`{"message":"not authenticated"}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "not authenticated", errs[0].Message)

	errs = DecodeErrors(json.RawMessage(`"oops"`))
	require.Len(t, errs, 1)
	assert.Equal(t, `"oops"`, errs[0].Message)

	assert.Len(t, DecodeErrors(nil), 1)
}
