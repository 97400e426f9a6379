package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/module"
	"github.com/emrgen/linkfeed/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const maxRequestBody = 1 << 20

// Handler serves GraphQL over HTTP POST and over websocket on the same path.
type Handler struct {
	resolver *Resolver
	tokens   TokenService
	upgrader websocket.Upgrader
	http     http.Handler
}

func NewHandler(resolver *Resolver, tokens TokenService) *Handler {
	h := &Handler{
		resolver: resolver,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{transport.ProtocolGraphQLWS.String(), transport.ProtocolTransportWS.String()},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
	h.http = module.AuthTokenMiddleware(tokens, http.HandlerFunc(h.serveHTTP))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isUpgrade(r) {
		h.serveWebSocket(w, r)
		return
	}
	h.http.ServeHTTP(w, r)
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (h *Handler) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, &gql.Response{Errors: gql.Errors{{Message: "use POST"}}})
		return
	}

	var req gql.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &gql.Response{Errors: gql.Errors{{Message: "invalid request body: " + err.Error()}}})
		return
	}

	op, errs := prepare(&req)
	if errs != nil {
		writeJSON(w, http.StatusBadRequest, &gql.Response{Errors: toErrors(errs)})
		return
	}
	if op.op.Operation == ast.Subscription {
		writeJSON(w, http.StatusBadRequest, &gql.Response{Errors: gql.Errors{{Message: "subscriptions are served over websocket"}}})
		return
	}

	writeJSON(w, http.StatusOK, h.execute(r.Context(), op))
}

// execute runs a query or mutation.
func (h *Handler) execute(ctx context.Context, op *operation) *gql.Response {
	e := &executor{op: op}
	resolve := h.resolver.Query
	if op.op.Operation == ast.Mutation {
		resolve = h.resolver.Mutation
	}
	data := e.resolveRoot(ctx, resolve)
	return e.response(data)
}

// subscribe starts the single root field of a subscription and projects
// each event onto its selection set.
func (h *Handler) subscribe(ctx context.Context, op *operation) (<-chan *gql.Response, gqlerror.List) {
	var root *ast.Field
	for _, sel := range op.op.SelectionSet {
		if f, ok := sel.(*ast.Field); ok && f.Name != "__typename" {
			root = f
			break
		}
	}
	if root == nil {
		return nil, gqlerror.List{gqlerror.Errorf("subscription selects no field")}
	}

	events, err := h.resolver.Subscription(ctx, root)
	if err != nil {
		return nil, gqlerror.List{gqlerror.Errorf("%s", err.Error())}
	}

	key := gql.ResponseKey(root)
	out := make(chan *gql.Response)
	go func() {
		defer close(out)
		for obj := range events {
			e := &executor{op: op}
			data := map[string]any{key: e.project(ctx, obj, root.SelectionSet, ast.Path{ast.PathName(key)})}
			select {
			case out <- e.response(data):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("write response: %v", err)
	}
}
