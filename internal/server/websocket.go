package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/module"
	"github.com/emrgen/linkfeed/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/ast"
)

const (
	initTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second

	closeForbidden = 4403
)

// wsSession is one client connection. Operations run in their own
// goroutines and share the connection through send.
type wsSession struct {
	handler  *Handler
	conn     *websocket.Conn
	protocol transport.Protocol

	writeMu sync.Mutex

	mu  sync.Mutex
	ops map[string]*wsOperation
	wg  sync.WaitGroup
}

type wsOperation struct {
	cancel context.CancelFunc
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	protocol, err := transport.ParseProtocol(conn.Subprotocol())
	if err != nil {
		logrus.Warnf("websocket: %v", err)
		return
	}

	s := &wsSession{
		handler:  h,
		conn:     conn,
		protocol: protocol,
		ops:      make(map[string]*wsOperation),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	ctx, ok := s.init(ctx)
	if !ok {
		return
	}
	s.serve(ctx)
}

// init waits for connection_init and authenticates its token.
func (s *wsSession) init(ctx context.Context) (context.Context, bool) {
	s.conn.SetReadDeadline(time.Now().Add(initTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		var msg transport.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			logrus.Debugf("websocket init: %v", err)
			return ctx, false
		}

		switch msg.Type {
		case transport.MsgPing:
			s.send("", transport.MsgPong, nil)
			continue
		case transport.MsgConnectionInit:
		default:
			logrus.Debugf("websocket: %s before connection_init", msg.Type)
			s.closeWith(closeForbidden, "connection not initialised")
			return ctx, false
		}

		var payload struct {
			AuthToken string `json:"authToken"`
		}
		if len(msg.Payload) > 0 {
			_ = json.Unmarshal(msg.Payload, &payload)
		}

		authed, err := module.Authenticate(ctx, s.handler.tokens, payload.AuthToken)
		if err != nil {
			logrus.Debugf("websocket init: %v", err)
			if s.protocol == transport.ProtocolGraphQLWS {
				s.send("", transport.MsgConnectionError, &gql.Error{Message: module.ErrInvalidToken.Error()})
			}
			s.closeWith(closeForbidden, "Forbidden")
			return ctx, false
		}

		s.send("", transport.MsgConnectionAck, nil)
		if s.protocol == transport.ProtocolGraphQLWS {
			s.send("", transport.MsgKeepAlive, nil)
		}
		return authed, true
	}
}

func (s *wsSession) serve(ctx context.Context) {
	for {
		var msg transport.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.Debugf("websocket read: %v", err)
			}
			return
		}

		switch msg.Type {
		case transport.MsgStart, transport.MsgSubscribe:
			s.start(ctx, msg)
		case transport.MsgStop, transport.MsgComplete:
			s.stop(msg.ID)
		case transport.MsgPing:
			s.send("", transport.MsgPong, msg.Payload)
		case transport.MsgPong, transport.MsgKeepAlive:
		case transport.MsgConnectionTerminate:
			s.closeWith(websocket.CloseNormalClosure, "")
			return
		default:
			logrus.Debugf("websocket: unknown message type %q", msg.Type)
		}
	}
}

func (s *wsSession) start(ctx context.Context, msg transport.Message) {
	var req gql.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		s.fail(msg.ID, gql.Errors{{Message: "invalid payload: " + err.Error()}})
		return
	}

	op, errs := prepare(&req)
	if errs != nil {
		s.fail(msg.ID, toErrors(errs))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	current := &wsOperation{cancel: cancel}
	s.mu.Lock()
	if prev, ok := s.ops[msg.ID]; ok {
		prev.cancel()
	}
	s.ops[msg.ID] = current
	s.mu.Unlock()

	if op.op.Operation != ast.Subscription {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.finish(msg.ID, current)
			s.send(msg.ID, s.protocol.DataType(), s.handler.execute(ctx, op))
			s.send(msg.ID, transport.MsgComplete, nil)
		}()
		return
	}

	// subscribe before reading the next message so events published after
	// it are delivered
	results, errs := s.handler.subscribe(ctx, op)
	if errs != nil {
		s.finish(msg.ID, current)
		s.fail(msg.ID, toErrors(errs))
		return
	}
	logrus.Debugf("websocket: subscription %s started", msg.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(msg.ID, current)

		for resp := range results {
			s.send(msg.ID, s.protocol.DataType(), resp)
		}
		if ctx.Err() == nil {
			s.send(msg.ID, transport.MsgComplete, nil)
		}
	}()
}

func (s *wsSession) stop(id string) {
	s.mu.Lock()
	op, ok := s.ops[id]
	s.mu.Unlock()
	if ok {
		logrus.Debugf("websocket: subscription %s stopped", id)
		op.cancel()
	}
}

func (s *wsSession) finish(id string, op *wsOperation) {
	op.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	// a restarted operation reuses the id
	if s.ops[id] == op {
		delete(s.ops, id)
	}
}

// fail reports operation errors in the shape each protocol expects.
func (s *wsSession) fail(id string, errs gql.Errors) {
	if s.protocol == transport.ProtocolGraphQLWS && len(errs) > 0 {
		s.send(id, transport.MsgError, errs[0])
		return
	}
	s.send(id, transport.MsgError, errs)
}

func (s *wsSession) send(id, typ string, payload any) {
	var msg transport.Message
	if raw, ok := payload.(json.RawMessage); ok {
		msg = transport.Message{ID: id, Type: typ, Payload: raw}
	} else {
		m, err := transport.NewMessage(id, typ, payload)
		if err != nil {
			logrus.Warnf("websocket: encode %s: %v", typ, err)
			return
		}
		msg = m
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		logrus.Debugf("websocket write: %v", err)
	}
}

func (s *wsSession) closeWith(code int, text string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeTimeout))
}
