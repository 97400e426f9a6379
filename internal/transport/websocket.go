package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/token"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketSettings struct {
	Protocol         Protocol
	HandshakeTimeout time.Duration
	AuthTimeout      time.Duration
	ReconnectTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout closes a connection that stays silent this long. Zero
	// disables it, which suits servers that never send keep-alives.
	ReadTimeout time.Duration
}

func DefaultWebSocketSettings() *WebSocketSettings {
	return &WebSocketSettings{
		Protocol:         ProtocolGraphQLWS,
		HandshakeTimeout: 5 * time.Second,
		AuthTimeout:      5 * time.Second,
		ReconnectTimeout: 2 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

var _ Transport = (*WebSocket)(nil)

// WebSocket runs operations over one persistent connection. The connection
// is opened on first use and re-opened when it drops, re-sending every
// operation that is still active.
type WebSocket struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	src      token.Source
	settings *WebSocketSettings
	dialer   *websocket.Dialer

	startOnce sync.Once
	done      chan struct{}

	mu   sync.Mutex
	conn *wsConn
	ops  map[string]*operation
}

func NewWebSocket(ctx context.Context, url string, src token.Source, settings *WebSocketSettings) *WebSocket {
	if settings == nil {
		settings = DefaultWebSocketSettings()
	}
	if settings.Protocol == "" {
		settings.Protocol = ProtocolGraphQLWS
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	return &WebSocket{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      url,
		src:      src,
		settings: settings,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
			Subprotocols:     []string{settings.Protocol.String()},
		},
		done: make(chan struct{}),
		ops:  map[string]*operation{},
	}
}

// Execute runs a query or mutation over the socket and returns its first
// result.
func (w *WebSocket) Execute(ctx context.Context, req *gql.Request) (*gql.Response, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, err := w.Subscribe(opCtx, req)
	if err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-out:
		if !ok {
			if err := w.ctx.Err(); err != nil {
				return nil, ErrClosed
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("websocket: operation completed without a result")
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *WebSocket) Subscribe(ctx context.Context, req *gql.Request) (<-chan *gql.Response, error) {
	if w.ctx.Err() != nil {
		return nil, ErrClosed
	}
	w.startOnce.Do(func() {
		go w.run()
	})

	opCtx, cancel := context.WithCancel(ctx)
	op := &operation{
		id:     ulid.Make().String(),
		req:    req,
		ctx:    opCtx,
		cancel: cancel,
		signal: make(chan struct{}, 1),
		out:    make(chan *gql.Response),
	}
	// the operation also ends with the transport
	stopAfter := context.AfterFunc(w.ctx, cancel)

	w.mu.Lock()
	w.ops[op.id] = op
	conn := w.conn
	if conn != nil {
		if err := conn.start(w.settings.Protocol, op); err != nil {
			logrus.Debugf("websocket: start %s deferred to reconnect: %v", op.id, err)
		}
	}
	w.mu.Unlock()

	logrus.Debugf("websocket: operation %s %s started", op.id, req.OperationName)

	go op.pump()
	go func() {
		<-opCtx.Done()
		stopAfter()
		w.stop(op)
	}()

	return op.out, nil
}

// Close ends every operation and the connection.
func (w *WebSocket) Close() error {
	w.cancel()
	started := true
	w.startOnce.Do(func() {
		started = false
	})
	if started {
		<-w.done
	}
	return nil
}

// stop removes an operation ended by its caller and tells the server.
func (w *WebSocket) stop(op *operation) {
	w.mu.Lock()
	_, active := w.ops[op.id]
	delete(w.ops, op.id)
	conn := w.conn
	w.mu.Unlock()

	op.finish()

	if active && conn != nil && w.ctx.Err() == nil {
		msg, _ := NewMessage(op.id, w.settings.Protocol.StopType(), nil)
		if err := conn.write(msg); err != nil {
			logrus.Debugf("websocket: stop %s: %v", op.id, err)
		}
	}
}

// complete removes an operation ended by the server.
func (w *WebSocket) complete(id string) {
	w.mu.Lock()
	op, ok := w.ops[id]
	delete(w.ops, id)
	w.mu.Unlock()

	if ok {
		op.finish()
	}
}

func (w *WebSocket) lookup(id string) *operation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ops[id]
}

func (w *WebSocket) run() {
	defer close(w.done)

	for {
		reconnect := NewReconnect(w.settings.ReconnectTimeout)

		conn, err := w.connect()
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			logrus.Warnf("websocket: connect %s: %v", w.url, err)
			select {
			case <-w.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		w.handle(conn)

		reconnect = NewReconnect(w.settings.ReconnectTimeout)
		select {
		case <-w.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

// connect dials and completes the connection_init handshake.
func (w *WebSocket) connect() (*wsConn, error) {
	ws, _, err := w.dialer.DialContext(w.ctx, w.url, nil)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()

	if ws.Subprotocol() != "" && ws.Subprotocol() != w.settings.Protocol.String() {
		return nil, fmt.Errorf("server chose sub-protocol %q", ws.Subprotocol())
	}

	conn := &wsConn{ws: ws, writeTimeout: w.settings.WriteTimeout}

	bearer, err := token.Bearer(w.src)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if bearer != "" {
		payload["authToken"] = bearer
	}
	init, err := NewMessage("", MsgConnectionInit, payload)
	if err != nil {
		return nil, err
	}
	if err := conn.write(init); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(w.settings.AuthTimeout)
	for {
		ws.SetReadDeadline(deadline)
		msg, err := conn.read()
		if err != nil {
			return nil, err
		}

		switch msg.Type {
		case MsgConnectionAck:
			ws.SetReadDeadline(time.Time{})
			success = true
			logrus.Infof("websocket: connected to %s (%s)", w.url, w.settings.Protocol)
			return conn, nil
		case MsgConnectionError, MsgError:
			return nil, fmt.Errorf("connection rejected: %w", DecodeErrors(msg.Payload))
		case MsgPing:
			if err := conn.pong(msg.Payload); err != nil {
				return nil, err
			}
		}
	}
}

// handle serves one connection until it fails or the transport closes.
func (w *WebSocket) handle(conn *wsConn) {
	handleCtx, handleCancel := context.WithCancel(w.ctx)
	defer handleCancel()

	w.mu.Lock()
	w.conn = conn
	for _, op := range w.ops {
		if err := conn.start(w.settings.Protocol, op); err != nil {
			logrus.Warnf("websocket: resend %s: %v", op.id, err)
			break
		}
	}
	w.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer handleCancel()

		for {
			if w.settings.ReadTimeout > 0 {
				conn.ws.SetReadDeadline(time.Now().Add(w.settings.ReadTimeout))
			}
			msg, err := conn.read()
			if err != nil {
				if handleCtx.Err() == nil {
					logrus.Warnf("websocket: read: %v", err)
				}
				return
			}
			if !w.dispatch(conn, msg) {
				return
			}
		}
	}()

	<-handleCtx.Done()

	w.mu.Lock()
	w.conn = nil
	w.mu.Unlock()

	if w.ctx.Err() != nil {
		if w.settings.Protocol == ProtocolGraphQLWS {
			terminate, _ := NewMessage("", MsgConnectionTerminate, nil)
			conn.write(terminate)
		}
		conn.close()
	}
	conn.ws.Close()
	wg.Wait()
}

// dispatch handles one server message and reports whether the connection
// is still usable.
func (w *WebSocket) dispatch(conn *wsConn, msg *Message) bool {
	switch msg.Type {
	case MsgKeepAlive, MsgPong, MsgConnectionAck:
	case MsgPing:
		if err := conn.pong(msg.Payload); err != nil {
			logrus.Warnf("websocket: pong: %v", err)
			return false
		}
	case MsgData, MsgNext:
		op := w.lookup(msg.ID)
		if op == nil {
			logrus.Debugf("websocket: result for unknown operation %s", msg.ID)
			return true
		}
		var resp gql.Response
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			resp = gql.Response{Errors: gql.Errors{{Message: fmt.Sprintf("invalid result payload: %v", err)}}}
		}
		op.push(&resp)
	case MsgError:
		if op := w.lookup(msg.ID); op != nil {
			op.push(&gql.Response{Errors: DecodeErrors(msg.Payload)})
		}
		w.complete(msg.ID)
	case MsgComplete:
		logrus.Debugf("websocket: operation %s completed", msg.ID)
		w.complete(msg.ID)
	case MsgConnectionError:
		logrus.Warnf("websocket: connection error: %v", DecodeErrors(msg.Payload))
		return false
	default:
		logrus.Debugf("websocket: ignoring message type %q", msg.Type)
	}
	return true
}

// wsConn serializes writes to a gorilla connection, which allows one
// concurrent writer.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsConn) write(msg Message) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, buf)
}

func (c *wsConn) read() (*Message, error) {
	for {
		messageType, buf, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		var msg Message
		if err := json.Unmarshal(buf, &msg); err != nil {
			return nil, fmt.Errorf("invalid message: %w", err)
		}
		return &msg, nil
	}
}

func (c *wsConn) start(protocol Protocol, op *operation) error {
	msg, err := NewMessage(op.id, protocol.StartType(), op.req)
	if err != nil {
		return err
	}
	return c.write(msg)
}

func (c *wsConn) pong(payload json.RawMessage) error {
	return c.write(Message{Type: MsgPong, Payload: payload})
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// operation queues results so one slow consumer does not hold up the
// reader shared by every operation.
type operation struct {
	id     string
	req    *gql.Request
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []*gql.Response
	finished bool
	signal   chan struct{}
	out      chan *gql.Response
}

func (op *operation) push(resp *gql.Response) {
	op.mu.Lock()
	if !op.finished {
		op.queue = append(op.queue, resp)
	}
	op.mu.Unlock()
	op.notify()
}

// finish stops accepting results; queued ones are still delivered unless
// the caller has gone away.
func (op *operation) finish() {
	op.mu.Lock()
	op.finished = true
	op.mu.Unlock()
	op.notify()
}

func (op *operation) notify() {
	select {
	case op.signal <- struct{}{}:
	default:
	}
}

func (op *operation) next() (*gql.Response, bool) {
	for {
		op.mu.Lock()
		if len(op.queue) > 0 {
			resp := op.queue[0]
			op.queue = op.queue[1:]
			op.mu.Unlock()
			return resp, true
		}
		finished := op.finished
		op.mu.Unlock()

		if finished {
			return nil, false
		}

		select {
		case <-op.signal:
		case <-op.ctx.Done():
			return nil, false
		}
	}
}

func (op *operation) pump() {
	defer close(op.out)
	defer op.cancel()

	for {
		resp, ok := op.next()
		if !ok {
			return
		}
		select {
		case op.out <- resp:
		case <-op.ctx.Done():
			return
		}
	}
}
