package transport

import (
	"encoding/json"
	"fmt"

	"github.com/emrgen/linkfeed/internal/gql"
)

// Protocol is a GraphQL over websocket sub-protocol.
type Protocol string

const (
	// ProtocolGraphQLWS is the legacy subscriptions-transport-ws protocol.
	ProtocolGraphQLWS Protocol = "graphql-ws"
	// ProtocolTransportWS is the graphql-ws library protocol.
	ProtocolTransportWS Protocol = "graphql-transport-ws"
)

// message types shared by both protocols
const (
	MsgConnectionInit  = "connection_init"
	MsgConnectionAck   = "connection_ack"
	MsgConnectionError = "connection_error"
	MsgError           = "error"
	MsgComplete        = "complete"
)

// graphql-ws only
const (
	MsgStart               = "start"
	MsgData                = "data"
	MsgStop                = "stop"
	MsgKeepAlive           = "ka"
	MsgConnectionTerminate = "connection_terminate"
)

// graphql-transport-ws only
const (
	MsgSubscribe = "subscribe"
	MsgNext      = "next"
	MsgPing      = "ping"
	MsgPong      = "pong"
)

// Message is one frame of either protocol.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseProtocol accepts a protocol name, empty meaning graphql-ws.
func ParseProtocol(name string) (Protocol, error) {
	switch Protocol(name) {
	case "", ProtocolGraphQLWS:
		return ProtocolGraphQLWS, nil
	case ProtocolTransportWS:
		return ProtocolTransportWS, nil
	}
	return "", fmt.Errorf("unknown websocket protocol %q", name)
}

func (p Protocol) String() string {
	return string(p)
}

// StartType is the client message that begins an operation.
func (p Protocol) StartType() string {
	if p == ProtocolTransportWS {
		return MsgSubscribe
	}
	return MsgStart
}

// StopType is the client message that ends an operation early.
func (p Protocol) StopType() string {
	if p == ProtocolTransportWS {
		return MsgComplete
	}
	return MsgStop
}

// DataType is the server message that carries a result.
func (p Protocol) DataType() string {
	if p == ProtocolTransportWS {
		return MsgNext
	}
	return MsgData
}

// NewMessage builds a frame with a JSON payload.
func NewMessage(id, typ string, payload any) (Message, error) {
	msg := Message{ID: id, Type: typ}
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return msg, err
		}
		msg.Payload = buf
	}
	return msg, nil
}

// DecodeErrors reads an error payload, which is a list of errors in
// graphql-transport-ws and a single error object in graphql-ws.
func DecodeErrors(payload json.RawMessage) gql.Errors {
	if len(payload) == 0 {
		return gql.Errors{{Message: "unknown subscription error"}}
	}

	var list gql.Errors
	if err := json.Unmarshal(payload, &list); err == nil && len(list) > 0 {
		return list
	}

	var single gql.Error
	if err := json.Unmarshal(payload, &single); err == nil && single.Message != "" {
		return gql.Errors{&single}
	}

	return gql.Errors{{Message: string(payload)}}
}
