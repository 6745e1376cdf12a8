package client

import (
	"errors"
	"fmt"
)

// Pseudo events raised by the client itself rather than by a server packet.
const (
	EventPacket    = "packet"
	EventWSOpen    = "wsOpen"
	EventWSMessage = "wsMessage"
	EventWSSend    = "wsSend"
	EventWSError   = "wsError"
	EventWSClose   = "wsClose"
)

var pseudoEvents = []string{EventPacket, EventWSOpen, EventWSMessage, EventWSSend, EventWSError, EventWSClose}

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrClosed       = errors.New("client closed")
)

// Event is delivered to listeners. Server events carry the packet fields;
// wsMessage and wsSend carry Frame; wsError and wsClose carry Err.
type Event struct {
	Name      string
	Channel   string
	Message   any
	Parsed    any
	RequestID uint64

	Frame []byte
	Err   error
}

// Listener handles one event. Listeners run on the read loop and must not
// wait for responses from the same client.
type Listener func(Event)

// ListenerID identifies a registered listener for Off.
type ListenerID uint64

type registered struct {
	id ListenerID
	fn Listener
}

// Response is the packet that answered a request.
type Response struct {
	Event   string
	Channel string
	// Market is set when the packet arrived on a market channel.
	Market  string
	Message any
	Parsed  any
}

// ServerError is an error event sent in reply to a request.
type ServerError struct {
	Channel string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// ExchangeConfig is the server-pushed config packet.
type ExchangeConfig struct {
	ContractAddress string
	ChainID         uint64
	FeeCollector    string
}

// Call is one method invocation inside a batch.
type Call struct {
	Method string
	Params map[string]any
}
