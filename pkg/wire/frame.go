// Package wire frames exchange packets.
//
// Server frames are a JSON array of packets, each a positional tuple
// [channel, eventId, message, requestId?]. Client frames are a JSON array of
// request objects carrying the method tag "c" and the request id "rid".
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// codec keeps numbers as json.Number so large integers and decimal strings
// reach the schema decoder untouched.
var codec = jsoniter.Config{
	UseNumber:   true,
	EscapeHTML:  false,
	SortMapKeys: true,
}.Froze()

// NoChannel is the channel of packets that are not tied to a market.
const NoChannel = "0"

var ErrMalformedFrame = errors.New("malformed frame")

// Packet is one server packet. Message is the raw wire value, with numbers
// as json.Number. RequestID is zero for unsolicited packets.
type Packet struct {
	Channel   string
	EventID   int
	Message   any
	RequestID uint64
}

// Market returns the market a packet belongs to, if any.
func (p Packet) Market() (string, bool) {
	if p.Channel == "" || p.Channel == NoChannel {
		return "", false
	}
	return p.Channel, true
}

func (p Packet) tuple() []any {
	t := []any{channelValue(p.Channel), p.EventID, p.Message}
	if p.RequestID != 0 {
		t = append(t, p.RequestID)
	}
	return t
}

func channelValue(ch string) any {
	if ch == "" || ch == NoChannel {
		return 0
	}
	return ch
}

// DecodeFrame splits a server frame into packets.
func DecodeFrame(frame []byte) ([]Packet, error) {
	var raw [][]any
	if err := codec.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	packets := make([]Packet, 0, len(raw))
	for i, tuple := range raw {
		p, err := decodePacket(tuple)
		if err != nil {
			return nil, fmt.Errorf("%w: packet %d: %v", ErrMalformedFrame, i, err)
		}
		packets = append(packets, p)
	}
	return packets, nil
}

func decodePacket(tuple []any) (Packet, error) {
	var p Packet
	if len(tuple) < 3 || len(tuple) > 4 {
		return p, fmt.Errorf("expected 3 or 4 elements, got %d", len(tuple))
	}

	switch ch := tuple[0].(type) {
	case string:
		p.Channel = ch
	case json.Number:
		p.Channel = ch.String()
	case nil:
		p.Channel = NoChannel
	default:
		return p, fmt.Errorf("channel: unexpected %T", tuple[0])
	}

	id, err := toUint(tuple[1])
	if err != nil {
		return p, fmt.Errorf("event id: %v", err)
	}
	p.EventID = int(id)
	p.Message = tuple[2]

	if len(tuple) == 4 && tuple[3] != nil {
		if p.RequestID, err = toUint(tuple[3]); err != nil {
			return p, fmt.Errorf("request id: %v", err)
		}
	}
	return p, nil
}

// EncodeFrame renders packets as one server frame.
func EncodeFrame(packets ...Packet) ([]byte, error) {
	tuples := make([]any, len(packets))
	for i, p := range packets {
		tuples[i] = p.tuple()
	}
	return codec.Marshal(tuples)
}

func toUint(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("%d is negative", x)
		}
		return uint64(x), nil
	case json.Number:
		return strconv.ParseUint(x.String(), 10, 64)
	case string:
		return strconv.ParseUint(x, 10, 64)
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return 0, fmt.Errorf("%v is not an unsigned integer", x)
		}
		return uint64(x), nil
	}
	return 0, fmt.Errorf("unexpected %T", v)
}
