package wire

import (
	"bytes"
	"fmt"

	"github.com/uhyunpark/dexws/pkg/schema"
)

// Request is one outbound call: validated parameters plus the method tag
// and request id.
type Request map[string]any

// NewRequest copies params and tags the copy with method and rid.
func NewRequest(method string, params map[string]any, rid uint64) Request {
	r := make(Request, len(params)+2)
	for k, v := range params {
		r[k] = v
	}
	r[schema.MethodKey] = method
	r[schema.RequestIDKey] = rid
	return r
}

// Method returns the method tag.
func (r Request) Method() string {
	m, _ := r[schema.MethodKey].(string)
	return m
}

// RequestID returns the request id, or zero when absent or malformed.
func (r Request) RequestID() uint64 {
	rid, err := toUint(r[schema.RequestIDKey])
	if err != nil {
		return 0
	}
	return rid
}

// Params returns the request without the method tag and request id.
func (r Request) Params() map[string]any {
	p := make(map[string]any, len(r))
	for k, v := range r {
		if k == schema.MethodKey || k == schema.RequestIDKey {
			continue
		}
		p[k] = v
	}
	return p
}

// EncodeRequests renders requests as one client frame. The frame is always
// an array, also for a single request.
func EncodeRequests(reqs ...Request) ([]byte, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no requests", ErrMalformedFrame)
	}
	return codec.Marshal(reqs)
}

// DecodeRequests parses a client frame. A bare object is accepted as a
// frame of one request.
func DecodeRequests(frame []byte) ([]Request, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var r Request
		if err := codec.Unmarshal(trimmed, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return []Request{r}, nil
	}

	var reqs []Request
	if err := codec.Unmarshal(trimmed, &reqs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return reqs, nil
}
