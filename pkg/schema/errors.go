package schema

import (
	"errors"
	"fmt"
)

var (
	ErrMissingParameter    = errors.New("missing parameter")
	ErrMalformedParameter  = errors.New("malformed parameter")
	ErrUnexpectedParameter = errors.New("unexpected parameter")
	ErrUnimplementedType   = errors.New("unimplemented type")
	ErrUnknownMethod       = errors.New("unknown method")

	// ErrInvalidFormat is returned for every structural mismatch between a
	// packet and its schema.
	ErrInvalidFormat = errors.New("invalid format spec")
)

// ValidationError reports the first outbound parameter that does not match
// its method schema. It always signals a caller programming error.
type ValidationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Key, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DecodeError reports an inbound value that does not match its schema.
// Path is the dotted location of the offending value.
type DecodeError struct {
	Path   string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidFormat, e.Reason)
	}
	return fmt.Sprintf("%v at %s: %s", ErrInvalidFormat, e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrInvalidFormat }

// ConfigError reports a malformed schema dictionary. It is fatal at load time.
type ConfigError struct {
	Source string
	Entry  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("schema config %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("schema config %s: entry %q: %s", e.Source, e.Entry, e.Reason)
}
