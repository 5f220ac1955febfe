// Package protocol defines the messages exchanged between kiln units and
// the collaborators init talks to.
//
// Every request travels with its reply destination as the first attached
// capability. Payloads are JSON; capabilities never appear in the payload,
// only in the message's attachment list.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProtocol matches every *Error via errors.Is.
var ErrProtocol = errors.New("protocol error")

// Error reports a reply that does not fit the protocol: an undecodable
// payload, an unexpected response variant, or a missing capability.
type Error struct {
	// Op names the exchange, e.g. "storage.get" or "registry.bootstrap"
	Op string

	// Reason describes what was wrong with the reply
	Reason string

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrProtocol) hold for every *Error.
func (e *Error) Is(target error) bool {
	return target == ErrProtocol
}

// Errorf builds an *Error for op.
func Errorf(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Encode encodes a protocol value to bytes.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return data, nil
}

// MustEncode encodes values whose shape is fixed at compile time.
func MustEncode(v interface{}) []byte {
	data, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode decodes data into v, reporting failures as an *Error for op.
func Decode(op string, data []byte, v interface{}) error {
	if len(data) == 0 {
		return Errorf(op, "empty payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Op: op, Reason: "malformed payload", Err: err}
	}
	return nil
}

// HookNotice is sent to a hook together with the capability of the target
// registry assembled under the hook's name.
type HookNotice struct {
	Target   string   `json:"target"`
	Services []string `json:"services,omitempty"`
}
