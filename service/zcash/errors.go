package zcash

import (
	"errors"
	"fmt"
)

// Kind classifies a failed RPC call so callers can tell a dead node from a
// node that answered with something we cannot use.
type Kind string

const (
	// KindTransport means the request never produced a response body
	// (connection refused, timeout, TLS or auth failure).
	KindTransport Kind = "transport"
	// KindEnvelope means the body was not JSON or had no "result" member.
	KindEnvelope Kind = "envelope"
	// KindSchema means "result" did not have the shape the method returns.
	KindSchema Kind = "schema"
	// KindMemo means a shielded memo could not be decoded.
	KindMemo Kind = "memo"
	// KindNode means the node answered with a JSON-RPC error object.
	KindNode Kind = "node"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrTransport = errors.New("zcash rpc transport error")
	ErrEnvelope  = errors.New("zcash rpc envelope error")
	ErrSchema    = errors.New("zcash rpc schema error")
	ErrMemo      = errors.New("zcash memo decode error")
	ErrNode      = errors.New("zcash node error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindEnvelope:
		return ErrEnvelope
	case KindSchema:
		return ErrSchema
	case KindMemo:
		return ErrMemo
	case KindNode:
		return ErrNode
	default:
		return nil
	}
}

// Error is returned by every Client method that fails.
type Error struct {
	Kind   Kind
	Method string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Method, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// AggregateError reports the call that failed a fan-out operation.
// Results of the other calls are discarded.
type AggregateError struct {
	Index   int
	Address string
	Err     error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("aggregate failed at address %d (%s): %v", e.Index, e.Address, e.Err)
}

func (e *AggregateError) Unwrap() error { return e.Err }

// ErrNoAddressWithAmount is returned by AddressWithAmount when no shielded
// address holds enough funds.
var ErrNoAddressWithAmount = errors.New("no shielded address holds the requested amount")
