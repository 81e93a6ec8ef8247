package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard errors returned by the sidecar supervisor and transport.
var (
	// ErrRestarted indicates the analyzer instance died while the
	// request was in flight.
	ErrRestarted = errors.New("sidecar restarted")

	// ErrUnavailable indicates the supervisor has given up restarting
	// the analyzer.
	ErrUnavailable = errors.New("sidecar unavailable")

	// ErrShutdown indicates the supervisor has been shut down.
	ErrShutdown = errors.New("sidecar supervisor shut down")

	// ErrNotSupported indicates the analyzer does not implement the
	// requested method.
	ErrNotSupported = errors.New("method not supported by sidecar")
)

// RPCError is a JSON-RPC error object received from the analyzer.
type RPCError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("sidecar rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes used on the sidecar wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)
