package mcpjsonrpc

import (
	"bytes"
	"encoding/json"
)

// Based on JSON-RPC 2.0 Specification: https://www.jsonrpc.org/specification

// Version is the only protocol version accepted on the wire.
const Version = "2.0"

// Envelope holds the routing fields of a JSON-RPC message. Params and
// results are left to the MCP server.
type Envelope struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"` // absent for notifications
}

// Response represents a JSON-RPC error response produced outside the MCP server.
type Response struct {
	Version string `json:"jsonrpc"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"` // null when the request id could not be determined
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error codes (subset, based on JSON-RPC spec)
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NewErrorResponse builds an error response with a null id.
func NewErrorResponse(code int, message string) Response {
	return Response{
		Version: Version,
		Error:   &Error{Code: code, Message: message},
		ID:      nil,
	}
}

// IsBatch reports whether raw is a JSON array, i.e. a JSON-RPC batch.
func IsBatch(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// SplitBatch decodes a batch into its elements, in order.
func SplitBatch(raw []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// IsNotification reports whether msg is a request without an id.
// Messages that cannot be decoded are not notifications.
func IsNotification(msg json.RawMessage) bool {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return false
	}
	return env.Method != "" && len(env.ID) == 0
}
