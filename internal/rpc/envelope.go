// Package rpc is the JSON-RPC 2.0 protocol layer: envelope types, the tool
// and prompt registry, and the dispatcher that audits every tool call.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

const Version = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func ErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}

func ResultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// Decode parses a single request body. Batches are rejected.
func Decode(body []byte) (*Request, *Error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, NewError(mcp.PARSE_ERROR, "parse error: empty body")
	}
	if trimmed[0] == '[' {
		if !json.Valid(trimmed) {
			return nil, NewError(mcp.PARSE_ERROR, "parse error: invalid JSON")
		}
		return nil, NewError(mcp.INVALID_REQUEST, "batch requests are not supported")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, NewError(mcp.PARSE_ERROR, "parse error: %v", err)
	}
	if req.JSONRPC != Version || req.Method == "" {
		return &req, NewError(mcp.INVALID_REQUEST, "invalid request: jsonrpc must be %q and method is required", Version)
	}
	return &req, nil
}
