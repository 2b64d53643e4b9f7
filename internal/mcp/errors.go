// Package mcp implements the JSON-RPC 2.0 protocol surface of the
// help server: envelope validation, method dispatch and the tool set.
package mcp

import (
	"context"
	"errors"
	"fmt"

	helperrors "github.com/onec-help/onechelp/internal/errors"
)

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params error with a custom
// message.
func NewInvalidParamsError(msg string) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an unknown-method error.
func NewMethodNotFoundError(name string) *RPCError {
	return &RPCError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", name)}
}

// MapError converts a domain error into a JSON-RPC error object.
// Validation failures keep their message; everything else collapses to
// a stable description so internal error text never reaches a client.
func MapError(err error) *RPCError {
	if err == nil {
		return nil
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var helpErr *helperrors.HelpError
	if errors.As(err, &helpErr) {
		switch helpErr.Category {
		case helperrors.CategoryValidation:
			return &RPCError{Code: ErrCodeInvalidParams, Message: helpErr.Message}
		case helperrors.CategoryStore:
			return &RPCError{Code: ErrCodeInternalError, Message: "Search backend is unavailable."}
		case helperrors.CategoryParse:
			return &RPCError{Code: ErrCodeInternalError, Message: "Documentation archive could not be processed."}
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &RPCError{Code: ErrCodeInternalError, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &RPCError{Code: ErrCodeInternalError, Message: "Request was canceled."}
	}

	return &RPCError{Code: ErrCodeInternalError, Message: "Internal server error."}
}
