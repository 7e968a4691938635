// Package mcp exposes the knowledge base over the Model Context
// Protocol so AI clients can query it as a set of tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// MCP error codes. Negative values follow JSON-RPC conventions;
// the -320xx range is reserved for application errors.
const (
	// ErrCodeEntityNotFound indicates the requested entity id does not exist.
	ErrCodeEntityNotFound = -32001

	// ErrCodeLimitExceeded indicates the requested result limit is over the hard cap.
	ErrCodeLimitExceeded = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeStoreUnavailable indicates the store is locked or corrupt.
	ErrCodeStoreUnavailable = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is the protocol-level error returned to clients.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-parameters error with a
// caller-facing message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts internal errors into protocol errors. Structured
// errors map by code; everything else is an opaque internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ke *kberrors.KBError
	if errors.As(err, &ke) {
		return mapKBError(ke)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

func mapKBError(ke *kberrors.KBError) *MCPError {
	switch ke.Code {
	case kberrors.ErrCodeEntityNotFound:
		return &MCPError{Code: ErrCodeEntityNotFound, Message: ke.Message}
	case kberrors.ErrCodeQueryLimitExceeded:
		return &MCPError{Code: ErrCodeLimitExceeded, Message: ke.Message}
	case kberrors.ErrCodeInvalidQuery, kberrors.ErrCodeInvalidMode:
		return &MCPError{Code: ErrCodeInvalidParams, Message: ke.Message}
	case kberrors.ErrCodeSourceTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: ke.Message}
	case kberrors.ErrCodeStoreConflict, kberrors.ErrCodeStoreCorrupt:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: ke.Message}
	}

	switch ke.Category {
	case kberrors.CategoryQuery:
		return &MCPError{Code: ErrCodeInvalidParams, Message: ke.Message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: ke.Message}
	}
}
