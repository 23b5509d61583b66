package lsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for LSP operations.
var (
	// ErrServerNotRunning indicates the server is not in a ready state.
	ErrServerNotRunning = errors.New("lsp server not running")

	// ErrServerNotInstalled indicates the server binary was not found.
	ErrServerNotInstalled = errors.New("lsp server not installed")

	// ErrUnsupportedLanguage indicates no server is configured for a file.
	ErrUnsupportedLanguage = errors.New("no lsp configuration for language")

	// ErrInitializeFailed indicates the initialize handshake failed.
	ErrInitializeFailed = errors.New("lsp initialize failed")

	// ErrRequestTimeout indicates a request outlived its context.
	ErrRequestTimeout = errors.New("lsp request timeout")

	// ErrServerCrashed indicates the server process went away.
	ErrServerCrashed = errors.New("lsp server crashed")

	// ErrInvalidResponse indicates a response could not be decoded.
	ErrInvalidResponse = errors.New("invalid lsp response")
)

// LSPError is an error returned by the language server over JSON-RPC.
type LSPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *LSPError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("LSP error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// IsContentModified reports whether the server dropped the request because
// the workspace changed under it.
func (e *LSPError) IsContentModified() bool {
	return e.Code == -32801
}
