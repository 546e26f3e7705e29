package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport tags socket-level failures: socket not open, send
	// failed, buffered-amount wait timed out. Recoverable by reconnect.
	ErrTransport = errors.New("transport error")
	// ErrProtocol tags session-level failures: handshake timeout,
	// malformed or unmatched reply, server-reported ERROR frames.
	ErrProtocol = errors.New("protocol error")
	// ErrResource tags server rejections that require a plan change or
	// different input (quota, size, type). Never retried automatically.
	ErrResource = errors.New("resource error")
	// ErrApplication tags local precondition failures that must never
	// reach the wire: no thread selected, no ready media, nothing to
	// retry.
	ErrApplication = errors.New("application error")
)

// Wrap builds an error message that includes component context while
// tagging it with the provided marker for later classification. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProtocol
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ShouldReconnect reports whether the error indicates the session
// should be torn down and re-established. Only transport failures
// qualify; protocol failures fail the operation on a live connection.
func ShouldReconnect(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Code extracts a machine code from a ServerError if the error carries
// one, otherwise returns the empty string.
func Code(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		return se.ErrCode
	}
	return ""
}

// ServerError carries a machine code and structured payload from a
// server-reported ERROR frame or HTTP error body.
type ServerError struct {
	ErrCode string
	Message string
	Payload map[string]any
}

func (e *ServerError) Error() string {
	if e.ErrCode != "" {
		return fmt.Sprintf("server error %s: %s", e.ErrCode, e.Message)
	}
	return fmt.Sprintf("server error: %s", e.Message)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "client failure"
	}
	return strings.Join(parts, ": ")
}
