package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeConflict     = "conflict"
	ErrCodeRoomClosed   = "room_closed"
)

// Sentinel domain errors. Any *CoreError with the same code matches them
// under errors.Is, so callers may attach a more specific message.
var (
	ErrNotFound     = &CoreError{Code: ErrCodeNotFound, Message: "room not found"}
	ErrInvalidInput = &CoreError{Code: ErrCodeInvalidInput, Message: "invalid input"}
	ErrUnauthorized = &CoreError{Code: ErrCodeUnauthorized, Message: "unauthorized"}
	ErrConflict     = &CoreError{Code: ErrCodeConflict, Message: "conflict"}
	ErrRoomClosed   = &CoreError{Code: ErrCodeRoomClosed, Message: "room closed"}
)

// Subscription termination reasons.
var (
	ErrSlowConsumer = errors.New("subscriber too slow, detached")
	ErrHubClosed    = errors.New("hub closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Is matches any CoreError carrying the same code.
func (e *CoreError) Is(target error) bool {
	other, ok := target.(*CoreError)
	return ok && other.Code == e.Code
}

// NewError builds a domain error with a specific message.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorCode extracts the domain code from err, or "" if err is not a CoreError.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
