package domain

import (
	"errors"
	"fmt"
)

// Predefined domain errors
var (
	// ErrNotFound resource does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput malformed input
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict concurrent modification
	ErrConflict = errors.New("resource conflict")
	// ErrNoPendingApproval resume requested on a thread that is not suspended
	ErrNoPendingApproval = errors.New("no pending approval")
	// ErrUnavailable a dependency (store, model, remote agent) is unreachable
	ErrUnavailable = errors.New("service unavailable")
	// ErrInternal internal error
	ErrInternal = errors.New("internal error")
)

// DomainError domain error with a user-facing message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements error (used for logs and internal propagation)
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserMessage message safe to return to clients
func (e *DomainError) UserMessage() string {
	return e.Message
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError resource not found
func NewNotFoundError(resourceType, name string) error {
	return &DomainError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s '%s' not found", resourceType, name),
		Err:     ErrNotFound,
	}
}

// NewInvalidInputError invalid input
func NewInvalidInputError(message string) error {
	return &DomainError{
		Code:    "INVALID_INPUT",
		Message: message,
		Err:     ErrInvalidInput,
	}
}

// NewConflictError conflict
func NewConflictError(message string) error {
	return &DomainError{
		Code:    "CONFLICT",
		Message: message,
		Err:     ErrConflict,
	}
}

// NewNoPendingApprovalError the thread has no suspended run to resume
func NewNoPendingApprovalError(threadID string) error {
	return &DomainError{
		Code:    "NO_PENDING_APPROVAL",
		Message: fmt.Sprintf("no pending approval for thread '%s'", threadID),
		Err:     ErrNoPendingApproval,
	}
}

// NewToolCallMismatchError the approval names a different tool call than the pending one
func NewToolCallMismatchError(threadID, toolCallID string) error {
	return &DomainError{
		Code:    "NO_PENDING_APPROVAL",
		Message: fmt.Sprintf("no pending approval for tool call '%s' on thread '%s'", toolCallID, threadID),
		Err:     ErrNoPendingApproval,
	}
}

// NewUnavailableError dependency unavailable
func NewUnavailableError(dependency string, err error) error {
	return &DomainError{
		Code:    "UNAVAILABLE",
		Message: fmt.Sprintf("%s is unavailable", dependency),
		Err:     fmt.Errorf("%w: %v", ErrUnavailable, err),
	}
}

// NewInternalError internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred", // do not leak internals
		Err:     fmt.Errorf("%w: %v", ErrInternal, err),
	}
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether err is an invalid-input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNoPendingApproval reports whether err is a no-pending-approval error
func IsNoPendingApproval(err error) bool {
	return errors.Is(err, ErrNoPendingApproval)
}

// IsUnavailable reports whether err is a dependency-unavailable error
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsInternalError reports whether err is an internal error
func IsInternalError(err error) bool {
	return errors.Is(err, ErrInternal)
}

// ErrorCode stable code for err, used on the wire.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL_ERROR"
}

// UserMessage client-safe message for err.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.UserMessage()
	}
	return err.Error()
}
