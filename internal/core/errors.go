package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated   = "unauthenticated"
	ErrCodeInvalidCredential = "invalid_credential"
	ErrCodeUnknownUser       = "unknown_user"
	ErrCodeRoomNotFound      = "room_not_found"
	ErrCodeNotAMember        = "not_a_member"
	ErrCodeAlreadyMember     = "already_member"
	ErrCodeStorageFailure    = "storage_failure"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeConnectionClosed  = "connection_closed"
)

var (
	ErrUnauthenticated   = coreError(ErrCodeUnauthenticated, "authentication required")
	ErrInvalidCredential = coreError(ErrCodeInvalidCredential, "invalid or expired credential")
	ErrUnknownUser       = coreError(ErrCodeUnknownUser, "user no longer exists")
	ErrRoomNotFound      = coreError(ErrCodeRoomNotFound, "room not found")
	ErrNotAMember        = coreError(ErrCodeNotAMember, "you must be a member of this room")
	ErrAlreadyMember     = coreError(ErrCodeAlreadyMember, "you are already a member of this room")
	ErrStorageFailure    = coreError(ErrCodeStorageFailure, "internal error, please retry")
	ErrBadRequest        = coreError(ErrCodeBadRequest, "bad request")
	ErrConnectionClosed  = coreError(ErrCodeConnectionClosed, "connection is closed")
)

// CoreError wraps a code and human-readable message.
// Two CoreErrors match under errors.Is when their codes are equal.
type CoreError struct {
	Code    string
	Message string
	cause   error
}

func (e *CoreError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying collaborator error, if any.
func (e *CoreError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a CoreError with the same code.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func badRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// storageFailure hides a collaborator error behind the generic storage_failure code.
func storageFailure(err error) *CoreError {
	return &CoreError{Code: ErrCodeStorageFailure, Message: ErrStorageFailure.Message, cause: err}
}

// AsCoreError converts any error to a CoreError; unknown errors become storage failures.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return storageFailure(err)
}
