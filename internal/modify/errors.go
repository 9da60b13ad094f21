package modify

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument reports a missing or structurally mismatched input.
// Plans that fail with it are never registered.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrDuplicatePlan reports a second plan registered under a used plan type.
// It wraps ErrInvalidArgument.
var ErrDuplicatePlan = fmt.Errorf("%w: duplicate plan type", ErrInvalidArgument)

// ErrorCode categorizes validation and request failures.
type ErrorCode string

const (
	// CodeRevisionMismatch indicates the presented revision is stale.
	CodeRevisionMismatch ErrorCode = "REVISION_MISMATCH"

	// CodeInvalidRevision indicates the revision parameter is not an integer.
	CodeInvalidRevision ErrorCode = "INVALID_REVISION"

	// CodeMissingBinary indicates a binary field was not resubmitted.
	CodeMissingBinary ErrorCode = "MISSING_BINARY"

	// CodeInternalRequest indicates the backend request could not be dispatched.
	CodeInternalRequest ErrorCode = "INTERNAL_REQUEST_CALL"

	// CodeAuthorization indicates the caller may not run the request.
	CodeAuthorization ErrorCode = "AUTHORIZATION"

	// CodeAuthentication indicates the caller could not be identified.
	CodeAuthentication ErrorCode = "AUTHENTICATION_FAILURE"
)

// ValidationError is a recoverable failure caused by request data. The user
// can refresh and retry the edit.
type ValidationError struct {
	Code     ErrorCode
	Message  string
	Resource string
	Details  map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (resource=%s)", e.Code, e.Message, e.Resource)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RequestError is a failure of the backend request behind a step:
// dispatch, authorization or authentication. It is surfaced unchanged.
type RequestError struct {
	Code     ErrorCode
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRevisionMismatch creates a ValidationError for a stale revision.
func NewRevisionMismatch(resource string, current, presented int64) *ValidationError {
	return &ValidationError{
		Code:     CodeRevisionMismatch,
		Message:  fmt.Sprintf("record was modified (current revision %d, presented %d)", current, presented),
		Resource: resource,
		Details: map[string]string{
			"current":   fmt.Sprintf("%d", current),
			"presented": fmt.Sprintf("%d", presented),
		},
	}
}

// NewDispatchError wraps a backend failure for a resource.
func NewDispatchError(resource string, err error) *RequestError {
	return &RequestError{Code: CodeInternalRequest, Resource: resource, Err: err}
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRevisionMismatch returns true if err is a stale-revision ValidationError.
func IsRevisionMismatch(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code == CodeRevisionMismatch
	}
	return false
}

// IsDispatchError returns true if err is an internal request failure.
func IsDispatchError(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code == CodeInternalRequest
	}
	return false
}

// IsAuthError returns true if err is an authorization or authentication
// failure.
func IsAuthError(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code == CodeAuthorization || re.Code == CodeAuthentication
	}
	return false
}
