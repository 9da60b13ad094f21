package engine

import (
	"errors"
	"fmt"
	"maps"

	"github.com/roach88/modplan/internal/modify"
)

var (
	// ErrUnknownMapping is returned for a request naming an unregistered
	// display mapping.
	ErrUnknownMapping = errors.New("unknown display mapping")

	// ErrUnknownOperation is returned for an operation name outside the
	// supported set.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrUnsupportedOperation is returned when the mapping's shape has no
	// plan for the requested operation.
	ErrUnsupportedOperation = errors.New("operation not supported for this shape")

	// ErrUnknownResource is returned when a step dispatches a resource that
	// was never created.
	ErrUnknownResource = errors.New("unknown resource")
)

// NewAuthenticationError reports a request without an identifiable user.
func NewAuthenticationError() *modify.RequestError {
	return &modify.RequestError{
		Code: modify.CodeAuthentication,
		Err:  errors.New("request has no user"),
	}
}

// NewAuthorizationError reports a user the Authorizer rejected.
func NewAuthorizationError(user, mappingID string, cause error) *modify.RequestError {
	return &modify.RequestError{
		Code:     modify.CodeAuthorization,
		Resource: mappingID,
		Err:      fmt.Errorf("user %q: %w", user, cause),
	}
}

// NewMissingBinaryError reports binary fields a parent insert did not
// resubmit. params maps field name to request parameter.
func NewMissingBinaryError(mappingID string, params map[string]string) *modify.ValidationError {
	return &modify.ValidationError{
		Code:     modify.CodeMissingBinary,
		Message:  fmt.Sprintf("%d binary field(s) must be resubmitted", len(params)),
		Resource: mappingID,
		Details:  maps.Clone(params),
	}
}

// failedResource extracts the resource a step failure names, if any.
func failedResource(err error) string {
	var ve *modify.ValidationError
	if errors.As(err, &ve) {
		return ve.Resource
	}
	var re *modify.RequestError
	if errors.As(err, &re) {
		return re.Resource
	}
	var qe *RowsExceededError
	if errors.As(err, &qe) {
		return qe.Resource
	}
	return ""
}

// ErrorCode returns a stable code for a request failure, for reports and
// machine-readable output. Errors outside the known kinds are INTERNAL.
func ErrorCode(err error) string {
	var ve *modify.ValidationError
	var re *modify.RequestError
	var qe *RowsExceededError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return string(ve.Code)
	case errors.As(err, &re):
		return string(re.Code)
	case errors.As(err, &qe):
		return "ROWS_EXCEEDED"
	case errors.Is(err, ErrUnknownMapping):
		return "UNKNOWN_MAPPING"
	case errors.Is(err, ErrUnknownOperation):
		return "UNKNOWN_OPERATION"
	case errors.Is(err, ErrUnsupportedOperation):
		return "UNSUPPORTED_OPERATION"
	default:
		return "INTERNAL"
	}
}
