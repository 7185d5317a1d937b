package dto

// APIError is the body of every non-2xx response.
type APIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
}

// Error codes
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeConflict      = "conflict"
	ErrCodeInternalError = "internal_error"
	ErrCodeValidation    = "validation_error"
)

// NotFoundError reports a missing receipt, charge or statement.
func NotFoundError(resource string) APIError {
	return APIError{Code: ErrCodeNotFound, Message: resource + " not found", Resource: resource}
}

// BadRequestError reports a body or query that could not be decoded.
func BadRequestError(message string) APIError {
	return APIError{Code: ErrCodeBadRequest, Message: message}
}

// ConflictError reports a state clash such as a charge that is already
// matched or a training run already in flight.
func ConflictError(resource, message string) APIError {
	return APIError{Code: ErrCodeConflict, Message: message, Resource: resource}
}

// InternalError hides the cause; it is logged server-side instead.
func InternalError() APIError {
	return APIError{Code: ErrCodeInternalError, Message: "an internal error occurred"}
}

// ValidationError reports input the engine rejected.
func ValidationError(message string) APIError {
	return APIError{Code: ErrCodeValidation, Message: message}
}
