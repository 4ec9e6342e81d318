package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Registry errors
	ErrNoSuchModel   = errors.New("no such model")
	ErrDuplicateGUID = errors.New("duplicate model guid")

	// Configuration errors
	ErrMissingModelParams = errors.New("model parameters missing modelParams section")
	ErrInvalidEncoders    = errors.New("invalid sensor encoder configuration")
	ErrMultipleDateFields = errors.New("multiple date-encoded fields in model parameters")

	// Ingestion errors
	ErrOldData          = errors.New("temporal value regressed below last accepted row")
	ErrUnparseableDate  = errors.New("unparseable temporal value")
	ErrMissingTemporal  = errors.New("row missing temporal field")

	// Engine errors
	ErrEngineClosed       = errors.New("engine closed")
	ErrInferenceDisabled  = errors.New("inference not enabled")
	ErrInvalidMetricSpec  = errors.New("invalid metric specification")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeOrdering   ErrorType = "ordering"
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents an application-specific error with an HTTP mapping.
// Message is the exact body clients see in the "error" field.
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Cause      error     `json:"-"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// NewNotFoundError reports an unknown model identifier. The message matches
// the wire contract exactly.
func NewNotFoundError(guid string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "MODEL_NOT_FOUND",
		Message:    "No such model",
		Cause:      fmt.Errorf("%w: %s", ErrNoSuchModel, guid),
		HTTPStatus: 404,
	}
}

// NewDuplicateGUIDError reports a guid collision on create.
func NewDuplicateGUIDError(guid string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "DUPLICATE_GUID",
		Message:    fmt.Sprintf("The guid %q is not unique.", guid),
		Cause:      ErrDuplicateGUID,
		HTTPStatus: 409,
	}
}

// NewMissingModelParamsError reports a create body without a modelParams section.
func NewMissingModelParamsError() *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       "MISSING_MODEL_PARAMS",
		Message:    "POST body must include JSON with a modelParams value.",
		Cause:      ErrMissingModelParams,
		HTTPStatus: 400,
	}
}

// NewInvalidConfigError reports an otherwise malformed model configuration.
func NewInvalidConfigError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       "INVALID_CONFIG",
		Message:    cause.Error(),
		Cause:      cause,
		HTTPStatus: 400,
	}
}

// NewOrderingError reports a temporal regression in a run batch.
func NewOrderingError() *AppError {
	return &AppError{
		Type:       ErrorTypeOrdering,
		Code:       "ORDERING_VIOLATION",
		Message:    "Cannot run old data",
		Cause:      ErrOldData,
		HTTPStatus: 400,
	}
}

// NewParseError reports an unparseable temporal value.
func NewParseError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeParse,
		Code:       "UNPARSEABLE_DATE",
		Message:    cause.Error(),
		Cause:      cause,
		HTTPStatus: 400,
	}
}

// NewInternalError wraps an engine or pipeline failure as a server error.
func NewInternalError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    "Internal server error",
		Cause:      cause,
		HTTPStatus: 500,
	}
}

// AsAppError extracts an AppError from an error chain, defaulting to an
// internal error so engine failures surface as 500s rather than panics.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}
