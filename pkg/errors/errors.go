package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrBadRequest          = errors.New("bad request")
	ErrConflict            = errors.New("resource conflict")
	ErrInternal            = errors.New("internal server error")
	ErrValidation          = errors.New("validation error")
	ErrDuplicateSKU        = errors.New("duplicate sku")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNoStockAvailable    = errors.New("no stock available")
	ErrHasDependentRecords = errors.New("has dependent records")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// DuplicateSKU is returned when a medicine is created or updated with an
// SKU that already belongs to another medicine.
func DuplicateSKU(sku string) *AppError {
	return &AppError{
		Err:        ErrDuplicateSKU,
		Code:       "DUPLICATE_SKU",
		Message:    fmt.Sprintf("a medicine with sku %q already exists", sku),
		StatusCode: http.StatusConflict,
	}
}

// InsufficientStock is returned when a dispense or adjustment would take
// a batch below zero. The enclosing transaction has already rolled back,
// so callers observe no partial effect.
func InsufficientStock(message string) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NoStockAvailable is returned when an unpinned dispense item finds no
// allocatable batches for the requested medicine.
func NoStockAvailable(medicineID string) *AppError {
	return &AppError{
		Err:        ErrNoStockAvailable,
		Code:       "NO_STOCK_AVAILABLE",
		Message:    fmt.Sprintf("no available batches for medicine %s", medicineID),
		StatusCode: http.StatusConflict,
	}
}

// HasDependentRecords is returned when deleting a medicine that still has
// batches or ledger references.
func HasDependentRecords(message string) *AppError {
	return &AppError{
		Err:        ErrHasDependentRecords,
		Code:       "HAS_DEPENDENT_RECORDS",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// StorageUnavailable wraps a transport-level datastore failure. Nothing
// was committed, so the caller may retry the identical request.
func StorageUnavailable(err error) *AppError {
	cause := ErrStorageUnavailable
	if err != nil {
		cause = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &AppError{
		Err:        cause,
		Code:       "STORAGE_UNAVAILABLE",
		Message:    "storage unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
