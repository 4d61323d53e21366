package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode classifies storage failures into machine-checkable kinds.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Malformed input: corrupt timestamps, truncated records, bad checksums.
	// Always reported, never dropped.
	ErrCodeCorruptedData   ErrorCode = 1000
	ErrCodeChecksumFailed  ErrorCode = 1001
	ErrCodeInvalidArgument ErrorCode = 1002
	ErrCodeKeyNotFound     ErrorCode = 1003

	// Resource exhaustion: synchronous rejection, retryable by the caller
	// once handles are released.
	ErrCodeTooManyOpenFiles ErrorCode = 2000

	// Environmental I/O failure, wrapped and surfaced, never retried here.
	ErrCodeIO ErrorCode = 3000

	// Logic error: an internal invariant was violated. This is a bug, not an
	// environmental condition, and should page an operator.
	ErrCodeLogicError ErrorCode = 4000
)

// StorageError carries a code, free-form diagnostic annotations, and the
// wrapped cause.
type StorageError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a diagnostic key/value annotation.
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	e.Details[key] = value
	return e
}

// ToGRPCStatus converts the error for an RPC layer above this one.
func (e *StorageError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *StorageError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument:
		return codes.InvalidArgument
	case ErrCodeKeyNotFound:
		return codes.NotFound
	case ErrCodeCorruptedData, ErrCodeChecksumFailed:
		return codes.DataLoss
	case ErrCodeTooManyOpenFiles:
		return codes.ResourceExhausted
	case ErrCodeIO:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// New creates a StorageError.
func New(code ErrorCode, message string, cause error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// Convenience constructors for the common kinds.

func CorruptedData(message string, cause error) *StorageError {
	return New(ErrCodeCorruptedData, message, cause)
}

func ChecksumFailed(expected, actual uint32) *StorageError {
	return New(ErrCodeChecksumFailed,
		fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func InvalidArgument(message string, cause error) *StorageError {
	return New(ErrCodeInvalidArgument, message, cause)
}

func KeyNotFound(key []byte) *StorageError {
	return New(ErrCodeKeyNotFound, fmt.Sprintf("key not found: %q", key), nil).
		WithDetail("key", string(key))
}

func TooManyOpenFiles(current, limit int) *StorageError {
	return New(ErrCodeTooManyOpenFiles,
		fmt.Sprintf("too many open files: %d/%d", current, limit), nil).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

func IO(message string, cause error) *StorageError {
	return New(ErrCodeIO, message, cause)
}

// LogicError flags a violated internal invariant.
func LogicError(message string) *StorageError {
	return New(ErrCodeLogicError, "invariant violated: "+message, nil)
}

// GetCode extracts the code from any error in the chain.
func GetCode(err error) ErrorCode {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeLogicError
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
