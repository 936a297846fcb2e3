package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrEmptyStream is the cause carried by EmptyStream errors
var ErrEmptyStream = stderrors.New("stream ended before the first chunk")

// ErrorCode represents internal error codes for transfer, storage and routing operations
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Client errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeNotFound        ErrorCode = 1001

	// Transfer and storage errors
	ErrCodeTransfer ErrorCode = 2000
	ErrCodeIO       ErrorCode = 2001
	ErrCodeDiskFull ErrorCode = 2002

	// Distribution errors
	ErrCodeReplicationFailure  ErrorCode = 3000
	ErrCodeUpstreamUnavailable ErrorCode = 3001
	ErrCodeRoutingExhausted    ErrorCode = 3002

	ErrCodeUnavailable ErrorCode = 4000
	ErrCodeInternal    ErrorCode = 4001
)

// CDNError represents a structured error with code and context
type CDNError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *CDNError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CDNError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts the error to a gRPC status
func (e *CDNError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *CDNError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeTransfer:
		return codes.DataLoss
	case ErrCodeDiskFull:
		return codes.ResourceExhausted
	case ErrCodeReplicationFailure:
		return codes.Aborted
	case ErrCodeUpstreamUnavailable, ErrCodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// HTTPStatus maps the error to the status code an edge node answers with
func (e *CDNError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUpstreamUnavailable, ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTransfer:
		return http.StatusBadGateway
	case ErrCodeDiskFull:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// NewCDNError creates a new CDNError
func NewCDNError(code ErrorCode, message string, cause error) *CDNError {
	return &CDNError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *CDNError) WithDetail(key string, value interface{}) *CDNError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *CDNError {
	return NewCDNError(ErrCodeInvalidArgument, message, cause)
}

func InvalidKey(key, reason string) *CDNError {
	return NewCDNError(ErrCodeInvalidArgument, fmt.Sprintf("invalid key '%s': %s", key, reason), nil).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

func NotFound(key string) *CDNError {
	return NewCDNError(ErrCodeNotFound, fmt.Sprintf("file not found: %s", key), nil).
		WithDetail("key", key)
}

// EmptyStream reports a chunk stream that ended before its first chunk.
func EmptyStream() *CDNError {
	return NewCDNError(ErrCodeTransfer, "empty chunk stream", ErrEmptyStream)
}

// IsEmptyStream reports whether err came from a stream with no chunks, which
// file servers use to signal a missing file
func IsEmptyStream(err error) bool {
	return stderrors.Is(err, ErrEmptyStream)
}

func TransferError(message string, cause error) *CDNError {
	return NewCDNError(ErrCodeTransfer, message, cause)
}

func IOError(message string, cause error) *CDNError {
	return NewCDNError(ErrCodeIO, message, cause)
}

func DiskFull(usagePercent float64, availableBytes uint64) *CDNError {
	return NewCDNError(ErrCodeDiskFull, fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil).
		WithDetail("usage_percent", usagePercent).
		WithDetail("available_bytes", availableBytes)
}

// ReplicationFailure reports a replica that rejected or failed a push. The origin
// copy is already persisted when this is returned.
func ReplicationFailure(index int, address string, cause error) *CDNError {
	return NewCDNError(ErrCodeReplicationFailure, fmt.Sprintf("replication to backup %d (%s) failed", index, address), cause).
		WithDetail("replica_index", index).
		WithDetail("replica_address", address)
}

func UpstreamUnavailable(key string, attempted int) *CDNError {
	return NewCDNError(ErrCodeUpstreamUnavailable, fmt.Sprintf("no live upstream could serve %s", key), nil).
		WithDetail("key", key).
		WithDetail("attempted", attempted)
}

// RoutingExhausted is a warning: the balancer found no live proxy and fell back
// to the last candidate it considered.
func RoutingExhausted(area int, fallback string) *CDNError {
	return NewCDNError(ErrCodeRoutingExhausted, fmt.Sprintf("no live proxy found starting from area %d, falling back to %s", area, fallback), nil).
		WithDetail("area", area).
		WithDetail("fallback", fallback)
}

func Unavailable(message string, cause error) *CDNError {
	return NewCDNError(ErrCodeUnavailable, message, cause)
}

func InternalError(message string, cause error) *CDNError {
	return NewCDNError(ErrCodeInternal, message, cause)
}

// AsCDNError finds the first CDNError in err's chain
func AsCDNError(err error) (*CDNError, bool) {
	var ce *CDNError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsCDNError checks if an error is a CDNError
func IsCDNError(err error) bool {
	_, ok := AsCDNError(err)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	if ce, ok := AsCDNError(err); ok {
		return ce.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// ToGRPCError converts any error into a gRPC status error. Errors that already
// carry a gRPC status are passed through.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := AsCDNError(err); ok {
		return ce.ToGRPCStatus().Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}
