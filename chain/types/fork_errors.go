package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ForkErrorCode identifies the category of a ForkError. The dispatcher consuming fork operations switches on this code
// rather than on error strings.
type ForkErrorCode int

const (
	// ErrCodeConfig indicates an endpoint alias or URL could not be resolved.
	ErrCodeConfig ForkErrorCode = iota + 1
	// ErrCodeNoActiveFork indicates an operation required an active fork but none was selected.
	ErrCodeNoActiveFork
	// ErrCodeSelectForkDuringBroadcast indicates a fork switch was attempted while a broadcast was in progress.
	ErrCodeSelectForkDuringBroadcast
	// ErrCodeUnknownForkId indicates the provided fork id was never issued.
	ErrCodeUnknownForkId
	// ErrCodeRangeTooLarge indicates a block bound does not fit into 64 bits.
	ErrCodeRangeTooLarge
	// ErrCodeTooManyTopics indicates a log filter carried more than four topics.
	ErrCodeTooManyTopics
	// ErrCodeRemoteRpc indicates a transport failure or a remote response missing expected fields.
	ErrCodeRemoteRpc
	// ErrCodeSerialization indicates malformed JSON was provided for a passthrough call.
	ErrCodeSerialization
)

// String returns the name of the error code.
func (c ForkErrorCode) String() string {
	switch c {
	case ErrCodeConfig:
		return "ConfigError"
	case ErrCodeNoActiveFork:
		return "NoActiveFork"
	case ErrCodeSelectForkDuringBroadcast:
		return "SelectForkDuringBroadcast"
	case ErrCodeUnknownForkId:
		return "UnknownForkId"
	case ErrCodeRangeTooLarge:
		return "RangeTooLarge"
	case ErrCodeTooManyTopics:
		return "TooManyTopics"
	case ErrCodeRemoteRpc:
		return "RemoteRpcError"
	case ErrCodeSerialization:
		return "SerializationError"
	default:
		return fmt.Sprintf("ForkErrorCode(%d)", int(c))
	}
}

// ForkError is the single structured error type returned by every fork operation. It carries a category code and,
// optionally, the underlying cause.
type ForkError struct {
	// Code describes the category of the failure.
	Code ForkErrorCode

	// Cause is the underlying error, if any.
	Cause error
}

// Sentinel errors, one per code. They match any ForkError with the same code through errors.Is.
var (
	ErrConfig                    = &ForkError{Code: ErrCodeConfig}
	ErrNoActiveFork              = &ForkError{Code: ErrCodeNoActiveFork}
	ErrSelectForkDuringBroadcast = &ForkError{Code: ErrCodeSelectForkDuringBroadcast}
	ErrUnknownForkId             = &ForkError{Code: ErrCodeUnknownForkId}
	ErrRangeTooLarge             = &ForkError{Code: ErrCodeRangeTooLarge}
	ErrTooManyTopics             = &ForkError{Code: ErrCodeTooManyTopics}
	ErrRemoteRpc                 = &ForkError{Code: ErrCodeRemoteRpc}
	ErrSerialization             = &ForkError{Code: ErrCodeSerialization}
)

// NewForkError creates a new ForkError with the provided code and cause.
func NewForkError(code ForkErrorCode, cause error) *ForkError {
	return &ForkError{
		Code:  code,
		Cause: cause,
	}
}

// Error returns the error message string, implementing the `error` interface.
func (e *ForkError) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Cause.Error()
}

// Unwrap returns the cause of the error.
func (e *ForkError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ForkError with the same code.
func (e *ForkError) Is(target error) bool {
	t, ok := target.(*ForkError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the ForkErrorCode carried by err, or zero if err is not (and does not wrap) a ForkError.
func CodeOf(err error) ForkErrorCode {
	var forkErr *ForkError
	if errors.As(err, &forkErr) {
		return forkErr.Code
	}
	return 0
}
