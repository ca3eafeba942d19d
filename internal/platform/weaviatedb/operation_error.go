package weaviatedb

import (
	"fmt"

	pkgerrors "github.com/yungbote/videograph/internal/pkg/errors"
)

type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorQueryFailed     OperationErrorCode = "query_failed"
	OperationErrorNotReady        OperationErrorCode = "not_ready"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "weaviate operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf(
			"weaviate operation failed (op=%s code=%s status=%d): %s",
			e.Operation,
			e.Code,
			e.StatusCode,
			e.Message,
		)
	}
	if e.Cause != nil {
		return fmt.Sprintf(
			"weaviate operation failed (op=%s code=%s status=%d): %v",
			e.Operation,
			e.Code,
			e.StatusCode,
			e.Cause,
		)
	}
	return fmt.Sprintf(
		"weaviate operation failed (op=%s code=%s status=%d)",
		e.Operation,
		e.Code,
		e.StatusCode,
	)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is maps readiness and validation codes onto the shared sentinels so callers
// can branch with errors.Is without importing this package's codes.
func (e *OperationError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case pkgerrors.ErrNotReady:
		return e.Code == OperationErrorNotReady
	case pkgerrors.ErrInvalidArgument:
		return e.Code == OperationErrorValidation
	}
	return false
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}
