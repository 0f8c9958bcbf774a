package engine

import (
	"errors"
	"fmt"

	"github.com/perluette/relist/op"
)

// ContractError represents a caller contract violation detected by the
// engine.
//
// Contract violations include:
//   - Invalid range: an issued operation references positions outside the
//     tracked list size
//   - Malformed sequence: the reorderer cannot reach a conflict-free fixed
//     point for the pending batch
//   - Reentrancy: a mutation is issued while a batch pass is on the stack
//
// ContractError includes structured fields for diagnostics. There is no
// silent recovery: a rejected operation is never queued and a malformed
// batch is never partially applied.
type ContractError struct {
	// Code identifies the violation category.
	Code ContractErrorCode

	// Message is a human-readable description.
	Message string

	// Op is a snapshot of the offending record (range errors).
	Op op.Op

	// Index is the record's position within the issuing call (range errors).
	Index int

	// Size is the tracked list size the record was validated against
	// (range errors).
	Size int
}

// ContractErrorCode categorizes contract violations.
type ContractErrorCode string

const (
	// ErrCodeInvalidRange indicates an operation referencing positions
	// outside the tracked list size, or with a malformed shape.
	ErrCodeInvalidRange ContractErrorCode = "INVALID_OPERATION_RANGE"

	// ErrCodeMalformedSequence indicates the pending batch cannot be
	// reordered to a conflict-free fixed point.
	ErrCodeMalformedSequence ContractErrorCode = "MALFORMED_OPERATION_SEQUENCE"

	// ErrCodeReentrancy indicates a call into the engine while a batch
	// pass was already executing.
	ErrCodeReentrancy ContractErrorCode = "REENTRANCY_VIOLATION"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Code == ErrCodeInvalidRange {
		return fmt.Sprintf("%s: %s (op=%s, index=%d, size=%d)", e.Code, e.Message, e.Op.String(), e.Index, e.Size)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRangeError returns true if the error is an invalid-range violation.
// Uses errors.As to handle wrapped errors.
func IsRangeError(err error) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeInvalidRange
	}
	return false
}

// IsMalformedSequenceError returns true if the error is a malformed-sequence
// violation. Uses errors.As to handle wrapped errors.
func IsMalformedSequenceError(err error) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeMalformedSequence
	}
	return false
}

// IsReentrancyError returns true if the error is a reentrancy violation.
// Uses errors.As to handle wrapped errors.
func IsReentrancyError(err error) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeReentrancy
	}
	return false
}

// NewRangeError creates a ContractError for an operation that references
// positions outside the tracked list size.
func NewRangeError(o op.Op, index, size int) *ContractError {
	return &ContractError{
		Code:    ErrCodeInvalidRange,
		Message: "operation references positions outside the tracked list",
		Op:      o,
		Index:   index,
		Size:    size,
	}
}

// NewMalformedSequenceError creates a ContractError for a batch that cannot
// be canonicalized.
func NewMalformedSequenceError(detail string) *ContractError {
	return &ContractError{
		Code:    ErrCodeMalformedSequence,
		Message: detail,
	}
}

// NewReentrancyError creates a ContractError for a call issued while a
// batch pass was executing.
func NewReentrancyError(call string) *ContractError {
	return &ContractError{
		Code:    ErrCodeReentrancy,
		Message: fmt.Sprintf("%s called while a batch pass is in progress", call),
	}
}
