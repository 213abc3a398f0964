package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrorCode is the stable, renderable kind of a service failure
type ErrorCode string

const (
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeIllegalTransition    ErrorCode = "ILLEGAL_TRANSITION"
	CodePreconditionNotMet   ErrorCode = "PRECONDITION_NOT_MET"
	CodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	CodeDuplicateBid         ErrorCode = "DUPLICATE_BID"
	CodeDuplicateSection     ErrorCode = "DUPLICATE_SECTION"
	CodeVersionConflict      ErrorCode = "VERSION_CONFLICT"
	CodeNotAssigned          ErrorCode = "NOT_ASSIGNED"
	CodeInsufficientCapacity ErrorCode = "INSUFFICIENT_CAPACITY"
	CodeWorkshopInactive     ErrorCode = "WORKSHOP_INACTIVE"
	CodeTenderClosed         ErrorCode = "TENDER_CLOSED"
	CodeForbidden            ErrorCode = "FORBIDDEN"
	CodeConflict             ErrorCode = "CONFLICT"
	CodeInternal             ErrorCode = "INTERNAL"
)

// ServiceError is returned by every command; callers switch on Code
type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches another *ServiceError by code, so errors.Is(err, ErrNotFound) works
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels for errors.Is
var (
	ErrNotFound             = &ServiceError{Code: CodeNotFound}
	ErrIllegalTransition    = &ServiceError{Code: CodeIllegalTransition}
	ErrPreconditionNotMet   = &ServiceError{Code: CodePreconditionNotMet}
	ErrValidationFailed     = &ServiceError{Code: CodeValidationFailed}
	ErrDuplicateBid         = &ServiceError{Code: CodeDuplicateBid}
	ErrDuplicateSection     = &ServiceError{Code: CodeDuplicateSection}
	ErrVersionConflict      = &ServiceError{Code: CodeVersionConflict}
	ErrNotAssigned          = &ServiceError{Code: CodeNotAssigned}
	ErrInsufficientCapacity = &ServiceError{Code: CodeInsufficientCapacity}
	ErrWorkshopInactive     = &ServiceError{Code: CodeWorkshopInactive}
	ErrTenderClosed         = &ServiceError{Code: CodeTenderClosed}
	ErrForbidden            = &ServiceError{Code: CodeForbidden}
	ErrConflict             = &ServiceError{Code: CodeConflict}
	ErrInternal             = &ServiceError{Code: CodeInternal}
)

func newError(code ErrorCode, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(what string) *ServiceError {
	return newError(CodeNotFound, "%s not found", what)
}

func illegalTransition(what string, from, to interface{}) *ServiceError {
	return newError(CodeIllegalTransition, "%s cannot move from %v to %v", what, from, to)
}

func validationFailed(format string, args ...interface{}) *ServiceError {
	return newError(CodeValidationFailed, format, args...)
}

func preconditionNotMet(format string, args ...interface{}) *ServiceError {
	return newError(CodePreconditionNotMet, format, args...)
}

// CodeOf extracts the ErrorCode of err; unknown errors are INTERNAL
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// mapDBError converts gorm/driver failures into service errors. what names the
// aggregate for not-found messages; dup is the code used for unique violations.
func mapDBError(err error, what string, dup ErrorCode) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(what)
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return &ServiceError{Code: dup, Message: fmt.Sprintf("%s already exists", what), Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &ServiceError{Code: CodeConflict, Message: "operation cancelled", Err: err}
	}
	return &ServiceError{Code: CodeInternal, Message: "storage failure", Err: err}
}

// isUniqueViolation works with both PostgreSQL and SQLite messages
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
