package workflow

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindConflict   ErrorKind = "CONFLICT"
	KindForbidden  ErrorKind = "FORBIDDEN"
	KindDependency ErrorKind = "DEPENDENCY"
)

const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidFileType   = "INVALID_FILE_TYPE"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodePeriodExtraction  = "PERIOD_EXTRACTION"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeAlreadyProcessing = "ALREADY_PROCESSING"
	CodeAlreadyCompleted  = "ALREADY_COMPLETED"
	CodePeriodOverlap     = "PERIOD_OVERLAP"
	CodePeriodMismatch    = "PERIOD_MISMATCH"
	CodeIncompleteBatch   = "INCOMPLETE_BATCH"
	CodeStorage           = "STORAGE"
	CodeETLDispatch       = "ETL_DISPATCH"
	CodeDatabase          = "DATABASE"
)

// Error is returned by every workflow operation. Details carry the data a UI needs to
// render the failure without a second lookup (conflicting periods, missing categories).
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error on Code, so errors.Is(err, ErrAlreadyProcessing) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is.
var (
	ErrAlreadyProcessing = &Error{Kind: KindConflict, Code: CodeAlreadyProcessing}
	ErrAlreadyCompleted  = &Error{Kind: KindConflict, Code: CodeAlreadyCompleted}
	ErrPeriodOverlap     = &Error{Kind: KindConflict, Code: CodePeriodOverlap}
	ErrPeriodMismatch    = &Error{Kind: KindConflict, Code: CodePeriodMismatch}
	ErrIncompleteBatch   = &Error{Kind: KindConflict, Code: CodeIncompleteBatch}
	ErrETLDispatch       = &Error{Kind: KindDependency, Code: CodeETLDispatch}
)

func newError(kind ErrorKind, code, message string, details map[string]any, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details, Err: err}
}

func validationError(code, message string, details map[string]any) *Error {
	return newError(KindValidation, code, message, details, nil)
}

func notFoundError(message string) *Error {
	return newError(KindNotFound, CodeNotFound, message, nil, nil)
}

func forbiddenError(message string) *Error {
	return newError(KindForbidden, CodeForbidden, message, nil, nil)
}

func conflictError(code, message string, details map[string]any) *Error {
	return newError(KindConflict, code, message, details, nil)
}

func dependencyError(code, message string, err error) *Error {
	return newError(KindDependency, code, message, nil, err)
}

// AsError unwraps err into an *Error. Anything else is reported as a database dependency failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var werr *Error
	if errors.As(err, &werr) {
		return werr
	}
	return dependencyError(CodeDatabase, "internal error", err)
}
