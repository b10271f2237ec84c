package apperr

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeForbidden           Code = "FORBIDDEN"
	CodeDuplicateRequest    Code = "DUPLICATE_REQUEST"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeListingNotAvailable Code = "LISTING_NOT_AVAILABLE"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus    int
	PublicMessage string
	// DetailsAllowed controls whether the error message reaches the client
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeNotFound:            {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", DetailsAllowed: true},
	CodeInsufficientBalance: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient balance", DetailsAllowed: true},
	CodeInvalidState:        {HTTPStatus: http.StatusConflict, PublicMessage: "operation not allowed in current state", DetailsAllowed: true},
	CodeForbidden:           {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", DetailsAllowed: false},
	CodeDuplicateRequest:    {HTTPStatus: http.StatusConflict, PublicMessage: "duplicate request", DetailsAllowed: true},
	CodeValidation:          {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeListingNotAvailable: {HTTPStatus: http.StatusConflict, PublicMessage: "listing not available", DetailsAllowed: true},
	CodeUnauthorized:        {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", DetailsAllowed: false},
	CodeInternal:            {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", DetailsAllowed: false},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code so callers can compare against sentinels built with New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func NotFound(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

func InsufficientBalance(format string, args ...any) *Error {
	return Newf(CodeInsufficientBalance, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return Newf(CodeInvalidState, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return Newf(CodeForbidden, format, args...)
}

func Duplicate(format string, args ...any) *Error {
	return Newf(CodeDuplicateRequest, format, args...)
}

func Validation(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

func ListingNotAvailable(format string, args ...any) *Error {
	return Newf(CodeListingNotAvailable, format, args...)
}
