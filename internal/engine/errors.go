package engine

import (
	"errors"
	"fmt"
	"strings"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// AsAppError unwraps err into an *AppError if it is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func InvalidFilterError() *AppError {
	return &AppError{
		Code:    "INVALID_FILTER",
		Status:  400,
		Message: "Invalid regular expression as search parameter.",
	}
}

// NotFoundError names the missing instance the way operators typed it.
func NotFoundError(entity, name string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s '%s' does not exist.", capitalize(entity), name),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func UnknownRelationshipError(entity, name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_RELATIONSHIP",
		Status:  400,
		Message: fmt.Sprintf("%s has no relationship %s", capitalize(entity), name),
	}
}

// GuardError refuses a manual membership edit on a computed grouping.
// verb is "Adding objects to" or "Removing objects from".
func GuardError(verb, entity string) *AppError {
	return &AppError{
		Code:    "DYNAMIC_GROUPING",
		Status:  409,
		Message: fmt.Sprintf("%s a dynamic %s is not allowed.", verb, entity),
	}
}

func ConflictError(entity string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Status:  409,
		Message: fmt.Sprintf("There is already a %s with the same parameters.", entity),
	}
}

func ForbiddenError() *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Status:  403,
		Message: "Error 403 - Operation not allowed.",
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Status:  401,
		Message: msg,
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func fieldError(field, msg string) *AppError {
	err := ValidationError([]ErrorDetail{{Field: field, Message: msg}})
	err.Message = fmt.Sprintf("Invalid value for %s: %s", field, msg)
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
