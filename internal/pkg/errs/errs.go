/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error
interface and carries the numeric status and message token that go out on the
wire in an `ERR <req_id> <status> <message>` response.
*/
package errs

import (
	"fmt"
)

// CustomError is the custom error structure used throughout the application.
// It wraps the Go error interface, adding a business code and the wire status.
type CustomError struct {
	// Code is the internal business error code (see constants definition).
	Code int

	// Status is the numeric wire code (400, 401, 403, 404, 409, 422, 500).
	Status int

	// Message is the wire message token, e.g. "username_exists".
	Message string
}

// Error implements the standard Go error interface. It returns a formatted
// error string containing the error code, wire status, and message token.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (Wire %d): %s", e.Code, e.Status, e.Message)
}

// New constructs and returns a new *CustomError instance based on a predefined
// error code. If an unknown code is provided, it defaults to ErrInternal.
func New(code int) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		unknownErr := errorMap[ErrInternal]
		return &CustomError{
			Code:    unknownErr.Code,
			Status:  unknownErr.Status,
			Message: unknownErr.Message,
		}
	}

	customErr := templateErr
	return &customErr
}

// Is reports whether err is a *CustomError carrying the given code.
func Is(err error, code int) bool {
	customErr, ok := err.(*CustomError)
	return ok && customErr.Code == code
}
