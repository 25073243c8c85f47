package action

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Common error kinds reported as error_type in failed results.
const (
	KindValidation = "ValidationError"
	KindExecution  = "ExecutionError"
	KindTimeout    = "TimeoutError"
	KindNotFound   = "NotFoundError"
)

// Error is returned by handlers that want to tag their failure with a kind.
type Error struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates an Error with the given kind.
func NewError(action, message, kind string) *Error {
	return &Error{Action: action, Message: message, Kind: kind}
}

// Errorf creates an execution Error with a formatted message.
func Errorf(action, format string, args ...any) *Error {
	return NewError(action, fmt.Sprintf(format, args...), KindExecution)
}

// ErrorKind names the kind of err: the Kind of a wrapped *Error, otherwise
// the dynamic type name of err.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var ae *Error
	if errors.As(err, &ae) && ae.Kind != "" {
		return ae.Kind
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}

	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
