// Package errors wraps github.com/go-errors/errors so fatal errors carry
// the stack of the place they were first seen.
package errors

import (
	"errors"

	errorsGo "github.com/go-errors/errors"
)

type Error = errorsGo.Error

func As(err error, target any) bool { return errorsGo.As(err, target) }

func Is(err, target error) bool { return errorsGo.Is(err, target) }

func Unwrap(err error) error { return errorsGo.Unwrap(err) }

// New wraps obj with the caller's stack. Unlike errorsGo.New it returns
// nil for nil and keeps the stack of an already wrapped error.
func New(obj any) error {
	if obj == nil {
		return nil
	}
	if err, ok := obj.(error); ok && err == nil {
		return nil
	}
	if errGo, ok := obj.(*errorsGo.Error); ok {
		return errGo
	}
	return errorsGo.Wrap(obj, 1)
}

func Errorf(format string, a ...any) *Error { return errorsGo.Errorf(format, a...) }

func Wrap(e any, skip int) *Error { return errorsGo.Wrap(e, skip+1) }

func WrapPrefix(e any, prefix string, skip int) *Error {
	return errorsGo.WrapPrefix(e, prefix, skip+1)
}

// Join joins errs, nil when all of them are nil.
func Join(errs ...error) error {
	err := errors.Join(errs...)
	if err == nil {
		return nil
	}
	return errorsGo.Wrap(err, 1)
}

// Stack returns the stack trace recorded for err, if any.
func Stack(err error) string {
	var errGo *errorsGo.Error
	if errorsGo.As(err, &errGo) {
		return errGo.ErrorStack()
	}
	return ""
}
