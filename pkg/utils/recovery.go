package utils

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError wraps a panic value as an error
type PanicError struct {
	Value      interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newPanicError(r any) *PanicError {
	stack := string(debug.Stack())
	slog.Error("Recovered from panic", "panic", r, "stack", stack)
	return &PanicError{Value: r, StackTrace: stack}
}

// RecoverAsError recovers from a panic and stores it in *errPtr.
// It must be deferred directly.
//
//	func doWork() (err error) {
//	    defer RecoverAsError(&err)
//	    ...
//	}
func RecoverAsError(errPtr *error) {
	if r := recover(); r != nil {
		*errPtr = newPanicError(r)
	}
}

// RecoverWithCallback recovers from a panic and passes it to callback.
// Useful when the function has no error result.
func RecoverWithCallback(callback func(error)) {
	if r := recover(); r != nil {
		err := newPanicError(r)
		if callback != nil {
			callback(err)
		}
	}
}
