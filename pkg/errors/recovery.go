package errors

import (
	"fmt"
	"runtime/debug"
)

// Safely runs fn and returns any panic as an ErrCodeInternal error.
func Safely(operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = New(ErrCodeInternal, fmt.Sprintf("panic during %s: %v", operation, r)).
				WithContext("stack", string(debug.Stack()))
		}
	}()
	return fn()
}
