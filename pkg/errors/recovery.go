package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// 探索ジョブはワーカー goroutine 上で任意の推定器の Fit を呼ぶ。
// そこで起きた panic はプロセスを落とさず、その候補の失敗として扱う。

// PanicError は recover した panic を表すエラーです。
type PanicError struct {
	Operation  string      // recover した場所 ("candidate 3 split 1" など)
	PanicValue interface{} // panic に渡された値
	StackTrace string      // panic 時点のスタック
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.PanicValue.(error)
	return err
}

// String includes the captured stack trace.
func (e *PanicError) String() string {
	return e.Error() + "\nStack trace:\n" + e.StackTrace
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(operation string, value interface{}) *PanicError {
	return &PanicError{Operation: operation, PanicValue: value, StackTrace: string(debug.Stack())}
}

// Recover is deferred with a pointer to the caller's named error result and
// turns a panic into a PanicError. An error the function had already set
// stays the primary error and the panic is attached to it.
//
//	func (p *Pipeline) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "Pipeline.Fit")
//	    ...
//	}
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	panicErr := NewPanicError(operation, r)
	if *err == nil {
		*err = panicErr
		return
	}
	*err = errors.WithSecondaryError(errors.Wrapf(*err, "panic in %s: %v", operation, r), panicErr)
}

// SafeExecute runs fn and reports a panic as a PanicError.
//
//	err := errors.SafeExecute("candidate 3 split 1", func() error {
//	    return est.Fit(XTrain, yTrain)
//	})
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
