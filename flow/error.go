package flow

import (
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// ClassifiedError tags an error with a failure class. Execution and storage
// failures signal that re-running the same flow on a different conductor
// may succeed; a conductor abandons rather than consumes a job whose run
// failed purely with these classes.
type ClassifiedError struct {
	class failureClass
	err   error
}

type failureClass int

const (
	classExecution failureClass = iota
	classStorage
)

// Error implements error.
func (e *ClassifiedError) Error() string { return e.err.Error() }

// Unwrap returns the wrapped error.
func (e *ClassifiedError) Unwrap() error { return e.err }

// ExecutionFailure marks err as a transient execution failure.
func ExecutionFailure(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{class: classExecution, err: err}
}

// StorageFailure marks err as a failure of the persistence layer.
func StorageFailure(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{class: classStorage, err: err}
}

// IsExecutionFailure reports whether err carries the execution failure
// class anywhere in its chain.
func IsExecutionFailure(err error) bool {
	var cerr *ClassifiedError
	return xerrors.As(err, &cerr) && cerr.class == classExecution
}

// IsStorageFailure reports whether err carries the storage failure class
// anywhere in its chain.
func IsStorageFailure(err error) bool {
	var cerr *ClassifiedError
	return xerrors.As(err, &cerr) && cerr.class == classStorage
}

// IsRetryable reports whether every failure collected in err belongs to the
// execution or storage failure classes. It is the predicate behind the
// conductor's consume-versus-abandon decision.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var merr *multierror.Error
	if xerrors.As(err, &merr) {
		if len(merr.Errors) == 0 {
			return false
		}
		for _, sub := range merr.Errors {
			if !IsRetryable(sub) {
				return false
			}
		}
		return true
	}

	var cerr *ClassifiedError
	return xerrors.As(err, &cerr)
}
