package model

import (
	"errors"
)

var (
	// ErrInvocationFailed means the ketchup binary could not be launched.
	ErrInvocationFailed = errors.New("invocation failed")
	// ErrTimeout means a ketchup call exceeded its deadline and was killed.
	ErrTimeout = errors.New("invocation timed out")
	// ErrSubmissionRejected means tomato refused the payload (validation
	// error, busy pipeline). Never retried.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrSubmissionFailed means submission failed for any other reason.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrSchedulerUnavailable means the tomato daemon stayed unreachable
	// through the whole retry budget.
	ErrSchedulerUnavailable = errors.New("scheduler unavailable")
	// ErrCancelFailed means ketchup does not recognize a handle that was
	// previously queued or running.
	ErrCancelFailed = errors.New("cancel failed")
	// ErrMalformedRecord means a snapshot line failed structural validation.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInconsistentState means ketchup reported a state regression for a
	// handle. Fatal to the current monitoring session.
	ErrInconsistentState = errors.New("inconsistent job state")
)
