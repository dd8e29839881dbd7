package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned for tasks pending at Close and by Execute
	// after Close
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrWorkerCrashed is wrapped by errors for tasks whose worker died
	ErrWorkerCrashed = errors.New("worker crashed")

	// ErrDuplicateTask is returned when a request reuses an in-flight ID
	ErrDuplicateTask = errors.New("duplicate task id")
)

// ErrorKind classifies task failures
type ErrorKind int

const (
	// KindCrash means the worker died while owning the task
	KindCrash ErrorKind = iota
	// KindRemote means the worker reported LAYOUT_ERROR
	KindRemote
)

func (k ErrorKind) String() string {
	switch k {
	case KindCrash:
		return "crash"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// TaskError is the error returned by Execute for a failed task
type TaskError struct {
	TaskID  string
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed (%s): %s", e.TaskID, e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error {
	return e.Cause
}
