package core

import "errors"

var (
	ErrNilTask             = errors.New("task is nil")
	ErrDuplicateTask       = errors.New("task id already registered")
	ErrSchedulerStopped    = errors.New("scheduler is shut down")
	ErrSchedulerNotStarted = errors.New("scheduler is not started")
	ErrMissingWindow       = errors.New("context-bound task has no window")
	ErrUnknownWindow       = errors.New("window has no context workers")
	ErrWindowExists        = errors.New("window already has context workers")
	ErrContextUnavailable  = errors.New("no rendering context could be created for window")
)
