package main

import (
	"errors"
	"fmt"
)

// ErrSyncFailed reports a completed attempt the panel did not accept.
var ErrSyncFailed = errors.New("time sync failed")

// StartupError is a diagnostics error raised before any panel traffic.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

func startupErr(stage string, err error) error {
	return &StartupError{Stage: stage, Err: err}
}
