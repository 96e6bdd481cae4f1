package main

import (
	"errors"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/services"
)

// Process exit codes. A run that ends with the plan in the Failed state exits
// with exitIngestFailed even though the command itself completed.
const (
	exitOK           = 0
	exitValidation   = 2
	exitUsage        = 3
	exitDB           = 4
	exitIngestFailed = 5
	exitConflict     = 6
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// planStateConflicts are refusals caused by the plan's current status.
var planStateConflicts = []error{
	importplan.ErrAlreadyOngoing,
	importplan.ErrAlreadyCompleted,
	importplan.ErrAlreadyFailed,
	importplan.ErrNotFailed,
	importplan.ErrNotOngoing,
	importplan.ErrStaleRun,
}

// planError tags err from a plan operation with its exit code.
func planError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range planStateConflicts {
		if errors.Is(err, target) {
			return withCode(exitConflict, err)
		}
	}
	if errors.Is(err, importplan.ErrNotFound) || services.IsConfigError(err) {
		return withCode(exitValidation, err)
	}
	return withCode(exitDB, err)
}
