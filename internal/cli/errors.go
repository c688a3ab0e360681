// Package cli provides shared configuration and utilities for the galley CLI.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/galleyhq/galley"
)

// Exit codes.
const (
	ExitSuccess       = 0
	ExitGeneral       = 1
	ExitConfig        = 2
	ExitUsage         = 3
	ExitConnect       = 4
	ExitMigration     = 5
	ExitInconsistency = 6
	ExitExists        = 7
	ExitNotFound      = 8
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitWithError prints the error and exits with the appropriate code.
func ExitWithError(err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitCode(err))
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// ConnectError creates an ExitError with ExitConnect code.
func ConnectError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConnect, Message: msg, Err: err}
}

// GeneralError creates an ExitError with ExitGeneral code.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}

// Classify maps err onto an exit code by its galley error kind.
// A nil err yields nil.
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: ExitCode(err), Message: msg, Err: err}
}

// ExitCode returns the exit code for err. An *ExitError keeps its own code.
func ExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	case galley.IsInvalidArgumentErr(err):
		return ExitUsage
	case galley.IsTransportErr(err):
		return ExitConnect
	case galley.IsLedgerInconsistencyErr(err):
		return ExitInconsistency
	case galley.IsPartialApplicationErr(err):
		return ExitMigration
	case galley.IsAlreadyExistsErr(err):
		return ExitExists
	case galley.IsArtifactNotFoundErr(err):
		return ExitNotFound
	default:
		return ExitGeneral
	}
}
