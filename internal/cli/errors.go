// Package cli provides shared configuration and utilities for the relmodel CLI.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/pthm/relmodel/schema"
)

// Exit codes.
const (
	ExitSuccess          = 0
	ExitGeneral          = 1
	ExitConfig           = 2
	ExitSchemaParse      = 3
	ExitBuild            = 4
	ExitNondeterministic = 5
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

// ExitCode returns the exit code for err. Errors that are not an ExitError
// map to ExitGeneral.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}

// ExitWithError prints the error and exits with the appropriate code.
func ExitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitCode(err))
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// SchemaParseError creates an ExitError with ExitSchemaParse code.
func SchemaParseError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitSchemaParse, Message: msg, Err: err}
}

// BuildError creates an ExitError with ExitBuild code.
func BuildError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitBuild, Message: msg, Err: err}
}

// NondeterministicError creates an ExitError with ExitNondeterministic code.
func NondeterministicError(msg string) *ExitError {
	return &ExitError{Code: ExitNondeterministic, Message: msg}
}

// GeneralError creates an ExitError with ExitGeneral code.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}

// ClassifyBuildError maps a build failure to an exit error. Input that
// cannot be decoded at all is a parse error; everything else the builder
// rejects is a build error.
func ClassifyBuildError(msg string, err error) *ExitError {
	if schema.IsInvalidEffectiveSchemaErr(err) {
		return SchemaParseError(msg, err)
	}
	return BuildError(msg, err)
}
