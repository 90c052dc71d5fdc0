// Package failure classifies run errors and maps them to process exit codes
// understood by the job runner.
package failure

import (
	"errors"
	"fmt"
)

// Exit codes follow sysexits(3) so cron wrappers and CI runners can tell a
// retryable failure from a misconfiguration.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitTempFail = 75
	ExitConfig   = 78
)

// TransientIOError wraps a network failure talking to the search API, a
// document host or the SMTP relay. The run is not retried in-process; the
// exit code tells the job runner to try again.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient i/o failure during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientIOError. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientIOError{Op: op, Err: err}
}

// IsTransient reports whether err contains a TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// Missing is shorthand for a required value that was not provided.
func Missing(field string) error {
	return &ConfigurationError{Field: field, Reason: "is required"}
}

// IsConfiguration reports whether err contains a ConfigurationError.
func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}

// ExitCode picks the process exit status for err. Configuration errors win
// over transient ones because retrying cannot fix them.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsConfiguration(err):
		return ExitConfig
	case IsTransient(err):
		return ExitTempFail
	default:
		return ExitFailure
	}
}
