package cli

import (
	"errors"
	"fmt"

	"mercator-hq/spendcap/pkg/config"
	"mercator-hq/spendcap/pkg/limits"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitDenied      = 3
	ExitStoreFailed = 4
)

// ErrDenied is returned by commands whose spend check was denied.
var ErrDenied = errors.New("spend denied")

// ConfigError represents an error in configuration or arguments.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr *ConfigError
	var validationErr config.ValidationError
	switch {
	case errors.Is(err, ErrDenied):
		return ExitDenied
	case errors.Is(err, limits.ErrStore):
		return ExitStoreFailed
	case errors.As(err, &cfgErr), errors.As(err, &validationErr), limits.IsValidationError(err):
		return ExitUsage
	default:
		return ExitFailure
	}
}
