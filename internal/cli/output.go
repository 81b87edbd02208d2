package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"directory-sync/backend/internal/api"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran and failed (e.g. a failed sync)
	ExitCommandError = 2 // Command error (bad config, unreadable store, etc.)
)

// ExitError represents an error with a specific exit code.
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

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// textRenderer writes the human-readable form of a successful envelope's data.
type textRenderer func(w io.Writer, data any) error

// writeEnvelope prints env in format. A failed envelope is printed and then returned as an ExitFailure.
func writeEnvelope(w io.Writer, format string, env api.Envelope, text textRenderer) error {
	var err error
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(env)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(env); err == nil {
			err = enc.Close()
		}
	default:
		err = writeText(w, env, text)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	if !env.Success {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%s: %s", env.Error, env.Message)}
	}
	return nil
}

func writeText(w io.Writer, env api.Envelope, text textRenderer) error {
	if !env.Success {
		if _, err := fmt.Fprintf(w, "Error [%s]: %s\n", env.Error, env.Message); err != nil {
			return err
		}
		// A failed sync still carries its recorded status.
		if env.Data == nil || text == nil {
			return nil
		}
		return text(w, env.Data)
	}
	if text != nil && env.Data != nil {
		if err := text(w, env.Data); err != nil {
			return err
		}
	}
	if env.Message != "" {
		_, err := fmt.Fprintln(w, env.Message)
		return err
	}
	return nil
}
