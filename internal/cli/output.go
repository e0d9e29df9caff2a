package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/stablestore/ledger"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The ledger rejected the operation (not found, invalid input, storage fault)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, store cannot be opened)
)

// ExitError carries the exit code a failed command should terminate with.
type ExitError struct {
	Code     int
	Message  string
	Err      error
	Reported bool // already written to the command output
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

// GetExitCode extracts the exit code from an error.
// Returns ExitCommandError if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope of every command's output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Success outputs a successful result in the configured format.
// Text output is YAML, which reads well for records.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// Error outputs a ledger error in the configured format.
func (f *OutputFormatter) Error(kind ledger.ErrorKind, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Kind:    kind.String(),
				Message: message,
			},
		})
	}
	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", kind, message)
	return err
}

// report turns an operation error into output plus an *ExitError.
func (f *OutputFormatter) report(err error) error {
	var le *ledger.Error
	if !errors.As(err, &le) {
		return &ExitError{Code: ExitCommandError, Message: "command failed", Err: err}
	}
	msg := le.Msg
	if le.Err != nil {
		msg = fmt.Sprintf("%s: %v", le.Msg, le.Err)
	}
	if outErr := f.Error(le.Kind, msg); outErr != nil {
		return &ExitError{Code: ExitCommandError, Message: "writing output", Err: outErr}
	}
	return &ExitError{Code: ExitFailure, Message: le.Kind.String(), Err: err, Reported: true}
}
