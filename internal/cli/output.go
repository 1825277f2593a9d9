package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/roach88/tokenledger/internal/audit"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Ledger rejection, failed scenario or diverged replay
	ExitCommandError = 2 // Command error (bad flags, unreadable files, store failures)
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Nil maps to
// ExitSuccess and errors without an ExitError to ExitCommandError.
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

// Response is the JSON envelope every command writes in json format.
type Response struct {
	Status string         `json:"status"`          // "ok" or "error"
	Data   any            `json:"data,omitempty"`  // success payload, or context for an error
	Error  *ResponseError `json:"error,omitempty"` // error details
}

// ResponseError is the error part of a Response.
type ResponseError struct {
	Code    string `json:"code"`    // ledger or runtime error code
	Message string `json:"message"` // human-readable message
}

// OutputFormatter renders command results as JSON or text.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Success writes data. In text format render draws it; a nil render prints
// data with fmt.
func (f *OutputFormatter) Success(data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		return f.encode(Response{Status: "ok", Data: data})
	}
	if render == nil {
		fmt.Fprintln(f.Writer, data)
		return nil
	}
	render(f.Writer)
	return nil
}

// Error writes a failure with optional context data.
func (f *OutputFormatter) Error(code, message string, data any) error {
	if f.Format == "json" {
		return f.encode(Response{
			Status: "error",
			Data:   data,
			Error:  &ResponseError{Code: code, Message: message},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return nil
}

func (f *OutputFormatter) encode(resp Response) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// EventView is the JSON shape of a recorded event.
type EventView struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Index     int            `json:"index"`
	FlowToken string         `json:"flow_token"`
	Kind      string         `json:"kind"`
	Fields    map[string]any `json:"fields"`
	Timestamp int64          `json:"timestamp"`
}

func eventViews(events []audit.Event) []EventView {
	views := make([]EventView, len(events))
	for i, ev := range events {
		views[i] = EventView{
			ID:        ev.ID,
			Seq:       ev.Seq,
			Index:     ev.Index,
			FlowToken: ev.FlowToken,
			Kind:      ev.Kind,
			Fields:    ev.Fields,
			Timestamp: ev.Timestamp,
		}
	}
	return views
}

// writeFields prints a map as sorted "key: value" lines.
func writeFields(w io.Writer, indent string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s%s: %s\n", indent, k, formatValue(m[k]))
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []any, []map[string]any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	case []string:
		return strings.Join(val, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// writeEvent prints one event as a single line followed by its fields.
func writeEvent(w io.Writer, ev audit.Event) {
	fmt.Fprintf(w, "[%d.%d] %s\n", ev.Seq, ev.Index, ev.Kind)
	writeFields(w, "    ", ev.Fields)
}
