package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConfigurationError means the invocation cannot be attempted at all.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

func (e *ConfigurationError) Recoverable() bool { return false }

// CommandNotFoundError means the first command token did not resolve to an executable.
type CommandNotFoundError struct {
	Command string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("The command to be executed, '%s', cannot be found", e.Command)
}

func (e *CommandNotFoundError) Recoverable() bool { return false }

// FileContractError reports a declared file that was missing.
type FileContractError struct {
	Phase string
	Path  string
}

func (e *FileContractError) Error() string {
	return fmt.Sprintf("The following %s file does not exist: %s", e.Phase, e.Path)
}

func (e *FileContractError) Recoverable() bool { return false }

// TimeoutError is always recoverable: the evaluation point is skipped, not the run.
type TimeoutError struct {
	Timeout time.Duration
	// Seconds, when set, is the limit exactly as configured.
	Seconds float64
}

func (e *TimeoutError) Error() string {
	secs := FormatSeconds(e.Timeout)
	if e.Seconds > 0 {
		secs = formatFloatSeconds(e.Seconds)
	}
	return fmt.Sprintf("Timed out after %s sec.", secs)
}

func (e *TimeoutError) Recoverable() bool { return true }

// ExternalProcessError reports an exit code outside the allowed set.
type ExternalProcessError struct {
	Command    []string
	ReturnCode int
	Output     string
	Soft       bool
}

func (e *ExternalProcessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "external code '%s' failed: return_code = %d", strings.Join(e.Command, " "), e.ReturnCode)
	if out := strings.TrimRight(e.Output, "\n"); out != "" {
		b.WriteString("\nError Output:\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *ExternalProcessError) Recoverable() bool { return e.Soft }

type recoverable interface {
	Recoverable() bool
}

// IsRecoverable reports whether err belongs to the recoverable vocabulary a
// solver or line search may catch and back off from.
func IsRecoverable(err error) bool {
	var r recoverable
	if errors.As(err, &r) {
		return r.Recoverable()
	}
	return false
}

func IsFatal(err error) bool {
	return err != nil && !IsRecoverable(err)
}

// FormatSeconds renders d as seconds with at least one decimal place, e.g. "1.0" or "0.25".
func FormatSeconds(d time.Duration) string {
	return formatFloatSeconds(d.Seconds())
}

func formatFloatSeconds(secs float64) string {
	s := strconv.FormatFloat(secs, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
