// Package classify maps a raw process outcome and the invocation's exit-code
// policy onto success, a recoverable failure, or a fatal failure.
package classify

import "extcode/internal/core"

// Kind describes the classification of an outcome.
type Kind int

const (
	Success Kind = iota
	Recoverable
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result carries the kind and, for failures, the error to surface unchanged.
type Result struct {
	Kind Kind
	Err  error
}

func (r Result) OK() bool { return r.Kind == Success }

// Classify is deterministic: the same outcome and spec always give the same Result.
func Classify(outcome core.ProcessOutcome, spec core.InvocationSpec) Result {
	switch {
	case outcome.SpawnFailed:
		name := ""
		if len(spec.Command) > 0 {
			name = spec.Command[0]
		}
		return Result{Kind: Fatal, Err: &core.CommandNotFoundError{Command: name}}
	case outcome.TimedOut:
		return Result{Kind: Recoverable, Err: &core.TimeoutError{Timeout: spec.Timeout, Seconds: spec.TimeoutSeconds}}
	case !spec.Accepts(outcome.ExitCode):
		err := &core.ExternalProcessError{
			Command:    spec.Command,
			ReturnCode: outcome.ExitCode,
			Output:     outcome.OutputTail,
			Soft:       !spec.FailHard,
		}
		if spec.FailHard {
			return Result{Kind: Fatal, Err: err}
		}
		return Result{Kind: Recoverable, Err: err}
	default:
		return Result{Kind: Success}
	}
}

// Of reports the kind an already-surfaced error belongs to.
func Of(err error) Kind {
	switch {
	case err == nil:
		return Success
	case core.IsRecoverable(err):
		return Recoverable
	default:
		return Fatal
	}
}
