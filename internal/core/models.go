package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ExitCommandNotFound is the exit code reported when the executable could not
// be resolved or started.
const ExitCommandNotFound = -999999

// StreamTarget selects where a child stream is written. The zero value
// discards the stream.
type StreamTarget string

const (
	StreamDiscard StreamTarget = ""
	// StreamMergeStdout sends stderr into whatever stdout is written to.
	StreamMergeStdout StreamTarget = "STDOUT"
)

func (t StreamTarget) IsFile() bool {
	return t != StreamDiscard && t != StreamMergeStdout
}

// InvocationSpec is the immutable snapshot used for one external call.
type InvocationSpec struct {
	Command            []string
	Env                map[string]string
	Dir                string
	Stdout             StreamTarget
	Stderr             StreamTarget
	Timeout            time.Duration
	TimeoutSeconds     float64
	PollDelay          time.Duration
	AllowedReturnCodes []int
	FailHard           bool
	Manifest           FileManifest
}

// Validate reports whether the invocation can be launched.
func (s InvocationSpec) Validate() error {
	if len(s.Command) == 0 {
		return &ConfigurationError{Reason: "Empty command list"}
	}
	if s.Timeout < 0 {
		return &ConfigurationError{Reason: "timeout must be >= 0, got " + FormatSeconds(s.Timeout)}
	}
	if s.PollDelay < 0 {
		return &ConfigurationError{Reason: "poll_delay must be >= 0, got " + FormatSeconds(s.PollDelay)}
	}
	if s.Stdout == StreamMergeStdout {
		return &ConfigurationError{Reason: "stdout cannot be merged into itself"}
	}
	return nil
}

func (s InvocationSpec) Accepts(code int) bool {
	for _, allowed := range s.AllowedReturnCodes {
		if allowed == code {
			return true
		}
	}
	return false
}

// FileManifest lists the files that must exist before and after a call.
type FileManifest struct {
	Inputs  []string
	Outputs []string
}

// ProcessOutcome is the raw result of one launch.
type ProcessOutcome struct {
	ID          string
	Command     []string
	ExitCode    int
	Elapsed     time.Duration
	TimedOut    bool
	SpawnFailed bool
	OutputTail  string
	StartedAt   time.Time
	FinishedAt  time.Time
}

type RunRecord struct {
	RunID     string
	ConfigRef string
	StartedAt time.Time
	Status    string
	Config    string
}

type InvocationRecord struct {
	ID             string
	RunID          string
	Component      string
	Protocol       string
	CommandJSON    string
	ExitCode       int
	ElapsedMs      int64
	TimedOut       bool
	SpawnFailed    bool
	Classification string
	Message        string
	OutputTail     string
	StartedAt      time.Time
	FinishedAt     time.Time
}

type RunSummary struct {
	RunID       string
	Status      string
	Invocations int
	Failures    int
	Started     time.Time
	Finished    time.Time
}

type Summary struct {
	Evaluations int `json:"evaluations"`
	Succeeded   int `json:"succeeded"`
	Recoverable int `json:"recoverable"`
	Fatal       int `json:"fatal"`
}

func (s Summary) String() string {
	out, _ := json.Marshal(s)
	return string(out)
}

func NewRunID() string {
	return uuid.NewString()
}

func NewInvocationID() string {
	return uuid.NewString()
}
