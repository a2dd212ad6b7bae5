package extcode

import (
	"context"

	"extcode/internal/config"
	"extcode/internal/core"
	"extcode/internal/runner"
)

// Recorder persists one row per invocation.
type Recorder interface {
	RecordInvocation(ctx context.Context, rec core.InvocationRecord) error
}

type settings struct {
	runner    runner.Runner
	dir       string
	stdout    core.StreamTarget
	stderr    core.StreamTarget
	events    core.EventLogger
	recorder  Recorder
	runID     string
	declarers []config.Declarer
}

type Option func(*settings)

// Declare adds option declarations on top of the base set, the way a
// derived component extends its parent's options.
func Declare(d config.Declarer) Option {
	return func(s *settings) { s.declarers = append(s.declarers, d) }
}

func WithRunner(r runner.Runner) Option {
	return func(s *settings) { s.runner = r }
}

// WithDir sets the working directory for the child and for relative
// manifest and stream paths.
func WithDir(dir string) Option {
	return func(s *settings) { s.dir = dir }
}

func WithStreams(stdout, stderr core.StreamTarget) Option {
	return func(s *settings) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

func WithEventLog(logger core.EventLogger) Option {
	return func(s *settings) { s.events = logger }
}

func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

func WithRunID(id string) Option {
	return func(s *settings) { s.runID = id }
}
