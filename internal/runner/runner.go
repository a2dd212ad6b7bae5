package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"extcode/internal/core"
)

const (
	DefaultGrace = time.Second
	// DefaultDrain bounds how long output is read after the child exits
	// while a descendant still holds its stdout or stderr open.
	DefaultDrain = 100 * time.Millisecond

	minAdaptiveDelay = time.Millisecond
	maxAdaptiveDelay = 50 * time.Millisecond
)

type Runner interface {
	Run(ctx context.Context, spec core.InvocationSpec) (core.ProcessOutcome, error)
}

// Launcher starts one child per Run and supervises it with a poll loop.
// A Launcher holds no per-call state and may be shared.
type Launcher struct {
	resolver  *Resolver
	grace     time.Duration
	drain     time.Duration
	tailBytes int
	events    core.EventLogger
	runID     string
}

type Option func(*Launcher)

// WithGrace sets the wait between SIGTERM and SIGKILL on timeout.
func WithGrace(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.grace = d
		}
	}
}

func WithDrain(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.drain = d
		}
	}
}

func WithTailBytes(n int) Option {
	return func(l *Launcher) { l.tailBytes = n }
}

func WithResolver(r *Resolver) Option {
	return func(l *Launcher) {
		if r != nil {
			l.resolver = r
		}
	}
}

func WithEventLog(logger core.EventLogger, runID string) Option {
	return func(l *Launcher) {
		l.events = logger
		l.runID = runID
	}
}

func NewLauncher(opts ...Option) *Launcher {
	l := &Launcher{
		grace:     DefaultGrace,
		drain:     DefaultDrain,
		tailBytes: DefaultTailBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.resolver == nil {
		l.resolver = NewResolver(0)
	}
	return l
}

// Run launches spec.Command and waits for it. A command that cannot be found
// or started is reported through the outcome, not the error; the error is
// reserved for unusable specs, stream setup failures and ctx cancellation.
func (l *Launcher) Run(ctx context.Context, spec core.InvocationSpec) (core.ProcessOutcome, error) {
	if err := spec.Validate(); err != nil {
		return core.ProcessOutcome{}, err
	}

	start := time.Now()
	outcome := core.ProcessOutcome{
		ID:        core.NewInvocationID(),
		Command:   append([]string(nil), spec.Command...),
		StartedAt: start,
	}

	env := overlayEnv(os.Environ(), spec.Env)
	path, err := l.resolver.Resolve(spec.Command[0], lookupEnv(env, "PATH"), spec.Dir)
	if err != nil {
		return l.spawnFailed(outcome, err), nil
	}

	streams, err := openStreams(spec, l.tailBytes)
	if err != nil {
		return core.ProcessOutcome{}, fmt.Errorf("open output streams: %w", err)
	}
	defer streams.Close()

	// The child gets the pipe files themselves, so Wait returns when the
	// process exits rather than when every holder of the pipes is gone.
	cmd := exec.Command(path, spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = env
	cmd.Stdout = streams.stdoutW
	cmd.Stderr = streams.stderrW
	setProcessGroup(cmd)

	err = cmd.Start()
	streams.closeChildEnds()
	if err != nil {
		return l.spawnFailed(outcome, err), nil
	}
	l.emit("info", "process_started", map[string]any{
		"invocation_id": outcome.ID,
		"argv0":         path,
		"args_len":      len(spec.Command) - 1,
		"pid":           cmd.Process.Pid,
		"timeout_secs":  spec.Timeout.Seconds(),
	})

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut, ctxErr := l.supervise(ctx, cmd.Process.Pid, done, spec, start)
	streams.drain(l.drain)

	outcome.FinishedAt = time.Now()
	outcome.Elapsed = outcome.FinishedAt.Sub(start)
	outcome.ExitCode = exitStatus(cmd.ProcessState)
	outcome.TimedOut = timedOut
	outcome.OutputTail = streams.tail.String()

	if timedOut {
		l.emit("warn", "process_timed_out", map[string]any{
			"invocation_id": outcome.ID,
			"timeout_secs":  spec.Timeout.Seconds(),
			"elapsed_ms":    outcome.Elapsed.Milliseconds(),
		})
	} else {
		l.emit("info", "process_finished", map[string]any{
			"invocation_id": outcome.ID,
			"exit_code":     outcome.ExitCode,
			"elapsed_ms":    outcome.Elapsed.Milliseconds(),
		})
	}

	if ctxErr != nil {
		return outcome, ctxErr
	}
	return outcome, nil
}

// supervise sleeps, then checks for exit, the deadline and ctx, until one fires.
func (l *Launcher) supervise(ctx context.Context, pid int, done <-chan error, spec core.InvocationSpec, start time.Time) (bool, error) {
	delay := newPollDelay(spec.PollDelay)
	timer := time.NewTimer(delay.next())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-ctx.Done():
			if l.terminate(pid, done) {
				return false, nil
			}
			return false, ctx.Err()
		}

		select {
		case <-done:
			return false, nil
		default:
		}

		if spec.Timeout > 0 && time.Since(start) > spec.Timeout {
			if l.terminate(pid, done) {
				return false, nil
			}
			return true, nil
		}
		timer.Reset(delay.next())
	}
}

// terminate asks the group to stop, escalates after the grace window, and
// waits for the child to be reaped. It reports true, without signalling,
// when the child had already been reaped.
func (l *Launcher) terminate(pid int, done <-chan error) bool {
	select {
	case <-done:
		return true
	default:
	}

	_ = terminateGroup(pid)
	grace := time.NewTimer(l.grace)
	defer grace.Stop()
	select {
	case <-done:
		return false
	case <-grace.C:
	}
	_ = killGroup(pid)
	<-done
	return false
}

func (l *Launcher) spawnFailed(outcome core.ProcessOutcome, err error) core.ProcessOutcome {
	outcome.SpawnFailed = true
	outcome.ExitCode = core.ExitCommandNotFound
	outcome.FinishedAt = time.Now()
	outcome.Elapsed = outcome.FinishedAt.Sub(outcome.StartedAt)
	l.emit("error", "process_spawn_failed", map[string]any{
		"invocation_id": outcome.ID,
		"command":       outcome.Command[0],
		"error":         err.Error(),
	})
	return outcome
}

func (l *Launcher) emit(level string, eventType string, payload map[string]any) {
	_ = core.Emit(l.events, core.Event{
		RunID:     l.runID,
		Level:     level,
		EventType: eventType,
		Payload:   payload,
	})
}

// pollDelay yields the fixed delay, or when configured as zero a delay
// starting at 1ms and doubling up to 50ms. It never yields zero.
type pollDelay struct {
	fixed   time.Duration
	current time.Duration
}

func newPollDelay(d time.Duration) *pollDelay {
	return &pollDelay{fixed: d}
}

func (p *pollDelay) next() time.Duration {
	if p.fixed > 0 {
		return p.fixed
	}
	if p.current == 0 {
		p.current = minAdaptiveDelay
		return p.current
	}
	p.current *= 2
	if p.current > maxAdaptiveDelay {
		p.current = maxAdaptiveDelay
	}
	return p.current
}

// streams owns the pipes between the child and the output targets. Each
// read end is copied into its target file (if any) and the shared tail.
type streams struct {
	stdoutW *os.File
	stderrW *os.File
	readers []*os.File
	tail    *TailBuffer
	files   []*os.File
	copies  sync.WaitGroup
}

func openStreams(spec core.InvocationSpec, tailBytes int) (*streams, error) {
	s := &streams{tail: NewTailBuffer(tailBytes)}

	stdoutW, err := s.pipeTo(spec.Dir, spec.Stdout)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.stdoutW = stdoutW

	if spec.Stderr == core.StreamMergeStdout {
		s.stderrW = stdoutW
		return s, nil
	}
	stderrW, err := s.pipeTo(spec.Dir, spec.Stderr)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.stderrW = stderrW
	return s, nil
}

func (s *streams) pipeTo(dir string, target core.StreamTarget) (*os.File, error) {
	var dst io.Writer = s.tail
	if target.IsFile() {
		path := string(target)
		if dir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		s.files = append(s.files, file)
		dst = io.MultiWriter(file, s.tail)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	s.readers = append(s.readers, r)
	s.copies.Add(1)
	go func() {
		defer s.copies.Done()
		_, _ = io.Copy(dst, r)
	}()
	return w, nil
}

// closeChildEnds drops the parent's copies of the write ends once the child
// holds them, so the readers see EOF when the child's side closes.
func (s *streams) closeChildEnds() {
	if s.stdoutW != nil {
		_ = s.stdoutW.Close()
	}
	if s.stderrW != nil && s.stderrW != s.stdoutW {
		_ = s.stderrW.Close()
	}
	s.stdoutW, s.stderrW = nil, nil
}

// drain waits up to d for the readers to reach EOF, then closes them so a
// lingering descendant cannot hold the call open.
func (s *streams) drain(d time.Duration) {
	finished := make(chan struct{})
	go func() {
		s.copies.Wait()
		close(finished)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-finished:
		return
	case <-timer.C:
	}

	for _, r := range s.readers {
		_ = r.Close()
	}
	timer.Reset(d)
	select {
	case <-finished:
	case <-timer.C:
	}
}

func (s *streams) Close() {
	s.closeChildEnds()
	for _, r := range s.readers {
		_ = r.Close()
	}
	s.copies.Wait()
	for _, file := range s.files {
		_ = file.Close()
	}
}

func overlayEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overlay[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for key, value := range overlay {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
	}
	return out
}

func lookupEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && k == key {
			return v
		}
	}
	return ""
}
