// Package extcode wraps an external executable as a model component. The
// owning component writes the executable's input files before Compute or
// ApplyNonlinear and reads its output files after a nil return.
package extcode

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"

	"extcode/internal/classify"
	"extcode/internal/config"
	"extcode/internal/core"
	"extcode/internal/manifest"
	"extcode/internal/runner"
)

const (
	ProtocolCompute        = "compute"
	ProtocolApplyNonlinear = "apply_nonlinear"
)

// Evaluator is what a batch driver needs from either component form.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context) error
	ReturnCode() int
}

var sharedResolver = runner.NewResolver(0)

type external struct {
	name    string
	options *config.Options
	settings

	mu         sync.Mutex
	returnCode int
	last       core.ProcessOutcome
}

func newExternal(name string, values map[string]any, opts []Option) (*external, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	options, err := config.NewOptions(s.declarers...)
	if err != nil {
		return nil, err
	}
	if err := options.Apply(values); err != nil {
		return nil, err
	}
	if s.runner == nil {
		s.runner = runner.NewLauncher(
			runner.WithResolver(sharedResolver),
			runner.WithEventLog(s.events, s.runID),
		)
	}
	return &external{name: name, options: options, settings: s}, nil
}

func (e *external) Name() string { return e.name }

// Options gives read/write access to the same store constructor values populate.
func (e *external) Options() *config.Options { return e.options }

// ReturnCode is the exit code of the most recent launch, whatever its classification.
func (e *external) ReturnCode() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.returnCode
}

func (e *external) LastOutcome() core.ProcessOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// execute is shared by both protocols: input check, launch, classify, then
// the output check when the exit code was accepted.
func (e *external) execute(ctx context.Context, protocol string) error {
	spec := e.options.Spec(e.dir, e.stdout, e.stderr)
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := manifest.VerifyInputsExist(spec.Dir, spec.Manifest.Inputs); err != nil {
		return err
	}

	outcome, err := e.runner.Run(ctx, spec)
	if err == nil || outcome.ID != "" {
		e.remember(outcome)
	}
	if err != nil {
		// A launched child that was cut short by ctx is still an invocation.
		if outcome.ID != "" {
			e.report(ctx, protocol, outcome, err)
		}
		return err
	}

	result := classify.Classify(outcome, spec)
	err = result.Err
	if result.OK() {
		err = manifest.VerifyOutputsExist(spec.Dir, spec.Manifest.Outputs)
	}
	e.report(ctx, protocol, outcome, err)
	return err
}

func (e *external) remember(outcome core.ProcessOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.returnCode = outcome.ExitCode
	e.last = outcome
}

func (e *external) report(ctx context.Context, protocol string, outcome core.ProcessOutcome, err error) {
	kind := classify.Of(err)
	message := ""
	level := "info"
	if err != nil {
		message = err.Error()
		level = "warn"
		if kind == classify.Fatal {
			level = "error"
		}
	}

	_ = core.Emit(e.events, core.Event{
		RunID:     e.runID,
		Level:     level,
		EventType: "evaluation_finished",
		Component: e.name,
		Payload: map[string]any{
			"protocol":       protocol,
			"invocation_id":  outcome.ID,
			"exit_code":      outcome.ExitCode,
			"classification": kind.String(),
		},
	})

	if e.recorder == nil {
		return
	}
	commandJSON, _ := json.Marshal(outcome.Command)
	rec := core.InvocationRecord{
		ID:             outcome.ID,
		RunID:          e.runID,
		Component:      e.name,
		Protocol:       protocol,
		CommandJSON:    string(commandJSON),
		ExitCode:       outcome.ExitCode,
		ElapsedMs:      outcome.Elapsed.Milliseconds(),
		TimedOut:       outcome.TimedOut,
		SpawnFailed:    outcome.SpawnFailed,
		Classification: kind.String(),
		Message:        message,
		OutputTail:     outcome.OutputTail,
		StartedAt:      outcome.StartedAt,
		FinishedAt:     outcome.FinishedAt,
	}
	if rec.ID == "" {
		rec.ID = core.NewInvocationID()
	}
	if recErr := e.recorder.RecordInvocation(context.WithoutCancel(ctx), rec); recErr != nil {
		_ = core.Emit(e.events, core.Event{
			RunID:     e.runID,
			Level:     "error",
			EventType: "record_failed",
			Component: e.name,
			Payload:   map[string]string{"error": recErr.Error()},
		})
	}
}

// Comp runs the external code while computing outputs from inputs.
type Comp struct {
	*external
}

func New(name string, values map[string]any, opts ...Option) (*Comp, error) {
	ext, err := newExternal(name, values, opts)
	if err != nil {
		return nil, err
	}
	return &Comp{external: ext}, nil
}

func (c *Comp) Compute(ctx context.Context) error {
	return c.execute(ctx, ProtocolCompute)
}

func (c *Comp) Evaluate(ctx context.Context) error {
	return c.Compute(ctx)
}

// ImplicitComp runs the external code while computing residuals from inputs
// and the current output guesses.
type ImplicitComp struct {
	*external
}

func NewImplicit(name string, values map[string]any, opts ...Option) (*ImplicitComp, error) {
	ext, err := newExternal(name, values, opts)
	if err != nil {
		return nil, err
	}
	return &ImplicitComp{external: ext}, nil
}

func (c *ImplicitComp) ApplyNonlinear(ctx context.Context) error {
	return c.execute(ctx, ProtocolApplyNonlinear)
}

func (c *ImplicitComp) Evaluate(ctx context.Context) error {
	return c.ApplyNonlinear(ctx)
}

// ExternalCode is the old name of Comp.
//
// Deprecated: use Comp.
type ExternalCode = Comp

const deprecationMessage = "'ExternalCode' has been deprecated. Use 'ExternalCodeComp' instead."

var (
	deprecationOnce sync.Once
	deprecationLog  = log.New(os.Stderr, "", log.LstdFlags)
)

// NewExternalCode builds a Comp and warns once per process.
//
// Deprecated: use New.
func NewExternalCode(name string, values map[string]any, opts ...Option) (*ExternalCode, error) {
	deprecationOnce.Do(func() {
		deprecationLog.Printf("DeprecationWarning: %s", deprecationMessage)
	})
	return New(name, values, opts...)
}

var (
	_ Evaluator = (*Comp)(nil)
	_ Evaluator = (*ImplicitComp)(nil)
)
