package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"extcode/internal/classify"
	"extcode/internal/core"
	"extcode/internal/extcode"
)

// Result is the classified outcome of one evaluation in a batch.
type Result struct {
	Name       string
	Kind       classify.Kind
	ReturnCode int
	Err        error
	Skipped    bool
}

// Executor evaluates independent components with at most Workers running at
// once. The first fatal error cancels the rest of the batch and is returned
// unchanged; recoverable errors are only tallied.
type Executor struct {
	Workers  int
	RunID    string
	EventLog core.EventLogger
}

func (e *Executor) Run(ctx context.Context, evaluators []extcode.Evaluator) ([]Result, core.Summary, error) {
	workers := e.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(evaluators))
	summary := core.Summary{}
	var mu sync.Mutex

	_ = core.Emit(e.EventLog, core.Event{
		RunID:     e.RunID,
		EventType: "batch_started",
		Payload: map[string]int{
			"evaluations": len(evaluators),
			"workers":     workers,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, ev := range evaluators {
		i, ev := i, ev
		results[i] = Result{Name: ev.Name(), Skipped: true}

		g.Go(func() error {
			if gctx.Err() != nil {
				_ = core.Emit(e.EventLog, core.Event{
					RunID:     e.RunID,
					Level:     "warn",
					EventType: "evaluation_skipped",
					Component: ev.Name(),
				})
				return nil
			}

			err := ev.Evaluate(gctx)
			kind := classify.Of(err)

			mu.Lock()
			results[i] = Result{
				Name:       ev.Name(),
				Kind:       kind,
				ReturnCode: ev.ReturnCode(),
				Err:        err,
			}
			summary.Evaluations++
			switch kind {
			case classify.Success:
				summary.Succeeded++
			case classify.Recoverable:
				summary.Recoverable++
			default:
				summary.Fatal++
			}
			mu.Unlock()

			if kind == classify.Fatal {
				return err
			}
			return nil
		})
	}

	err := g.Wait()

	_ = core.Emit(e.EventLog, core.Event{
		RunID:     e.RunID,
		EventType: "batch_finished",
		Payload:   summary,
	})

	return results, summary, err
}
