package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"extcode/internal/config"
	"extcode/internal/core"
	"extcode/internal/engine"
	"extcode/internal/eventlog"
	"extcode/internal/extcode"
	"extcode/internal/store"
)

// Command runs every evaluation in a batch file and records the outcome.
type Command struct {
	ConfigPath  string
	ArtifactDir string
	DBPath      string
}

type Result struct {
	RunID   string
	Status  string
	Summary string
}

func (c Command) Run(ctx context.Context) (Result, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return Result{}, err
	}

	runID := core.NewRunID()

	artifactRoot := filepath.Join(c.ArtifactDir, runID)
	if err := os.MkdirAll(artifactRoot, 0o755); err != nil {
		return Result{}, fmt.Errorf("create artifact root: %w", err)
	}

	logger, err := eventlog.New(filepath.Join(artifactRoot, "events.jsonl"))
	if err != nil {
		return Result{}, err
	}
	defer logger.Close()

	dbPath := c.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(c.ArtifactDir, "extcode.db")
	}
	storeDB, err := store.NewSQLite(dbPath)
	if err != nil {
		return Result{}, err
	}
	defer storeDB.Close()

	if err := storeDB.Init(ctx); err != nil {
		return Result{}, err
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal config: %w", err)
	}

	run := core.RunRecord{
		RunID:     runID,
		ConfigRef: c.ConfigPath,
		StartedAt: time.Now(),
		Status:    core.RunStatusRunning,
		Config:    string(configJSON),
	}
	if err := storeDB.CreateRun(ctx, run); err != nil {
		return Result{}, err
	}
	if err := logger.Emit(core.Event{
		RunID:     runID,
		Level:     "info",
		EventType: "run_started",
		Payload: map[string]any{
			"config_path": c.ConfigPath,
			"evaluations": len(cfg.Evaluations),
		},
	}); err != nil {
		return Result{}, err
	}

	evaluators, err := buildEvaluators(cfg, runID, logger, storeDB)
	if err != nil {
		return finalize(storeDB, logger, runID, core.Summary{}, err)
	}

	executor := engine.Executor{
		Workers:  cfg.MaxWorkers,
		RunID:    runID,
		EventLog: logger,
	}
	results, summary, err := executor.Run(ctx, evaluators)
	if err != nil {
		result, runErr := finalize(storeDB, logger, runID, summary, err)
		if reportErr := writeReport(context.Background(), storeDB, artifactRoot, runID, summary, results); reportErr != nil {
			_ = logger.Emit(core.Event{
				RunID:     runID,
				Level:     "error",
				EventType: "report_failed",
				Payload:   map[string]string{"error": reportErr.Error()},
			})
		}
		return result, runErr
	}

	if err := storeDB.UpdateRunStatus(ctx, runID, core.RunStatusSucceeded, summary.String()); err != nil {
		return Result{}, err
	}

	if err := writeReport(ctx, storeDB, artifactRoot, runID, summary, results); err != nil {
		return Result{}, err
	}

	if err := logger.Emit(core.Event{
		RunID:     runID,
		Level:     "info",
		EventType: "run_finished",
		Payload: map[string]string{
			"status": core.RunStatusSucceeded,
		},
	}); err != nil {
		return Result{}, err
	}

	return Result{
		RunID:   runID,
		Status:  core.RunStatusSucceeded,
		Summary: summary.String(),
	}, nil
}

func buildEvaluators(cfg config.Config, runID string, logger core.EventLogger, recorder extcode.Recorder) ([]extcode.Evaluator, error) {
	evaluators := make([]extcode.Evaluator, 0, len(cfg.Evaluations))
	for _, eval := range cfg.Evaluations {
		opts := []extcode.Option{
			extcode.WithDir(eval.Dir),
			extcode.WithStreams(core.StreamTarget(eval.Stdout), core.StreamTarget(eval.Stderr)),
			extcode.WithEventLog(logger),
			extcode.WithRecorder(recorder),
			extcode.WithRunID(runID),
		}

		var (
			ev  extcode.Evaluator
			err error
		)
		switch eval.Mode {
		case config.ModeImplicit:
			ev, err = extcode.NewImplicit(eval.Name, eval.Options, opts...)
		default:
			ev, err = extcode.New(eval.Name, eval.Options, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("evaluation %s: %w", eval.Name, err)
		}
		evaluators = append(evaluators, ev)
	}
	return evaluators, nil
}

func finalize(storeDB *store.SQLiteStore, logger core.EventLogger, runID string, summary core.Summary, runErr error) (Result, error) {
	if updateErr := storeDB.UpdateRunStatus(context.Background(), runID, core.RunStatusFailed, summary.String()); updateErr != nil {
		return Result{}, updateErr
	}
	_ = core.Emit(logger, core.Event{
		RunID:     runID,
		Level:     "error",
		EventType: "run_failed",
		Payload: map[string]string{
			"error": runErr.Error(),
		},
	})

	return Result{RunID: runID, Status: core.RunStatusFailed, Summary: summary.String()}, runErr
}

type evaluationReport struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	ReturnCode int    `json:"return_code"`
	Error      string `json:"error,omitempty"`
}

type runReport struct {
	RunID       string             `json:"run_id"`
	Status      string             `json:"status"`
	Invocations int                `json:"invocations"`
	Failures    int                `json:"failures"`
	StartedAt   string             `json:"started_at"`
	Finished    string             `json:"finished_at"`
	Summary     core.Summary       `json:"summary"`
	Evaluations []evaluationReport `json:"evaluations"`
}

func writeReport(ctx context.Context, storeDB *store.SQLiteStore, artifactRoot, runID string, summary core.Summary, results []engine.Result) error {
	runSummary, err := storeDB.GetRunSummary(ctx, runID)
	if err != nil {
		return err
	}
	finished := ""
	if !runSummary.Finished.IsZero() {
		finished = runSummary.Finished.UTC().Format(time.RFC3339)
	}

	report := runReport{
		RunID:       runSummary.RunID,
		Status:      runSummary.Status,
		Invocations: runSummary.Invocations,
		Failures:    runSummary.Failures,
		StartedAt:   runSummary.Started.UTC().Format(time.RFC3339),
		Finished:    finished,
		Summary:     summary,
		Evaluations: make([]evaluationReport, 0, len(results)),
	}
	for _, r := range results {
		item := evaluationReport{Name: r.Name, Outcome: r.Kind.String(), ReturnCode: r.ReturnCode}
		if r.Skipped {
			item.Outcome = "skipped"
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		report.Evaluations = append(report.Evaluations, item)
	}

	return writeJSON(filepath.Join(artifactRoot, "summary.json"), report)
}

func writeJSON(path string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
