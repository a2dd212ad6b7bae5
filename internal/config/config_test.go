package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultWithoutPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solver.env"), []byte("OMP_NUM_THREADS=4\nSOLVER_HOME=/opt/solver\n"), 0o644))
	path := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"max_workers": 3,
		"evaluations": [
			{
				"name": "paraboloid",
				"dir": "work",
				"env_file": "solver.env",
				"options": {
					"command": ["python", "paraboloid.py"],
					"env_vars": {"OMP_NUM_THREADS": "1"}
				}
			},
			{"mode": "implicit", "options": {"command": ["node"]}}
		]
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxWorkers)
	require.Len(t, cfg.Evaluations, 2)

	first := cfg.Evaluations[0]
	assert.Equal(t, ModeExplicit, first.Mode)
	assert.Equal(t, filepath.Join(dir, "work"), first.Dir)
	assert.Equal(t, map[string]any{
		"OMP_NUM_THREADS": "1",
		"SOLVER_HOME":     "/opt/solver",
	}, first.Options[OptEnvVars])

	second := cfg.Evaluations[1]
	assert.Equal(t, "evaluation-2", second.Name)
	assert.Equal(t, ModeImplicit, second.Mode)

	o, err := NewOptions()
	require.NoError(t, err)
	require.NoError(t, o.Apply(first.Options))
	assert.Equal(t, "/opt/solver", o.StringMap(OptEnvVars)["SOLVER_HOME"])
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"evaluations":[{"mode":"adjoint"}]}`), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown mode")
}

func TestLoadMissingEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"evaluations":[{"env_file":"nope.env"}]}`), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "read env file")
}
