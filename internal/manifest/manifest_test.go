package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extcode/internal/core"
)

func TestVerifyEmptyIsNoop(t *testing.T) {
	require.NoError(t, VerifyInputsExist("", nil))
	require.NoError(t, VerifyOutputsExist(t.TempDir(), []string{}))
}

func TestVerifyInputsExist(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dat"), []byte("1"), 0o644))

	require.NoError(t, VerifyInputsExist(dir, []string{"a.dat"}))

	err := VerifyInputsExist(dir, []string{"a.dat", "missing.dat", "other.dat"})
	var contractErr *core.FileContractError
	require.True(t, errors.As(err, &contractErr))
	assert.Equal(t, PhaseInput, contractErr.Phase)
	assert.Equal(t, "missing.dat", contractErr.Path)
	assert.Contains(t, err.Error(), "missing.dat")
	assert.False(t, core.IsRecoverable(err))
}

func TestVerifyOutputsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.dat")

	err := VerifyOutputsExist("/nonexistent-dir", []string{out})
	var contractErr *core.FileContractError
	require.ErrorAs(t, err, &contractErr)
	assert.Equal(t, PhaseOutput, contractErr.Phase)

	require.NoError(t, os.WriteFile(out, nil, 0o644))
	require.NoError(t, VerifyOutputsExist("/nonexistent-dir", []string{out}))
}
