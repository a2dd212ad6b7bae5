// Package manifest checks the declared files around an external call. Only
// existence is checked, never content.
package manifest

import (
	"os"
	"path/filepath"

	"extcode/internal/core"
)

const (
	PhaseInput  = "input"
	PhaseOutput = "output"
)

// VerifyInputsExist fails with the first declared input that is missing.
func VerifyInputsExist(dir string, paths []string) error {
	return verify(dir, PhaseInput, paths)
}

// VerifyOutputsExist is only meaningful after an accepted exit code.
func VerifyOutputsExist(dir string, paths []string) error {
	return verify(dir, PhaseOutput, paths)
}

func verify(dir string, phase string, paths []string) error {
	for _, path := range paths {
		if !exists(resolve(dir, path)) {
			return &core.FileContractError{Phase: phase, Path: path}
		}
	}
	return nil
}

func resolve(dir string, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
