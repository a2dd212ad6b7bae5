//go:build !unix

package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const pathSeparators = `/\`

func setProcessGroup(cmd *exec.Cmd) {}

// Without process groups the only reliable stop is a kill of the direct child.
func terminateGroup(pid int) error {
	return killGroup(pid)
}

func killGroup(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

func findExecutable(dir string, name string) (string, bool) {
	path := filepath.Join(dir, name)
	if _, ok := isRegular(path); ok && filepath.Ext(name) != "" {
		return path, true
	}
	exts := strings.Split(strings.ToLower(os.Getenv("PATHEXT")), ";")
	if len(exts) == 1 && exts[0] == "" {
		exts = []string{".com", ".exe", ".bat", ".cmd"}
	}
	for _, ext := range exts {
		if ext == "" {
			continue
		}
		if _, ok := isRegular(path + ext); ok {
			return path + ext, true
		}
	}
	return "", false
}

func exitStatus(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
