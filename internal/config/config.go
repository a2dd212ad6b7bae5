package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	ModeExplicit = "explicit"
	ModeImplicit = "implicit"
)

type Config struct {
	MaxWorkers  int          `json:"max_workers"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Evaluation describes one external-code component in a batch file.
type Evaluation struct {
	Name    string         `json:"name"`
	Mode    string         `json:"mode"`
	Dir     string         `json:"dir,omitempty"`
	Stdout  string         `json:"stdout,omitempty"`
	Stderr  string         `json:"stderr,omitempty"`
	EnvFile string         `json:"env_file,omitempty"`
	Options map[string]any `json:"options"`
}

func Default() Config {
	return Config{
		MaxWorkers: 1,
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := json.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Evaluations {
		eval := &cfg.Evaluations[i]
		if eval.Name == "" {
			eval.Name = fmt.Sprintf("evaluation-%d", i+1)
		}
		if eval.Mode == "" {
			eval.Mode = ModeExplicit
		}
		if eval.Mode != ModeExplicit && eval.Mode != ModeImplicit {
			return cfg, fmt.Errorf("evaluation %s: unknown mode %q", eval.Name, eval.Mode)
		}
		if eval.Dir != "" && !filepath.IsAbs(eval.Dir) {
			eval.Dir = filepath.Join(base, eval.Dir)
		}
		if eval.EnvFile != "" && !filepath.IsAbs(eval.EnvFile) {
			eval.EnvFile = filepath.Join(base, eval.EnvFile)
		}
		if err := eval.mergeEnvFile(); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// mergeEnvFile folds the dotenv file under the evaluation's env_vars option;
// values set explicitly in env_vars win.
func (e *Evaluation) mergeEnvFile() error {
	if e.EnvFile == "" {
		return nil
	}
	fileEnv, err := godotenv.Read(e.EnvFile)
	if err != nil {
		return fmt.Errorf("evaluation %s: read env file: %w", e.Name, err)
	}
	merged := map[string]any{}
	for k, v := range fileEnv {
		merged[k] = v
	}
	if e.Options == nil {
		e.Options = map[string]any{}
	}
	if existing, ok := e.Options[OptEnvVars]; ok {
		explicit, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("evaluation %s: %s must be an object", e.Name, OptEnvVars)
		}
		for k, v := range explicit {
			merged[k] = v
		}
	}
	e.Options[OptEnvVars] = merged
	return nil
}
