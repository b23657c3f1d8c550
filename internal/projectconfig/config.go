// Package projectconfig provides the ProjectConfig struct and loader for
// .servicecounter.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spboyer/servicecounter/internal/hooks"
	"github.com/spboyer/servicecounter/internal/utils"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".servicecounter.yaml"

// Default values for project configuration. New() is the only place that
// should use them.
const (
	DefaultJobPath     = "job.yaml"
	DefaultTasksPath   = "tasks.yaml"
	DefaultResultsPath = "result.json"
	DefaultTranscripts = "transcripts"

	DefaultOracle         = "copilot"
	DefaultModel          = "claude-sonnet-4.6"
	DefaultUI             = "auto"
	DefaultOracleTimeout  = 300
	DefaultPollIntervalMs = 100
)

// PathsConfig holds the locations of input documents and outputs.
type PathsConfig struct {
	Job         string `yaml:"job,omitempty"`
	Tasks       string `yaml:"tasks,omitempty"`
	Results     string `yaml:"results,omitempty"`
	Transcripts string `yaml:"transcripts,omitempty"`
	SessionLogs string `yaml:"sessionLogs,omitempty"`
}

// DefaultsConfig holds default session parameters.
type DefaultsConfig struct {
	Oracle string `yaml:"oracle,omitempty"`
	Model  string `yaml:"model,omitempty"`
	UI     string `yaml:"ui,omitempty"`
	// OracleTimeout is in seconds.
	OracleTimeout  int   `yaml:"oracleTimeout,omitempty"`
	PollIntervalMs int   `yaml:"pollIntervalMs,omitempty"`
	SessionLog     *bool `yaml:"sessionLog,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .servicecounter.yaml.
type ProjectConfig struct {
	Paths    PathsConfig    `yaml:"paths,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Hooks    hooks.Config   `yaml:"hooks,omitempty"`

	// dir is where the config file was found; empty when defaults are used.
	dir string
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Job:         DefaultJobPath,
			Tasks:       DefaultTasksPath,
			Results:     DefaultResultsPath,
			Transcripts: DefaultTranscripts,
		},
		Defaults: DefaultsConfig{
			Oracle:         DefaultOracle,
			Model:          DefaultModel,
			UI:             DefaultUI,
			OracleTimeout:  DefaultOracleTimeout,
			PollIntervalMs: DefaultPollIntervalMs,
			SessionLog:     boolPtr(false),
		},
	}
}

// Dir returns the directory holding the loaded config file, or "" when no
// file was found.
func (c *ProjectConfig) Dir() string {
	return c.dir
}

// Resolve makes a configured path absolute relative to the config file.
// Paths are returned unchanged when no config file was loaded.
func (c *ProjectConfig) Resolve(path string) string {
	if c.dir == "" {
		return path
	}
	return utils.ResolvePath(path, c.dir)
}

// OracleTimeout returns the oracle timeout as a duration.
func (c *ProjectConfig) OracleTimeout() time.Duration {
	return time.Duration(c.Defaults.OracleTimeout) * time.Second
}

// PollInterval returns the front end poll interval as a duration.
func (c *ProjectConfig) PollInterval() time.Duration {
	return time.Duration(c.Defaults.PollIntervalMs) * time.Millisecond
}

// Load finds .servicecounter.yaml by walking up from startDir (max 10
// levels), unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, dir, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	cfg.dir = dir
	return cfg, nil
}

// findConfigFile walks up from dir looking for the config file (max 10
// levels). Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, string, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, "", os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Job != "" {
		dst.Paths.Job = src.Paths.Job
	}
	if src.Paths.Tasks != "" {
		dst.Paths.Tasks = src.Paths.Tasks
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}
	if src.Paths.Transcripts != "" {
		dst.Paths.Transcripts = src.Paths.Transcripts
	}
	if src.Paths.SessionLogs != "" {
		dst.Paths.SessionLogs = src.Paths.SessionLogs
	}

	// Defaults
	if src.Defaults.Oracle != "" {
		dst.Defaults.Oracle = src.Defaults.Oracle
	}
	if src.Defaults.Model != "" {
		dst.Defaults.Model = src.Defaults.Model
	}
	if src.Defaults.UI != "" {
		dst.Defaults.UI = src.Defaults.UI
	}
	if src.Defaults.OracleTimeout != 0 {
		dst.Defaults.OracleTimeout = src.Defaults.OracleTimeout
	}
	if src.Defaults.PollIntervalMs != 0 {
		dst.Defaults.PollIntervalMs = src.Defaults.PollIntervalMs
	}
	if src.Defaults.SessionLog != nil {
		dst.Defaults.SessionLog = src.Defaults.SessionLog
	}

	// Hooks
	if len(src.Hooks.BeforeSession) > 0 {
		dst.Hooks.BeforeSession = src.Hooks.BeforeSession
	}
	if len(src.Hooks.AfterSession) > 0 {
		dst.Hooks.AfterSession = src.Hooks.AfterSession
	}
}

func boolPtr(b bool) *bool {
	return &b
}
