package dbt

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultBin is used when Config.Bin is empty; it assumes dbt is on PATH.
const DefaultBin = "dbt"

// Config is the per-invocation run configuration for the dbt CLI. A Hook is
// constructed from a snapshot of it; whenever a field changes (for example
// forcing FullRefresh before a recovery run) a fresh Hook must be built.
type Config struct {
	// Env is passed to the subprocess in addition to the parent environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// ProfilesDir is passed as --profiles-dir when set.
	ProfilesDir string `json:"profiles_dir,omitempty" yaml:"profiles_dir,omitempty"`
	// Target is passed as --target when set.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// Dir is the working directory the CLI runs in.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Vars is passed as --vars, serialized to a JSON object.
	Vars map[string]any `json:"vars,omitempty" yaml:"vars,omitempty"`
	// Models is passed as --models when set.
	Models string `json:"models,omitempty" yaml:"models,omitempty"`
	// Exclude is passed as --exclude when set.
	Exclude string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// Select is passed as --select when set.
	Select string `json:"select,omitempty" yaml:"select,omitempty"`
	// Selector is passed as --selector when set.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	// FullRefresh adds --full-refresh, forcing incremental models to rebuild.
	FullRefresh bool `json:"full_refresh,omitempty" yaml:"full_refresh,omitempty"`
	// Data adds --data (dbt test).
	Data bool `json:"data,omitempty" yaml:"data,omitempty"`
	// Schema adds --schema (dbt test).
	Schema bool `json:"schema,omitempty" yaml:"schema,omitempty"`
	// WarnError adds the global --warn-error flag, treating warnings as errors.
	WarnError bool `json:"warn_error,omitempty" yaml:"warn_error,omitempty"`
	// Bin is the dbt binary to invoke. Defaults to DefaultBin.
	Bin string `json:"bin,omitempty" yaml:"bin,omitempty"`
	// Verbose streams subprocess output into the logger line by line.
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Args builds the argument list for the given subcommand. The binary name is
// not included. Global flags precede the subcommand, per-run flags follow it.
func (c Config) Args(sub ...string) ([]string, error) {
	var args []string
	if c.WarnError {
		args = append(args, "--warn-error")
	}
	args = append(args, sub...)

	if c.ProfilesDir != "" {
		args = append(args, "--profiles-dir", c.ProfilesDir)
	}
	if c.Target != "" {
		args = append(args, "--target", c.Target)
	}
	if len(c.Vars) > 0 {
		vars, err := json.Marshal(c.Vars)
		if err != nil {
			return nil, fmt.Errorf("serializing vars: %w", err)
		}
		args = append(args, "--vars", string(vars))
	}
	if c.FullRefresh {
		args = append(args, "--full-refresh")
	}
	if c.Data {
		args = append(args, "--data")
	}
	if c.Schema {
		args = append(args, "--schema")
	}
	if c.Models != "" {
		args = append(args, "--models", c.Models)
	}
	if c.Exclude != "" {
		args = append(args, "--exclude", c.Exclude)
	}
	if c.Select != "" {
		args = append(args, "--select", c.Select)
	}
	if c.Selector != "" {
		args = append(args, "--selector", c.Selector)
	}

	return args, nil
}

// WithEnv returns a copy of the config with the given environment variable
// set. The original Env map is not mutated, so configs snapshotted by an
// existing Hook stay intact.
func (c Config) WithEnv(key, value string) Config {
	env := make(map[string]string, len(c.Env)+1)
	for k, v := range c.Env {
		env[k] = v
	}
	env[key] = value
	c.Env = env

	return c
}

// envList renders Env as sorted KEY=VALUE pairs for exec.Cmd.
func (c Config) envList() []string {
	if len(c.Env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return pairs
}
