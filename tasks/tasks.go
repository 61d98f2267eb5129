// Package tasks defines one operation per dbt subcommand. All of them are
// thin dispatchers over the CLI hook; the run task additionally applies
// trigger overrides and a single-shot full-refresh recovery.
package tasks

import (
	"github.com/Masterminds/semver/v3"

	"github.com/dataopskit/dbt-operations-framework/operations"
)

// Version is the current version of all dbt task definitions.
var Version = semver.MustParse("1.0.0")

var (
	// Test runs dbt test against the configured target.
	Test = newCommandTask("dbt-test", "Runs dbt test", "test")

	// Snapshot executes dbt snapshot.
	Snapshot = newCommandTask("dbt-snapshot", "Executes dbt snapshots", "snapshot")

	// Seed loads seed files into the warehouse.
	Seed = newCommandTask("dbt-seed", "Loads dbt seed files", "seed")

	// InstallDeps pulls the project's package dependencies.
	InstallDeps = newCommandTask("dbt-deps", "Installs dbt package dependencies", "deps")

	// Clean deletes dbt's local artifact folders.
	Clean = newCommandTask("dbt-clean", "Cleans dbt artifact folders", "clean")

	// DocsGenerate builds the documentation site artifacts. The two
	// positional arguments are passed in order.
	DocsGenerate = newCommandTask("dbt-docs-generate", "Generates dbt docs", "docs", "generate")
)

// Registry returns all dbt tasks registered for name-based dispatch.
func Registry() *operations.Registry {
	r := operations.NewRegistry()
	operations.Register(r, Run, Test, Snapshot, Seed, InstallDeps, Clean, DocsGenerate)

	return r
}

// newCommandTask builds an operation that invokes a fixed dbt subcommand
// with a fresh hook and propagates any failure.
func newCommandTask(id, description string, sub ...string) *operations.Operation[Input, Output, *Deps] {
	return operations.NewOperation(id, Version, description,
		func(b operations.Bundle, deps *Deps, in Input) (Output, error) {
			if err := deps.newHook(in.Config, b.Logger).Run(b.GetContext(), sub...); err != nil {
				b.Logger.Errorw("dbt invocation failed", "task", id, "error", err)
				return Output{}, err
			}

			return Output{}, nil
		})
}
