package tasks

import (
	"context"

	"github.com/dataopskit/dbt-operations-framework/dbt"
	"github.com/dataopskit/dbt-operations-framework/pkg/logger"
	"github.com/dataopskit/dbt-operations-framework/variables"
	"github.com/dataopskit/dbt-operations-framework/warehouse"
)

// Hook abstracts the dbt CLI invocation adapter. The concrete implementation
// is dbt.Hook; tests substitute a recording fake through Deps.NewHook.
type Hook interface {
	Run(ctx context.Context, sub ...string) error
}

// HookFactory builds a Hook from a config snapshot. Exactly one Hook is live
// per execution attempt: a fresh one is built whenever the config changes.
type HookFactory func(cfg dbt.Config, lggr logger.Logger) Hook

// Deps are the external collaborators a task may touch. Warehouse and
// Variables are optional: a task only fails when it actually needs a
// collaborator that is missing.
type Deps struct {
	// Warehouse applies administrative statements (resize before a manual
	// full-refresh run).
	Warehouse warehouse.Client
	// Variables resolves the essential-models list during recovery.
	Variables variables.Store
	// NewHook overrides hook construction. Defaults to dbt.NewHook.
	NewHook HookFactory
}

func (d *Deps) newHook(cfg dbt.Config, lggr logger.Logger) Hook {
	if d != nil && d.NewHook != nil {
		return d.NewHook(cfg, lggr)
	}

	return dbt.NewHook(cfg, lggr)
}

// Input is the input of every dbt task operation: the run configuration plus
// the optional trigger payload supplied by the invoking context.
type Input struct {
	Config  dbt.Config `json:"config"`
	Trigger Trigger    `json:"trigger"`
}

// Output records the decision path a task took, so reports capture skips,
// recoveries and overrides.
type Output struct {
	// Skipped is set when the run was a successful no-op because the
	// configured model was not in the trigger payload's model list.
	Skipped bool `json:"skipped,omitempty"`
	// Retried is set when the run was re-invoked once with full-refresh
	// after a schema-sync error.
	Retried bool `json:"retried,omitempty"`
	// WarehouseOverride is set when a warehouse name/size override was
	// applied before the run.
	WarehouseOverride bool `json:"warehouse_override,omitempty"`
}
