package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dataopskit/dbt-operations-framework/dbt"
	"github.com/dataopskit/dbt-operations-framework/operations"
	"github.com/dataopskit/dbt-operations-framework/variables"
	"github.com/dataopskit/dbt-operations-framework/warehouse"
)

// schemaSyncSignature is the error-text marker dbt emits when an incremental
// model's schema drifted from its source.
const schemaSyncSignature = "out of sync"

// warehouseEnvKey selects the warehouse dbt runs against.
const warehouseEnvKey = "DBT_WAREHOUSE"

// ErrWarehouseNotConfigured is returned when a trigger requests a warehouse
// override but no warehouse client was provided.
var ErrWarehouseNotConfigured = errors.New("warehouse client not configured")

// Run executes dbt run. Beyond the plain invocation it honors the trigger
// payload: a full-refresh override, a model restriction that turns the run
// into a successful no-op, and a warehouse name/size override applied before
// dbt starts. A schema-sync failure on a non-essential model is recovered
// once by re-running with --full-refresh.
var Run = operations.NewOperation("dbt-run", Version,
	"Runs dbt models with single-shot full-refresh recovery", runHandler)

func runHandler(b operations.Bundle, deps *Deps, in Input) (Output, error) {
	ctx := b.GetContext()
	cfg := in.Config
	cfg.FullRefresh = in.Trigger.FullRefresh

	var out Output

	if in.Trigger.restrictsModel(cfg.Models) {
		b.Logger.Infow("Skipping execution: model not in trigger payload",
			"model", cfg.Models, "trigger_models", in.Trigger.Models)
		out.Skipped = true

		return out, nil
	}

	if in.Trigger.HasWarehouseOverride() {
		if err := setWarehouse(ctx, b, deps, &cfg, in.Trigger.WarehouseName, in.Trigger.WarehouseSize); err != nil {
			b.Logger.Errorw("Failed to set warehouse for execution", "error", err)
			return out, err
		}
		out.WarehouseOverride = true
	}

	if err := deps.newHook(cfg, b.Logger).Run(ctx, "run"); err != nil {
		retried, rerr := recoverSchemaSync(ctx, b, deps, cfg, err)
		out.Retried = retried
		if rerr != nil {
			b.Logger.Errorw("dbt run failed", "error", rerr)
			return out, rerr
		}
	}

	return out, nil
}

// setWarehouse points dbt at the named warehouse via the environment and
// resizes it with an administrative statement. Neither step is rolled back
// on failure; the caller treats any error as fatal for the execution.
func setWarehouse(ctx context.Context, b operations.Bundle, deps *Deps, cfg *dbt.Config, name, size string) error {
	if deps == nil || deps.Warehouse == nil {
		return ErrWarehouseNotConfigured
	}

	*cfg = cfg.WithEnv(warehouseEnvKey, name)

	stmt := warehouse.ResizeStatement(name, size)
	b.Logger.Infow("Overriding warehouse for execution", "name", name, "size", size)
	if err := deps.Warehouse.Run(ctx, stmt); err != nil {
		return fmt.Errorf("resizing warehouse %s: %w", name, err)
	}

	return nil
}

// recoverSchemaSync inspects a failed run and retries it once with
// full-refresh when the failure is a schema-sync error on an incremental
// model that is not flagged essential. It returns whether a retry was
// attempted and the error to surface: nil when the recovery run succeeded,
// the recovery run's own failure when it did not, or the original error
// unchanged when no retry applies.
func recoverSchemaSync(ctx context.Context, b operations.Bundle, deps *Deps, cfg dbt.Config, runErr error) (bool, error) {
	if !strings.Contains(runErr.Error(), schemaSyncSignature) || cfg.FullRefresh {
		return false, runErr
	}

	var essential []string
	if deps != nil && deps.Variables != nil {
		var err error
		essential, err = variables.EssentialModels(ctx, deps.Variables)
		if err != nil {
			return false, fmt.Errorf("fetching essential models: %w", err)
		}
	}

	if slices.Contains(essential, cfg.Models) {
		b.Logger.Infow("Not retrying with full_refresh: the model is essential; "+
			"check the source table and trigger a full-refresh manually if required",
			"model", cfg.Models)

		return false, runErr
	}

	b.Logger.Infow("Schema change on incremental model, retrying with full_refresh = true",
		"model", cfg.Models)

	cfg.FullRefresh = true
	if err := deps.newHook(cfg, b.Logger).Run(ctx, "run"); err != nil {
		return true, err
	}

	return true, nil
}
