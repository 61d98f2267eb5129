package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataopskit/dbt-operations-framework/dbt"
	"github.com/dataopskit/dbt-operations-framework/operations"
	"github.com/dataopskit/dbt-operations-framework/pkg/logger"
	"github.com/dataopskit/dbt-operations-framework/variables"
)

// hookRecorder hands out recording hooks and scripts their failures: the
// n-th invocation returns the n-th error (nil once the script is exhausted).
type hookRecorder struct {
	mu          sync.Mutex
	errs        []error
	invocations []invocation
}

type invocation struct {
	cfg dbt.Config
	sub []string
}

func (r *hookRecorder) factory() HookFactory {
	return func(cfg dbt.Config, lggr logger.Logger) Hook {
		return &recordedHook{recorder: r, cfg: cfg}
	}
}

type recordedHook struct {
	recorder *hookRecorder
	cfg      dbt.Config
}

func (h *recordedHook) Run(_ context.Context, sub ...string) error {
	r := h.recorder
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.invocations)
	r.invocations = append(r.invocations, invocation{cfg: h.cfg, sub: sub})
	if n < len(r.errs) {
		return r.errs[n]
	}

	return nil
}

// fakeWarehouse records statements and optionally fails.
type fakeWarehouse struct {
	stmts []string
	err   error
}

func (w *fakeWarehouse) Run(_ context.Context, stmt string) error {
	if w.err != nil {
		return w.err
	}
	w.stmts = append(w.stmts, stmt)

	return nil
}

func (w *fakeWarehouse) Close() error { return nil }

func essentialStore(t *testing.T, models ...string) variables.Store {
	t.Helper()
	store := variables.NewMemoryStore()
	require.NoError(t, store.SetJSON(variables.EssentialModelsKey, models))

	return store
}

func newBundle(t *testing.T) operations.Bundle {
	t.Helper()
	return operations.NewBundle(context.Background, logger.Test(t), operations.NewMemoryReporter())
}

var errOutOfSync = errors.New(`dbt run exited with code 1: Compilation Error: the incremental model is out of sync with the source schema`)

func Test_Run_SchemaSyncRecovery(t *testing.T) {
	t.Parallel()

	t.Run("retries once with full refresh", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{errs: []error{errOutOfSync}}
		deps := &Deps{Variables: essentialStore(t), NewHook: recorder.factory()}
		in := Input{Config: dbt.Config{Models: "orders"}}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.NoError(t, err)
		assert.True(t, report.Output.Retried)

		require.Len(t, recorder.invocations, 2)
		assert.Equal(t, []string{"run"}, recorder.invocations[0].sub)
		assert.False(t, recorder.invocations[0].cfg.FullRefresh)
		assert.Equal(t, []string{"run"}, recorder.invocations[1].sub)
		assert.True(t, recorder.invocations[1].cfg.FullRefresh,
			"the recovery hook must be rebuilt with full_refresh set")
	})

	t.Run("second sync error is surfaced, not retried again", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{errs: []error{errOutOfSync, errOutOfSync}}
		deps := &Deps{Variables: essentialStore(t), NewHook: recorder.factory()}
		in := Input{Config: dbt.Config{Models: "orders"}}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.ErrorContains(t, err, "out of sync")
		assert.True(t, report.Output.Retried)
		assert.Len(t, recorder.invocations, 2, "at most one recovery per execution")
	})

	t.Run("full refresh already set is never retried", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{errs: []error{errOutOfSync}}
		deps := &Deps{Variables: essentialStore(t), NewHook: recorder.factory()}
		in := Input{
			Config:  dbt.Config{Models: "orders"},
			Trigger: Trigger{FullRefresh: true},
		}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.ErrorContains(t, err, "out of sync")
		assert.False(t, report.Output.Retried)
		assert.Len(t, recorder.invocations, 1)
	})

	t.Run("essential model is never retried", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{errs: []error{errOutOfSync}}
		deps := &Deps{Variables: essentialStore(t, "orders"), NewHook: recorder.factory()}
		in := Input{Config: dbt.Config{Models: "orders"}}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.ErrorContains(t, err, "out of sync")
		assert.False(t, report.Output.Retried)
		assert.Len(t, recorder.invocations, 1)
	})

	t.Run("unrelated errors are surfaced unchanged", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{errs: []error{errors.New("database is unavailable")}}
		deps := &Deps{Variables: essentialStore(t), NewHook: recorder.factory()}
		in := Input{Config: dbt.Config{Models: "orders"}}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.ErrorContains(t, err, "database is unavailable")
		assert.False(t, report.Output.Retried)
		assert.Len(t, recorder.invocations, 1)
	})

	t.Run("missing variables store defaults to empty list", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{errs: []error{errOutOfSync}}
		deps := &Deps{NewHook: recorder.factory()}
		in := Input{Config: dbt.Config{Models: "orders"}}

		_, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.NoError(t, err)
		assert.Len(t, recorder.invocations, 2)
	})
}

func Test_Run_ModelRestriction(t *testing.T) {
	t.Parallel()

	t.Run("skips when configured model is not listed", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{}
		deps := &Deps{NewHook: recorder.factory()}
		in := Input{
			Config:  dbt.Config{Models: "c"},
			Trigger: Trigger{Models: []string{"a", "b"}},
		}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.NoError(t, err)
		assert.True(t, report.Output.Skipped)
		assert.Empty(t, recorder.invocations, "a skip performs no CLI invocation")
	})

	t.Run("runs when configured model is listed", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{}
		deps := &Deps{NewHook: recorder.factory()}
		in := Input{
			Config:  dbt.Config{Models: "a"},
			Trigger: Trigger{Models: []string{"a", "b"}},
		}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.NoError(t, err)
		assert.False(t, report.Output.Skipped)
		assert.Len(t, recorder.invocations, 1)
	})

	t.Run("no restriction without a models key", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{}
		deps := &Deps{NewHook: recorder.factory()}
		in := Input{Config: dbt.Config{Models: "c"}}

		_, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.NoError(t, err)
		assert.Len(t, recorder.invocations, 1)
	})
}

func Test_Run_WarehouseOverride(t *testing.T) {
	t.Parallel()

	t.Run("resizes before running and selects via env", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{}
		wh := &fakeWarehouse{}
		deps := &Deps{Warehouse: wh, NewHook: recorder.factory()}
		in := Input{
			Config:  dbt.Config{Models: "orders"},
			Trigger: Trigger{WarehouseName: "wh1", WarehouseSize: "xl"},
		}

		report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.NoError(t, err)
		assert.True(t, report.Output.WarehouseOverride)

		require.Equal(t, []string{"ALTER WAREHOUSE WH1 SET WAREHOUSE_SIZE = XL;"}, wh.stmts)
		require.Len(t, recorder.invocations, 1)
		assert.Equal(t, "wh1", recorder.invocations[0].cfg.Env["DBT_WAREHOUSE"])
	})

	t.Run("partial override is ignored", func(t *testing.T) {
		t.Parallel()

		for _, trigger := range []Trigger{
			{WarehouseName: "wh1"},
			{WarehouseSize: "xl"},
		} {
			recorder := &hookRecorder{}
			wh := &fakeWarehouse{}
			deps := &Deps{Warehouse: wh, NewHook: recorder.factory()}
			in := Input{Config: dbt.Config{Models: "orders"}, Trigger: trigger}

			report, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
			require.NoError(t, err)
			assert.False(t, report.Output.WarehouseOverride)
			assert.Empty(t, wh.stmts)
			assert.Len(t, recorder.invocations, 1)
		}
	})

	t.Run("resize failure aborts before dbt runs", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{}
		wh := &fakeWarehouse{err: errors.New("insufficient privileges")}
		deps := &Deps{Warehouse: wh, NewHook: recorder.factory()}
		in := Input{
			Config:  dbt.Config{Models: "orders"},
			Trigger: Trigger{WarehouseName: "wh1", WarehouseSize: "xl"},
		}

		_, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.ErrorContains(t, err, "insufficient privileges")
		assert.Empty(t, recorder.invocations)
	})

	t.Run("missing warehouse client is fatal", func(t *testing.T) {
		t.Parallel()

		recorder := &hookRecorder{}
		deps := &Deps{NewHook: recorder.factory()}
		in := Input{
			Config:  dbt.Config{Models: "orders"},
			Trigger: Trigger{WarehouseName: "wh1", WarehouseSize: "xl"},
		}

		_, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
		require.ErrorContains(t, err, ErrWarehouseNotConfigured.Error())
		assert.Empty(t, recorder.invocations)
	})
}

func Test_Run_TriggerFullRefreshApplied(t *testing.T) {
	t.Parallel()

	recorder := &hookRecorder{}
	deps := &Deps{NewHook: recorder.factory()}
	in := Input{
		Config:  dbt.Config{Models: "orders"},
		Trigger: Trigger{FullRefresh: true},
	}

	_, err := operations.ExecuteOperation(newBundle(t), Run, deps, in)
	require.NoError(t, err)
	require.Len(t, recorder.invocations, 1)
	assert.True(t, recorder.invocations[0].cfg.FullRefresh)
}
