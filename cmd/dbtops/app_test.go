package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataopskit/dbt-operations-framework/config"
	"github.com/dataopskit/dbt-operations-framework/dbt"
	"github.com/dataopskit/dbt-operations-framework/operations"
	"github.com/dataopskit/dbt-operations-framework/pkg/logger"
	"github.com/dataopskit/dbt-operations-framework/tasks"
)

// noopHook satisfies tasks.Hook; the factory below records the config
// snapshot each hook is built from.
type noopHook struct{}

func (noopHook) Run(context.Context, ...string) error { return nil }

func recordingHookFactory(cfgs *[]dbt.Config) tasks.HookFactory {
	return func(cfg dbt.Config, _ logger.Logger) tasks.Hook {
		*cfgs = append(*cfgs, cfg)
		return noopHook{}
	}
}

func Test_readTrigger(t *testing.T) {
	t.Parallel()

	payload := `{"full_refresh": true, "models": ["orders"], "warehouse_name": "wh1", "warehouse_size": "xl"}`

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		got, err := readTrigger("")
		require.NoError(t, err)
		assert.Equal(t, tasks.Trigger{}, got)
	})

	t.Run("inline JSON", func(t *testing.T) {
		t.Parallel()

		got, err := readTrigger(payload)
		require.NoError(t, err)
		assert.True(t, got.FullRefresh)
		assert.Equal(t, []string{"orders"}, got.Models)
		assert.Equal(t, "wh1", got.WarehouseName)
		assert.Equal(t, "xl", got.WarehouseSize)
	})

	t.Run("from file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "trigger.json")
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

		got, err := readTrigger("@" + path)
		require.NoError(t, err)
		assert.Equal(t, []string{"orders"}, got.Models)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := readTrigger("@" + filepath.Join(t.TempDir(), "missing.json"))
		require.ErrorContains(t, err, "reading trigger file")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		t.Parallel()

		_, err := readTrigger("{not json")
		require.Error(t, err)
	})
}

func Test_buildTrigger(t *testing.T) {
	t.Parallel()

	t.Run("full-refresh flag lands in the trigger", func(t *testing.T) {
		t.Parallel()

		trigger, err := buildTrigger(&rootFlags{fullRefresh: true})
		require.NoError(t, err)
		assert.True(t, trigger.FullRefresh)
	})

	t.Run("trigger payload keeps its own full refresh", func(t *testing.T) {
		t.Parallel()

		trigger, err := buildTrigger(&rootFlags{trigger: `{"full_refresh": true}`})
		require.NoError(t, err)
		assert.True(t, trigger.FullRefresh)
	})
}

// The run task takes the refresh decision from the trigger, not the config,
// so the flag must survive all the way to the hook's config snapshot.
func Test_RunCommand_FullRefreshFlagReachesHook(t *testing.T) {
	t.Parallel()

	flags := &rootFlags{fullRefresh: true}

	trigger, err := buildTrigger(flags)
	require.NoError(t, err)
	runCfg := buildRunConfig(&config.Config{}, flags)

	var cfgs []dbt.Config
	deps := &tasks.Deps{NewHook: recordingHookFactory(&cfgs)}
	b := operations.NewBundle(context.Background, logger.Test(t), operations.NewMemoryReporter())

	_, err = operations.ExecuteOperation(b, tasks.Run, deps, tasks.Input{Config: runCfg, Trigger: trigger})
	require.NoError(t, err)

	require.Len(t, cfgs, 1)
	assert.True(t, cfgs[0].FullRefresh, "dbt must be invoked with --full-refresh when the flag is set")
}

func Test_buildRunConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Dbt: config.DbtConfig{
			Bin:         "/usr/local/bin/dbt",
			ProfilesDir: "/etc/dbt",
			Target:      "dev",
			Dir:         "/srv/project",
			Vars:        map[string]any{"start_date": "2024-01-01"},
		},
	}

	t.Run("config values pass through", func(t *testing.T) {
		t.Parallel()

		got := buildRunConfig(cfg, &rootFlags{})
		assert.Equal(t, "/usr/local/bin/dbt", got.Bin)
		assert.Equal(t, "/etc/dbt", got.ProfilesDir)
		assert.Equal(t, "dev", got.Target)
		assert.Equal(t, "/srv/project", got.Dir)
		assert.False(t, got.FullRefresh)
	})

	t.Run("flags override config", func(t *testing.T) {
		t.Parallel()

		got := buildRunConfig(cfg, &rootFlags{
			target:      "prod",
			profilesDir: "/tmp/profiles",
			models:      "orders",
			fullRefresh: true,
			verbose:     true,
		})
		assert.Equal(t, "prod", got.Target)
		assert.Equal(t, "/tmp/profiles", got.ProfilesDir)
		assert.Equal(t, "orders", got.Models)
		assert.True(t, got.FullRefresh)
		assert.True(t, got.Verbose)
	})
}

func Test_newRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()

	want := []string{"run", "test", "snapshot", "seed", "deps", "clean", "docs", "tasks"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
