package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dataopskit/dbt-operations-framework/artifacts"
	"github.com/dataopskit/dbt-operations-framework/config"
	"github.com/dataopskit/dbt-operations-framework/dbt"
	"github.com/dataopskit/dbt-operations-framework/operations"
	"github.com/dataopskit/dbt-operations-framework/pkg/logger"
	"github.com/dataopskit/dbt-operations-framework/tasks"
	"github.com/dataopskit/dbt-operations-framework/variables"
	"github.com/dataopskit/dbt-operations-framework/warehouse"
)

// rootFlags are shared by every task subcommand. Flag values override file
// and env configuration.
type rootFlags struct {
	configPath string
	trigger    string
	reportsDir string
	verbose    bool

	target      string
	profilesDir string
	models      string
	exclude     string
	selectArg   string
	selector    string
	fullRefresh bool
	data        bool
	schema      bool
	warnError   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "dbtops",
		Short:         "Runs dbt tasks with warehouse-aware recovery",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags.register(root.PersistentFlags())

	root.AddCommand(
		newTaskCmd(flags, "run", "Run dbt models", tasks.Run),
		newTaskCmd(flags, "test", "Run dbt tests", tasks.Test),
		newTaskCmd(flags, "snapshot", "Execute dbt snapshots", tasks.Snapshot),
		newTaskCmd(flags, "seed", "Load dbt seed files", tasks.Seed),
		newTaskCmd(flags, "deps", "Install dbt package dependencies", tasks.InstallDeps),
		newTaskCmd(flags, "clean", "Clean dbt artifact folders", tasks.Clean),
		newDocsCmd(flags),
		newListCmd(),
	)

	return root
}

func (flags *rootFlags) register(pf *pflag.FlagSet) {
	pf.StringVar(&flags.configPath, "config", "dbtops.yaml", "path to the configuration file")
	pf.StringVar(&flags.trigger, "trigger", "", "trigger payload as inline JSON or @file")
	pf.StringVar(&flags.reportsDir, "reports-dir", "", "write execution reports into this directory")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging, including dbt output")
	pf.StringVar(&flags.target, "target", "", "dbt --target override")
	pf.StringVar(&flags.profilesDir, "profiles-dir", "", "dbt --profiles-dir override")
	pf.StringVar(&flags.models, "models", "", "dbt --models selector")
	pf.StringVar(&flags.exclude, "exclude", "", "dbt --exclude selector")
	pf.StringVar(&flags.selectArg, "select", "", "dbt --select selector")
	pf.StringVar(&flags.selector, "selector", "", "dbt --selector name")
	pf.BoolVar(&flags.fullRefresh, "full-refresh", false, "force a full refresh of incremental models")
	pf.BoolVar(&flags.data, "data", false, "run data tests only (dbt test)")
	pf.BoolVar(&flags.schema, "schema", false, "run schema tests only (dbt test)")
	pf.BoolVar(&flags.warnError, "warn-error", false, "treat dbt warnings as errors")
}

func newTaskCmd(flags *rootFlags, use, short string, op *operations.Operation[tasks.Input, tasks.Output, *tasks.Deps]) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := executeTask(cmd, flags, op)
			return err
		},
	}
}

// newDocsCmd generates docs and, when a bucket is configured, publishes the
// artifacts to object storage.
func newDocsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "Generate dbt docs and publish the artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := executeTask(cmd, flags, tasks.DocsGenerate)
			if err != nil {
				return err
			}
			if env.cfg.Artifacts.Bucket == "" {
				return nil
			}

			publisher, err := artifacts.NewPublisher(artifacts.Config{
				Endpoint:  env.cfg.Artifacts.Endpoint,
				AccessKey: env.cfg.Artifacts.AccessKey,
				SecretKey: env.cfg.Artifacts.SecretKey,
				Region:    env.cfg.Artifacts.Region,
				UseSSL:    env.cfg.Artifacts.UseSSL,
				Bucket:    env.cfg.Artifacts.Bucket,
				Prefix:    env.cfg.Artifacts.Prefix,
			}, env.lggr)
			if err != nil {
				return err
			}

			targetDir := filepath.Join(env.runCfg.Dir, "target")
			prefix, err := publisher.PublishDocs(cmd.Context(), targetDir)
			if err != nil {
				return err
			}
			env.lggr.Infow("Published dbt docs", "bucket", env.cfg.Artifacts.Bucket, "prefix", prefix)

			return nil
		},
	}
}

// newListCmd prints the registered task definitions.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the available dbt tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := tasks.Registry()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Version", "Description"})
			for _, id := range registry.IDs() {
				op, err := registry.Retrieve(id)
				if err != nil {
					return err
				}
				table.Append([]string{op.ID(), op.Version(), op.Description()})
			}
			table.Render()

			return nil
		},
	}
}

// taskEnv is what executeTask assembled, handed back for follow-up steps
// like docs publishing.
type taskEnv struct {
	cfg    *config.Config
	runCfg dbt.Config
	lggr   logger.Logger
}

func executeTask(cmd *cobra.Command, flags *rootFlags, op *operations.Operation[tasks.Input, tasks.Output, *tasks.Deps]) (*taskEnv, error) {
	ctx := cmd.Context()

	lggr, err := newCLILogger(flags.verbose)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lggr.Sync() }()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	runCfg := buildRunConfig(cfg, flags)
	if err := validateProfilesTarget(cfg, runCfg); err != nil {
		return nil, err
	}

	trigger, err := buildTrigger(flags)
	if err != nil {
		return nil, err
	}

	deps, cleanup, err := buildDeps(ctx, cfg, lggr)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	reporter, err := buildReporter(flags.reportsDir)
	if err != nil {
		return nil, err
	}

	b := operations.NewBundle(func() context.Context { return ctx }, lggr, reporter)

	start := time.Now()
	report, err := operations.ExecuteOperation(b, op, deps, tasks.Input{Config: runCfg, Trigger: trigger})
	printSummary(cmd.OutOrStdout(), op.ID(), report.Output, time.Since(start), err)

	return &taskEnv{cfg: cfg, runCfg: runCfg, lggr: lggr}, err
}

// buildRunConfig layers flag overrides over the loaded configuration.
func buildRunConfig(cfg *config.Config, flags *rootFlags) dbt.Config {
	runCfg := dbt.Config{
		Env:         cfg.Dbt.Env,
		ProfilesDir: cfg.Dbt.ProfilesDir,
		Target:      cfg.Dbt.Target,
		Dir:         cfg.Dbt.Dir,
		Vars:        cfg.Dbt.Vars,
		WarnError:   cfg.Dbt.WarnError,
		Bin:         cfg.Dbt.Bin,
		Verbose:     cfg.Dbt.Verbose || flags.verbose,
	}

	if flags.target != "" {
		runCfg.Target = flags.target
	}
	if flags.profilesDir != "" {
		runCfg.ProfilesDir = flags.profilesDir
	}
	if flags.models != "" {
		runCfg.Models = flags.models
	}
	if flags.exclude != "" {
		runCfg.Exclude = flags.exclude
	}
	if flags.selectArg != "" {
		runCfg.Select = flags.selectArg
	}
	if flags.selector != "" {
		runCfg.Selector = flags.selector
	}
	if flags.fullRefresh {
		runCfg.FullRefresh = true
	}
	if flags.data {
		runCfg.Data = true
	}
	if flags.schema {
		runCfg.Schema = true
	}
	if flags.warnError {
		runCfg.WarnError = true
	}

	return runCfg
}

// validateProfilesTarget fails fast when the configured profile does not
// define the requested target.
func validateProfilesTarget(cfg *config.Config, runCfg dbt.Config) error {
	if cfg.Dbt.Profile == "" || runCfg.ProfilesDir == "" {
		return nil
	}

	profiles, err := dbt.LoadProfiles(filepath.Join(runCfg.ProfilesDir, "profiles.yml"))
	if err != nil {
		return err
	}
	if !profiles.HasTarget(cfg.Dbt.Profile, runCfg.Target) {
		return fmt.Errorf("profile %q has no target %q", cfg.Dbt.Profile, runCfg.Target)
	}

	return nil
}

// buildTrigger parses the --trigger payload and folds the --full-refresh
// flag into it. The run task takes the refresh decision from the trigger, so
// the flag has to land there to reach the dbt invocation.
func buildTrigger(flags *rootFlags) (tasks.Trigger, error) {
	trigger, err := readTrigger(flags.trigger)
	if err != nil {
		return tasks.Trigger{}, err
	}
	trigger.FullRefresh = trigger.FullRefresh || flags.fullRefresh

	return trigger, nil
}

// readTrigger parses the --trigger value: inline JSON, or @path to read the
// payload from a file.
func readTrigger(value string) (tasks.Trigger, error) {
	if strings.HasPrefix(value, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return tasks.Trigger{}, fmt.Errorf("reading trigger file: %w", err)
		}

		return tasks.ParseTrigger(data)
	}

	return tasks.ParseTrigger([]byte(value))
}

func buildDeps(ctx context.Context, cfg *config.Config, lggr logger.Logger) (*tasks.Deps, func(), error) {
	deps := &tasks.Deps{}
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Warehouse.DSN != "" {
		wh, err := warehouse.NewSnowflake(ctx, cfg.Warehouse.DSN, lggr)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connecting to warehouse: %w", err)
		}
		closers = append(closers, func() { _ = wh.Close() })
		deps.Warehouse = wh
	}

	if cfg.Variables.DSN != "" {
		store, err := variables.NewPostgres(ctx, cfg.Variables.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connecting to variables db: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.Variables = store
	}

	return deps, cleanup, nil
}

func buildReporter(dir string) (operations.Reporter, error) {
	if dir == "" {
		return operations.NewMemoryReporter(), nil
	}

	return operations.NewFileReporter(dir)
}

func printSummary(w io.Writer, taskID string, out tasks.Output, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	if out.Skipped {
		status = "skipped"
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Task", "Status", "Duration", "Retried", "Warehouse Override"})
	table.Append([]string{
		taskID,
		status,
		elapsed.Round(time.Millisecond).String(),
		fmt.Sprintf("%t", out.Retried),
		fmt.Sprintf("%t", out.WarehouseOverride),
	})
	table.Render()
}

// newCLILogger builds a console logger for interactive use.
func newCLILogger(verbose bool) (logger.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	return logger.NewWith(func(cfg *zap.Config) {
		*cfg = zap.NewDevelopmentConfig()
		cfg.Level.SetLevel(level)
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	})
}
