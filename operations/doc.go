/*
Package operations provides the execution core for dbt tasks: typed,
versioned operations executed with a shared Bundle of dependencies, optional
retry, and report tracking.

An Operation wraps a single unit of work (a dbt subcommand invocation, an
administrative warehouse statement) behind a typed handler. ExecuteOperation
runs it, records a Report with the configured Reporter, and optionally
retries with an input hook to adjust parameters between attempts.

	op := operations.NewOperation("dbt-test", semver.MustParse("1.0.0"), "Runs dbt test", handler)
	b := operations.NewBundle(context.Background, lggr, operations.NewMemoryReporter())
	report, err := operations.ExecuteOperation(b, op, deps, input)
*/
package operations
