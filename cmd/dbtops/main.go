// Command dbtops runs dbt tasks with warehouse-aware overrides and
// single-shot full-refresh recovery for incremental models.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}
