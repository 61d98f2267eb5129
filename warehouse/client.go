// Package warehouse issues administrative SQL against the data warehouse,
// primarily resizing compute before manually triggered full-refresh runs.
package warehouse

import (
	"context"
	"fmt"
	"strings"
)

// Client executes administrative statements against the warehouse endpoint.
type Client interface {
	// Run executes a single statement, returning any connection or statement
	// failure. A resize is not transactional with the dbt run that follows.
	Run(ctx context.Context, stmt string) error
	Close() error
}

// ResizeStatement builds the ALTER WAREHOUSE statement resizing the named
// warehouse. Both the name and size are upper-cased.
func ResizeStatement(name, size string) string {
	return fmt.Sprintf("ALTER WAREHOUSE %s SET WAREHOUSE_SIZE = %s;",
		strings.ToUpper(name), strings.ToUpper(size))
}
