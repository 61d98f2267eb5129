package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "snowflake" database/sql driver.
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/dataopskit/dbt-operations-framework/pkg/logger"
)

// SnowflakeClient is a Client backed by a Snowflake connection.
type SnowflakeClient struct {
	db   *sql.DB
	lggr logger.Logger
}

var _ Client = &SnowflakeClient{}

// NewSnowflake opens a Snowflake connection from a gosnowflake DSN and
// verifies it with a ping.
func NewSnowflake(ctx context.Context, dsn string, lggr logger.Logger) (*SnowflakeClient, error) {
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snowflake connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging snowflake: %w", err)
	}

	return newSnowflakeFromDB(db, lggr), nil
}

func newSnowflakeFromDB(db *sql.DB, lggr logger.Logger) *SnowflakeClient {
	return &SnowflakeClient{db: db, lggr: lggr.Named("snowflake")}
}

// Run executes a single administrative statement.
func (c *SnowflakeClient) Run(ctx context.Context, stmt string) error {
	c.lggr.Infow("Executing warehouse statement", "stmt", stmt)
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("executing %q: %w", stmt, err)
	}

	return nil
}

// Close closes the underlying connection pool.
func (c *SnowflakeClient) Close() error {
	return c.db.Close()
}
