package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ambigdb/ambigdb/internal/connector"
)

// SQLiteConnector implements connector.Connector for SQLite candidate files.
type SQLiteConnector struct {
	db *sqlx.DB
}

// New creates a new SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{}
}

// Connect opens the candidate file named by the DSN, a path or ":memory:".
// Query parameters such as ?_pragma=busy_timeout(5000) pass through to the
// driver. A path that does not exist is an error unless cfg.Create is set.
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	if path := filePath(cfg.DSN); path != "" && !cfg.Create {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("sqlite candidate: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return fmt.Errorf("sqlite open: %w", err)
	}
	connector.PinConnection(db)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqlite connect: %w", err)
	}

	c.db = db
	return nil
}

// filePath returns the file a DSN points at, or "" for in-memory databases.
func filePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		if strings.Contains(path[i:], "mode=memory") {
			return ""
		}
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// BeginTx starts the candidate transaction.
func (c *SQLiteConnector) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return c.db.BeginTxx(ctx, opts)
}

// Disconnect closes the database connection.
func (c *SQLiteConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *SQLiteConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLiteConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
