package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/connector"
)

const applicationName = "ambigdb"

// PostgresConnector implements connector.Connector for PostgreSQL candidates.
type PostgresConnector struct {
	db         *sqlx.DB
	schemaName string
}

// New creates a PostgresConnector reading the public schema.
func New() connector.Connector {
	return &PostgresConnector{schemaName: "public"}
}

// Connect parses the DSN with pgx and opens a single pinned connection. The
// candidate schema is put first on the search path so the unqualified table
// names the resolvers use refer to it.
func (c *PostgresConnector) Connect(cfg connector.ConnectionConfig) error {
	pgCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	pgCfg.ConnectTimeout = cfg.Timeout()
	if pgCfg.RuntimeParams == nil {
		pgCfg.RuntimeParams = make(map[string]string)
	}
	if _, ok := pgCfg.RuntimeParams["application_name"]; !ok {
		pgCfg.RuntimeParams["application_name"] = applicationName
	}
	pgCfg.RuntimeParams["search_path"] = c.QuoteIdentifier(c.schemaName)

	db := sqlx.NewDb(stdlib.OpenDB(*pgCfg), "pgx")
	connector.PinConnection(db)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres connect: %w", err)
	}

	c.db = db
	return nil
}

// BeginTx starts the candidate transaction.
func (c *PostgresConnector) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return c.db.BeginTxx(ctx, opts)
}

// Disconnect closes the connection.
func (c *PostgresConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *PostgresConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *PostgresConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for PostgreSQL.
func (c *PostgresConnector) DriverName() string { return "postgres" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes.
func (c *PostgresConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
