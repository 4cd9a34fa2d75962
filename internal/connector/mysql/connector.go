package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/connector"
)

// MySQLConnector implements connector.Connector for MySQL candidates.
type MySQLConnector struct {
	db         *sqlx.DB
	schemaName string
}

// New creates a MySQLConnector.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect parses the DSN with the driver and opens a single pinned
// connection. Values are read as Go types (parseTime) so dates compare like
// the other drivers. Without a schema name the DSN's database is used, then
// the server's current database.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	myCfg, err := mysqldriver.ParseDSN(cfg.DSN)
	if err != nil {
		return fmt.Errorf("mysql dsn: %w", err)
	}
	myCfg.ParseTime = true
	myCfg.MultiStatements = false
	if myCfg.Timeout == 0 {
		myCfg.Timeout = cfg.Timeout()
	}

	drv, err := mysqldriver.NewConnector(myCfg)
	if err != nil {
		return fmt.Errorf("mysql connector: %w", err)
	}
	db := sqlx.NewDb(sql.OpenDB(drv), "mysql")
	connector.PinConnection(db)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("mysql connect: %w", err)
	}

	c.schemaName = cfg.SchemaName
	if c.schemaName == "" {
		c.schemaName = myCfg.DBName
	}
	if c.schemaName == "" {
		var dbName sql.NullString
		if err := db.GetContext(ctx, &dbName, "SELECT DATABASE()"); err == nil && dbName.Valid {
			c.schemaName = dbName.String
		}
	}

	c.db = db
	return nil
}

// BeginTx starts the candidate transaction.
func (c *MySQLConnector) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return c.db.BeginTxx(ctx, opts)
}

// Disconnect closes the connection.
func (c *MySQLConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *MySQLConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *MySQLConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for MySQL.
func (c *MySQLConnector) DriverName() string { return "mysql" }

// QuoteIdentifier wraps a SQL identifier in backticks, escaping any
// embedded backticks.
func (c *MySQLConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
