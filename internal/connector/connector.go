package connector

import (
	"context"
	"database/sql"
	"net/url"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/model"
)

// ConnectionConfig names one candidate database. Candidates are validated on
// a single pinned connection, so there are no pool settings.
type ConnectionConfig struct {
	Driver     string
	DSN        string
	SchemaName string
	// ConnectTimeout bounds the initial dial; zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// Create allows a file-backed driver to create a missing database. Only
	// scratch databases set it; candidates must already exist.
	Create bool
}

// DefaultConnectTimeout is used when ConnectionConfig.ConnectTimeout is zero.
const DefaultConnectTimeout = 10 * time.Second

// Timeout returns the effective connect timeout.
func (c ConnectionConfig) Timeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// PinConnection restricts db to one connection that is never recycled while
// the candidate is open, so a transaction sees its own repair inserts and
// session settings stay in effect.
func PinConnection(db *sqlx.DB) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
}

// Dialect is the part of a connector the resolvers need to render SQL.
type Dialect interface {
	DriverName() string
	QuoteIdentifier(name string) string
}

// Connector is the interface that all candidate database connectors must
// implement. Catalog reads take the queryer explicitly so they can run inside
// the transaction that also carries the resolver queries and repair inserts.
type Connector interface {
	Dialect

	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)

	// Schema introspection
	IntrospectSchema(ctx context.Context, q sqlx.QueryerContext) (*model.Schema, error)
	IntrospectTable(ctx context.Context, q sqlx.QueryerContext, tableName string) (*model.TableSchema, error)
	GetTableNames(ctx context.Context, q sqlx.QueryerContext) ([]string, error)
}

// DriverFromDSN guesses the driver for a DSN: URL schemes for PostgreSQL, the
// go-sql-driver tcp()/unix() form for MySQL, anything else is a SQLite path.
func DriverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"):
		return "mysql"
	case strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return "mysql"
	default:
		return "sqlite"
	}
}

// SanitizeDSN ensures that URL-style DSNs (postgres://) have their userinfo
// (especially the password) properly percent-encoded. Raw passwords
// containing @, #, %, or other URL-special characters cause the Go URL parser
// to mis-split the authority component.
//
// MySQL DSNs are normalized to use the tcp() wrapper required by
// go-sql-driver. SQLite paths are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(strings.TrimPrefix(dsn, "mysql://"))
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper, no ()
// wrapper).
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN normalizes a MySQL DSN so that go-sql-driver/mysql can
// parse it correctly. The driver requires the format:
//
//	user:pass@tcp(host:port)/dbname
//
// Accepted variants:
//
//	user:pass@host:port/db          → missing tcp() wrapper
//	user:pass@(host:port)/db        → missing "tcp" before parens
//	user:pass@tcp(host:port)/db     → already correct
func sanitizeMySQLDSN(dsn string) string {
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		fixed := dsn[:idx] + "@tcp" + dsn[idx+1:]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		fixed := m[1] + "@tcp(" + m[2] + ")" + m[3]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Let the connect call report the problem.
	return dsn
}

// sanitizeURLDSN re-encodes the userinfo of a scheme-prefixed DSN so the URL
// library can parse it unambiguously.
func sanitizeURLDSN(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:]

	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// Everything before the LAST '@' is userinfo.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	if u, err := url.PathUnescape(user); err == nil {
		user = u
	}
	if p, err := url.PathUnescape(pass); err == nil {
		pass = p
	}

	return scheme + "://" + url.PathEscape(user) + ":" + url.PathEscape(pass) + "@" + hostpath + query
}
