package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tunes the connection pool and SQL logging.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          logger.Interface
}

// withDefaults fills zero pool settings.
func (o Options) withDefaults(maxOpen int) Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = maxOpen
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = o.MaxOpenConns
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = logger.Default.LogMode(logger.Warn)
	}
	return o
}

// Open opens a GORM connection based on the provided DSN.
func Open(dsn string, opts Options) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	dialect, err := detectDialectFromDSN(trimmed)
	if err != nil {
		return nil, err
	}
	switch dialect {
	case DialectPostgres:
		return openPostgres(trimmed, opts.withDefaults(25))
	case DialectSQLite:
		return openSQLite(trimmed, opts.withDefaults(10))
	default:
		return nil, fmt.Errorf("db: unsupported dialect: %s", dialect)
	}
}

// detectDialectFromDSN infers the dialect from a DSN string.
func detectDialectFromDSN(dsn string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, nil
	case strings.Contains(lower, "host=") || strings.Contains(lower, "user=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "sslmode="):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "file:"),
		strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "sqlite3://"),
		!strings.Contains(lower, "://"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("db: unsupported dsn: %s", dsn)
	}
}

// openPostgres opens a PostgreSQL connection pinned to UTC.
func openPostgres(dsn string, opts Options) (*gorm.DB, error) {
	sqlDB, err := openPostgresSQLDB(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: opts.Logger,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if errPing := ping(sqlDB); errPing != nil {
		_ = sqlDB.Close()
		return nil, errPing
	}
	return conn, nil
}

// openSQLite opens a SQLite connection with pragmas applied on every connection.
func openSQLite(dsn string, opts Options) (*gorm.DB, error) {
	normalized := ensureSQLiteParams(normalizeSQLiteDSN(dsn))
	if errEnsure := ensureSQLiteDir(normalized); errEnsure != nil {
		return nil, errEnsure
	}

	conn, err := gorm.Open(sqlite.Open(normalized), &gorm.Config{
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite sql: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if errPing := ping(sqlDB); errPing != nil {
		_ = sqlDB.Close()
		return nil, errPing
	}
	return conn, nil
}

// ping verifies connectivity with a short timeout.
func ping(sqlDB *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errPing := sqlDB.PingContext(pingCtx); errPing != nil {
		return fmt.Errorf("db: ping: %w", errPing)
	}
	return nil
}

// openPostgresSQLDB opens a sql.DB whose sessions and scans use UTC.
func openPostgresSQLDB(dsn string) (*sql.DB, error) {
	cfg, errParse := pgx.ParseConfig(dsn)
	if errParse != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", errParse)
	}
	cfg.RuntimeParams["timezone"] = "UTC"

	afterConnect := stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "timestamp",
			OID:   pgtype.TimestampOID,
			Codec: &pgtype.TimestampCodec{ScanLocation: time.UTC},
		})
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "timestamptz",
			OID:   pgtype.TimestamptzOID,
			Codec: &pgtype.TimestamptzCodec{ScanLocation: time.UTC},
		})
		return nil
	})
	return stdlib.OpenDB(*cfg, afterConnect), nil
}

// normalizeSQLiteDSN converts sqlite URLs into file-based DSNs.
func normalizeSQLiteDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "sqlite3://") || strings.HasPrefix(lower, "sqlite://") {
		parts := strings.SplitN(trimmed, "://", 2)
		if len(parts) == 2 {
			return "file:" + parts[1]
		}
	}
	return trimmed
}

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []struct {
	name  string
	value string
}{
	{"busy_timeout", "5000"},
	{"journal_mode", "WAL"},
	{"foreign_keys", "1"},
	{"synchronous", "NORMAL"},
}

// ensureSQLiteParams appends missing _pragma parameters to the DSN.
func ensureSQLiteParams(dsn string) string {
	if strings.TrimSpace(dsn) == "" {
		return dsn
	}
	lower := strings.ToLower(dsn)

	var add []string
	for _, pragma := range sqlitePragmas {
		if strings.Contains(lower, "_pragma="+pragma.name+"(") {
			continue
		}
		add = append(add, "_pragma="+pragma.name+"("+pragma.value+")")
	}
	if len(add) == 0 {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join(add, "&")
}

// sqlitePathFromDSN extracts the file path from a SQLite DSN.
func sqlitePathFromDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "file:") {
		pathPart := trimmed[len("file:"):]
		if idx := strings.Index(pathPart, "?"); idx >= 0 {
			pathPart = pathPart[:idx]
		}
		pathPart = strings.TrimPrefix(pathPart, "//")
		if pathPart == "" || pathPart == ":memory:" || strings.Contains(lower, "mode=memory") {
			return ""
		}
		return pathPart
	}

	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if strings.Contains(lower, "://") || trimmed == ":memory:" {
		return ""
	}
	return trimmed
}

// ensureSQLiteDir creates the parent directory for a SQLite database file.
func ensureSQLiteDir(dsn string) error {
	path := sqlitePathFromDSN(dsn)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
		return fmt.Errorf("db: create sqlite dir: %w", errMkdir)
	}
	return nil
}
