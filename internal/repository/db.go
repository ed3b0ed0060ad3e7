package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultDSN is used when no ledger DSN is configured explicitly.
const DefaultDSN = "file:w2-ledger.db"

// Dialect names the ledger backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is the ledger database handle. Postgres goes through a pgx pool wrapped
// as *sql.DB; SQLite uses the modernc driver directly. Both are driven
// through an ent SQL driver so queries and schema stay dialect neutral.
type DB struct {
	sql     *sql.DB
	drv     *entsql.Driver
	pool    *pgxpool.Pool
	dialect Dialect
	logger  *slog.Logger
}

// DialectFor picks the dialect from the DSN scheme.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		cfg.DSN = DefaultDSN
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	var (
		db  *DB
		err error
	)
	switch DialectFor(cfg.DSN) {
	case DialectPostgres:
		db, err = openPostgres(ctx, cfg, logger)
	default:
		db, err = openSQLite(cfg, logger)
	}
	if err != nil {
		return nil, err
	}

	if err := db.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if db.dialect == DialectSQLite {
		// One writer at a time; WAL lets readers proceed. Applied after
		// migration since the migrator holds a transaction while inspecting.
		db.sql.SetMaxOpenConns(1)
	}
	logger.Info("ledger database ready", "dialect", db.dialect)
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to ledger database", "dialect", DialectPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse ledger dsn", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "w2-reporter"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to ledger database", "error", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	drv := entsql.OpenDB(dialect.Postgres, db)
	return &DB{sql: db, drv: drv, pool: pool, dialect: DialectPostgres, logger: logger}, nil
}

func openSQLite(cfg Config, logger *slog.Logger) (*DB, error) {
	dsn := strings.TrimPrefix(cfg.DSN, "sqlite://")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Debug("opened sqlite ledger", "dsn", cfg.DSN)
	return &DB{sql: db, drv: entsql.OpenDB(dialect.SQLite, db), dialect: DialectSQLite, logger: logger}, nil
}

// Dialect reports the database flavour.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// builder returns a statement builder for the backend's placeholder style.
func (d *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.drv.Dialect())
}

// Close closes the database connections gracefully
func (d *DB) Close() {
	d.logger.Debug("closing ledger database")
	if err := d.sql.Close(); err != nil {
		d.logger.Error("failed to close ledger database", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.sql.PingContext(ctx); err != nil {
		d.logger.Error("ledger database ping failed", "error", err)
		return err
	}
	d.logger.Debug("ledger database ping successful")
	return nil
}

// submissionsTable describes the ledger table for ent's migrator.
func submissionsTable() *schema.Table {
	var (
		id       = &schema.Column{Name: "id", Type: field.TypeString, Size: 36}
		sha      = &schema.Column{Name: "document_sha256", Type: field.TypeString, Size: 64}
		state    = &schema.Column{Name: "state", Type: field.TypeString, Size: 32}
		created  = &schema.Column{Name: "created_at", Type: field.TypeTime}
		filename = &schema.Column{Name: "filename", Type: field.TypeString, Default: ""}
	)
	columns := []*schema.Column{
		id,
		sha,
		filename,
		state,
		{Name: "report_id", Type: field.TypeString, Nullable: true},
		{Name: "file_id", Type: field.TypeString, Nullable: true},
		{Name: "error_code", Type: field.TypeString, Size: 64, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Size: 4096, Nullable: true},
		created,
	}
	return &schema.Table{
		Name:       "submissions",
		Columns:    columns,
		PrimaryKey: []*schema.Column{id},
		Indexes: []*schema.Index{
			{Name: "submissions_state_idx", Columns: []*schema.Column{state, created}},
			{Name: "submissions_sha_idx", Columns: []*schema.Column{sha}},
		},
	}
}

func (d *DB) migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(d.drv)
	if err != nil {
		return err
	}
	return m.Create(ctx, submissionsTable())
}
