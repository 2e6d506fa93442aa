package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresDialect implements Dialect for PostgreSQL
type PostgresDialect struct{}

// NewPostgresDialect creates a new PostgreSQL dialect
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// DSN tags the connection with the application name unless the URL already
// sets one. Both URL and key=value connection strings are accepted.
func (d *PostgresDialect) DSN(config DialectConfig) string {
	dsn := config.URL
	if dsn == "" || strings.Contains(dsn, "application_name") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return withQueryParam(dsn, "application_name="+applicationName)
	}
	return dsn + " application_name=" + applicationName
}

func (d *PostgresDialect) RewriteQuery(query string) string {
	// PostgreSQL uses $1, $2, etc. instead of ?
	return rewritePlaceholdersToNumbered(query)
}

func (d *PostgresDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (d *PostgresDialect) MigrationsSubdir() string {
	return "postgres"
}

func (d *PostgresDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT UNIQUE NOT NULL,
			executed_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
	`
}

// InsertIgnore appends ON CONFLICT DO NOTHING; any unique constraint counts.
func (d *PostgresDialect) InsertIgnore(insert string) string {
	return trimStatement(insert) + " ON CONFLICT DO NOTHING"
}

// UpsertClause uses the same ON CONFLICT ... excluded form as SQLite.
func (d *PostgresDialect) UpsertClause(conflict, update []string) string {
	return onConflictClause(conflict, update)
}
