// Package postgres provides PostgreSQL implementations of the event store,
// the store feed and the projector state store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var errEmptyTableName = errors.New("table name must not be empty")

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// quoteIdentifier quotes a PostgreSQL identifier to prevent SQL injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// InitSchema creates the events table and its indexes if they don't exist.
//
// event_id uses the C collation so that comparison in SQL matches byte-wise
// comparison of the ID strings in Go.
func InitSchema(ctx context.Context, db *sql.DB, tableName string) error {
	if tableName == "" {
		return errEmptyTableName
	}
	table := quoteIdentifier(tableName)
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		stream_id VARCHAR(255) NOT NULL,
		sequence BIGINT NOT NULL,
		event_id VARCHAR(64) COLLATE "C" NOT NULL,
		event_type VARCHAR(255) NOT NULL,
		event_data BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (stream_id, sequence)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(event_id);
	`, table,
		quoteIdentifier("idx_"+tableName+"_event_id"), table)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}

// InitStateSchema creates the projector state table if it doesn't exist.
func InitStateSchema(ctx context.Context, db *sql.DB, tableName string) error {
	if tableName == "" {
		return errEmptyTableName
	}
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		projector_name VARCHAR(255) PRIMARY KEY,
		phase VARCHAR(16) NOT NULL,
		chunk VARCHAR(255) NOT NULL DEFAULT '',
		last_event VARCHAR(64) NOT NULL DEFAULT '',
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	`, quoteIdentifier(tableName))

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create projector state table: %w", err)
	}
	return nil
}
