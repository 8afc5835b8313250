package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection and exposes the entity stores.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("database ready", "path", dbPath)
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	sku TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	price_current TEXT NOT NULL,
	in_stock BOOLEAN NOT NULL DEFAULT 1,
	category TEXT NOT NULL DEFAULT 'other',
	image_url TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id TEXT NOT NULL,
	price TEXT NOT NULL,
	observed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id, id);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	type TEXT NOT NULL,
	old_price TEXT,
	new_price TEXT,
	percent_change TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	sent_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_alerts_status_type ON alerts(status, type);

CREATE TABLE IF NOT EXISTS post_records (
	id TEXT PRIMARY KEY,
	alert_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	old_price TEXT,
	new_price TEXT,
	percent_off TEXT,
	image_url TEXT NOT NULL DEFAULT '',
	affiliate_link TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	delivery_receipt TEXT,
	error TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_post_records_alert ON post_records(alert_id);

CREATE TABLE IF NOT EXISTS posting_quota (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL DEFAULT '',
	min_discount_percent TEXT NOT NULL,
	max_posts_per_day INTEGER NOT NULL,
	posts_today INTEGER NOT NULL DEFAULT 0,
	last_reset_at DATETIME NOT NULL,
	last_post_at DATETIME
);

CREATE TABLE IF NOT EXISTS click_tracking (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	language TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	commission TEXT,
	clicked_at DATETIME NOT NULL,
	confirmed_at DATETIME
);

CREATE TABLE IF NOT EXISTS report_imports (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	total_rows INTEGER NOT NULL,
	matched_rows INTEGER NOT NULL,
	total_revenue TEXT NOT NULL,
	imported_at DATETIME NOT NULL
);
`

// init creates the tables when they do not exist yet.
func (db *DB) init() error {
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
