package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ksp-deals/internal/models"

	"github.com/shopspring/decimal"
)

const alertViewSelect = `
SELECT a.id, a.product_id, a.type, a.old_price, a.new_price, a.percent_change, a.status, a.created_at, a.sent_at,
	COALESCE(p.sku, ''), COALESCE(p.title, ''), COALESCE(p.image_url, ''), COALESCE(p.source_url, '')
FROM alerts a
LEFT JOIN products p ON p.id = a.product_id`

func scanAlertView(s scanner) (*models.AlertView, error) {
	var (
		v      models.AlertView
		typ    string
		status string
		sentAt sql.NullTime
	)
	err := s.Scan(&v.ID, &v.ProductID, &typ, &v.OldPrice, &v.NewPrice, &v.PercentChange, &status, &v.CreatedAt, &sentAt,
		&v.ProductSKU, &v.ProductTitle, &v.ProductImage, &v.ProductURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if v.Type, err = models.ParseAlertType(typ); err != nil {
		return nil, fmt.Errorf("alert %s: %w", v.ID, err)
	}
	if v.Status, err = models.ParseAlertStatus(status); err != nil {
		return nil, fmt.Errorf("alert %s: %w", v.ID, err)
	}
	v.SentAt = timePtr(sentAt)
	return &v, nil
}

func insertAlert(ctx context.Context, tx *sql.Tx, a *models.Alert) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO alerts (id, product_id, type, old_price, new_price, percent_change, status, created_at, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.ProductID, string(a.Type), a.OldPrice, a.NewPrice, a.PercentChange, string(a.Status), a.CreatedAt.UTC(), nullTime(a.SentAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (db *DB) ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.AlertView, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		where = append(where, "a.status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Type != nil {
		where = append(where, "a.type = ?")
		args = append(args, string(*f.Type))
	}

	query := alertViewSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	return db.queryAlertViews(ctx, query, args...)
}

// GetAlert returns a single alert.
func (db *DB) GetAlert(ctx context.Context, id string) (*models.AlertView, error) {
	return scanAlertView(db.conn.QueryRowContext(ctx, alertViewSelect+" WHERE a.id = ?", id))
}

// TransitionAlert moves a pending alert to status to. sentAt is stored only
// for the sent status. It reports false when the alert was no longer pending.
func (db *DB) TransitionAlert(ctx context.Context, id string, to models.AlertStatus, at time.Time) (bool, error) {
	var sentAt *time.Time
	if to == models.StatusSent {
		sentAt = &at
	}
	res, err := db.conn.ExecContext(ctx,
		"UPDATE alerts SET status = ?, sent_at = ? WHERE id = ? AND status = ?",
		string(to), nullTime(sentAt), id, string(models.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("transition alert %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PostCandidates returns pending price drops whose magnitude is at least
// minDiscount, largest first, at most limit rows.
func (db *DB) PostCandidates(ctx context.Context, minDiscount decimal.Decimal, limit int) ([]models.AlertView, error) {
	query := alertViewSelect + `
WHERE a.status = ? AND a.type = ? AND a.percent_change IS NOT NULL
	AND ABS(CAST(a.percent_change AS REAL)) >= ?
ORDER BY ABS(CAST(a.percent_change AS REAL)) DESC, a.created_at ASC
LIMIT ?`
	return db.queryAlertViews(ctx, query,
		string(models.StatusPending), string(models.AlertPriceDrop), minDiscount.InexactFloat64(), limit)
}

// AlertStats aggregates over all alerts; TodayCount counts alerts created at
// or after since.
func (db *DB) AlertStats(ctx context.Context, since time.Time) (models.AlertStats, error) {
	var (
		st  models.AlertStats
		avg sql.NullFloat64
	)
	err := db.conn.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0),
	AVG(CASE WHEN type = ? THEN CAST(percent_change AS REAL) END),
	COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
FROM alerts`,
		string(models.StatusPending), string(models.StatusSent),
		string(models.AlertPriceDrop), string(models.AlertPriceDrop), since.UTC(),
	).Scan(&st.Total, &st.Pending, &st.Sent, &st.TotalDrops, &avg, &st.TodayCount)
	if err != nil {
		return st, fmt.Errorf("alert stats: %w", err)
	}
	st.AvgDropPercent = decimal.Zero
	if avg.Valid {
		st.AvgDropPercent = decimal.NewFromFloat(avg.Float64).Abs().Round(1)
	}
	return st, nil
}

func (db *DB) queryAlertViews(ctx context.Context, query string, args ...any) ([]models.AlertView, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.AlertView
	for rows.Next() {
		v, err := scanAlertView(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *v)
	}
	return alerts, rows.Err()
}
