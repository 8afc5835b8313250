package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ksp-deals/internal/models"
)

const postColumns = "id, alert_id, product_id, title, old_price, new_price, percent_off, image_url, affiliate_link, status, delivery_receipt, error, created_at"

func scanPost(s scanner) (*models.PostRecord, error) {
	var (
		r       models.PostRecord
		status  string
		receipt sql.NullString
		errText sql.NullString
	)
	err := s.Scan(&r.ID, &r.AlertID, &r.ProductID, &r.Title, &r.OldPrice, &r.NewPrice, &r.PercentOff,
		&r.ImageURL, &r.AffiliateLink, &status, &receipt, &errText, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Status, err = models.ParsePostStatus(status); err != nil {
		return nil, fmt.Errorf("post %s: %w", r.ID, err)
	}
	r.DeliveryReceipt = stringPtr(receipt)
	r.Error = stringPtr(errText)
	return &r, nil
}

func insertPost(ctx context.Context, tx *sql.Tx, r *models.PostRecord) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO post_records ("+postColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.AlertID, r.ProductID, r.Title, r.OldPrice, r.NewPrice, r.PercentOff, r.ImageURL, r.AffiliateLink,
		string(r.Status), nullString(r.DeliveryReceipt), nullString(r.Error), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert post record: %w", err)
	}
	return nil
}

// RecordFailedPost appends a failed delivery attempt to the post log.
func (db *DB) RecordFailedPost(ctx context.Context, r *models.PostRecord) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return insertPost(ctx, tx, r)
	})
}

// RecordSentPost logs a successful delivery, marks the alert sent and counts
// the post against today's quota in a single transaction. alertUpdated is
// false when the alert had already left pending.
func (db *DB) RecordSentPost(ctx context.Context, r *models.PostRecord, sentAt time.Time) (alertUpdated bool, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertPost(ctx, tx, r); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE alerts SET status = ?, sent_at = ? WHERE id = ? AND status = ?",
			string(models.StatusSent), sentAt.UTC(), r.AlertID, string(models.StatusPending),
		)
		if err != nil {
			return fmt.Errorf("mark alert %s sent: %w", r.AlertID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark alert %s sent: %w", r.AlertID, err)
		}
		alertUpdated = n == 1

		_, err = mutateQuota(ctx, tx, nil, func(q *models.PostingQuota) bool {
			q.PostsToday++
			at := sentAt
			q.LastPostAt = &at
			return true
		})
		return err
	})
	return alertUpdated, err
}

// ListPosts returns the most recent delivery attempts.
func (db *DB) ListPosts(ctx context.Context, limit int) ([]models.PostRecord, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+postColumns+" FROM post_records ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.PostRecord
	for rows.Next() {
		r, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *r)
	}
	return posts, rows.Err()
}

// LastPostForAlert returns the latest delivery attempt for an alert.
func (db *DB) LastPostForAlert(ctx context.Context, alertID string) (*models.PostRecord, error) {
	return scanPost(db.conn.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM post_records WHERE alert_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1", alertID))
}

// CountPostsForAlert returns the number of delivery attempts for an alert.
func (db *DB) CountPostsForAlert(ctx context.Context, alertID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM post_records WHERE alert_id = ?", alertID).Scan(&n)
	return n, err
}

// PostStats summarizes the post log; SentToday counts successful posts at or after since.
func (db *DB) PostStats(ctx context.Context, since time.Time) (models.PostStats, error) {
	var st models.PostStats
	err := db.conn.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN status = ? AND created_at >= ? THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
FROM post_records`,
		string(models.PostSent), since.UTC(), string(models.PostFailed),
	).Scan(&st.TotalPosts, &st.SentToday, &st.Failed)
	if err != nil {
		return st, fmt.Errorf("post stats: %w", err)
	}
	return st, nil
}
