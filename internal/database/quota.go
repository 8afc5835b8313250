package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ksp-deals/internal/models"
)

const quotaID = "default"

// UpdateQuota loads the posting quota (creating it from defaults on first
// access), lets fn mutate it and persists the result when fn reports a
// change. Every quota write goes through mutateQuota.
func (db *DB) UpdateQuota(ctx context.Context, defaults models.PostingQuota, fn func(q *models.PostingQuota) bool) (models.PostingQuota, error) {
	var q models.PostingQuota
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		q, err = mutateQuota(ctx, tx, &defaults, fn)
		return err
	})
	return q, err
}

// mutateQuota reads the quota row inside tx, inserting defaults when it is
// missing (or failing with ErrNotFound when defaults is nil), applies fn and
// writes back when fn returns true.
func mutateQuota(ctx context.Context, tx *sql.Tx, defaults *models.PostingQuota, fn func(q *models.PostingQuota) bool) (models.PostingQuota, error) {
	var (
		q          models.PostingQuota
		lastPostAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx,
		"SELECT channel_id, min_discount_percent, max_posts_per_day, posts_today, last_reset_at, last_post_at FROM posting_quota WHERE id = ?",
		quotaID,
	).Scan(&q.ChannelID, &q.MinDiscountPercent, &q.MaxPostsPerDay, &q.PostsToday, &q.LastResetAt, &lastPostAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if defaults == nil {
			return q, models.ErrNotFound
		}
		q = *defaults
		_, err = tx.ExecContext(ctx,
			"INSERT INTO posting_quota (id, channel_id, min_discount_percent, max_posts_per_day, posts_today, last_reset_at, last_post_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			quotaID, q.ChannelID, q.MinDiscountPercent, q.MaxPostsPerDay, q.PostsToday, q.LastResetAt.UTC(), nullTime(q.LastPostAt),
		)
		if err != nil {
			return q, fmt.Errorf("create posting quota: %w", err)
		}
	case err != nil:
		return q, fmt.Errorf("load posting quota: %w", err)
	default:
		q.LastPostAt = timePtr(lastPostAt)
	}

	if fn == nil || !fn(&q) {
		return q, nil
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE posting_quota SET channel_id = ?, min_discount_percent = ?, max_posts_per_day = ?, posts_today = ?, last_reset_at = ?, last_post_at = ? WHERE id = ?",
		q.ChannelID, q.MinDiscountPercent, q.MaxPostsPerDay, q.PostsToday, q.LastResetAt.UTC(), nullTime(q.LastPostAt), quotaID,
	)
	if err != nil {
		return q, fmt.Errorf("save posting quota: %w", err)
	}
	return q, nil
}
