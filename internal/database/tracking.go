package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ksp-deals/internal/models"

	"github.com/shopspring/decimal"
)

// CreateClick stores a new affiliate click.
func (db *DB) CreateClick(ctx context.Context, c *models.ClickTracking) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO click_tracking (id, product_id, platform, language, status, commission, clicked_at, confirmed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.ProductID, string(c.Platform), string(c.Language), string(c.Status), c.Commission, c.ClickedAt.UTC(), nullTime(c.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

// ConfirmClick marks a tracked click as a confirmed sale. It reports false
// when no click has that id.
func (db *DB) ConfirmClick(ctx context.Context, id string, commission decimal.Decimal, at time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE click_tracking SET status = ?, commission = ?, confirmed_at = ? WHERE id = ?",
		string(models.TrackingConfirmed), commission, at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("confirm click %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// GetClick returns a tracked click by id.
func (db *DB) GetClick(ctx context.Context, id string) (*models.ClickTracking, error) {
	var (
		c           models.ClickTracking
		platform    string
		language    string
		status      string
		confirmedAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, product_id, platform, language, status, commission, clicked_at, confirmed_at FROM click_tracking WHERE id = ?", id,
	).Scan(&c.ID, &c.ProductID, &platform, &language, &status, &c.Commission, &c.ClickedAt, &confirmedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Platform = models.Platform(platform)
	c.Language = models.Language(language)
	c.Status = models.TrackingStatus(status)
	c.ConfirmedAt = timePtr(confirmedAt)
	return &c, nil
}

// CreateReportImport stores the summary of an imported report.
func (db *DB) CreateReportImport(ctx context.Context, r *models.ReportImport) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO report_imports (id, filename, total_rows, matched_rows, total_revenue, imported_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.Filename, r.TotalRows, r.MatchedRows, r.TotalRevenue, r.ImportedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert report import: %w", err)
	}
	return nil
}

// ListReportImports returns the most recent imports first.
func (db *DB) ListReportImports(ctx context.Context, limit int) ([]models.ReportImport, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, filename, total_rows, matched_rows, total_revenue, imported_at FROM report_imports ORDER BY imported_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var imports []models.ReportImport
	for rows.Next() {
		var r models.ReportImport
		if err := rows.Scan(&r.ID, &r.Filename, &r.TotalRows, &r.MatchedRows, &r.TotalRevenue, &r.ImportedAt); err != nil {
			return nil, err
		}
		imports = append(imports, r)
	}
	return imports, rows.Err()
}

// RevenueStats aggregates the click tracking table.
func (db *DB) RevenueStats(ctx context.Context) (models.RevenueStats, error) {
	st := models.RevenueStats{TotalRevenue: decimal.Zero, EPC: decimal.Zero, ConversionRate: decimal.Zero}

	var revenue sql.NullFloat64
	err := db.conn.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
	SUM(CASE WHEN status = ? THEN CAST(commission AS REAL) END)
FROM click_tracking`,
		string(models.TrackingConfirmed), string(models.TrackingConfirmed),
	).Scan(&st.TotalClicks, &st.ConfirmedSales, &revenue)
	if err != nil {
		return st, fmt.Errorf("revenue stats: %w", err)
	}
	if revenue.Valid {
		st.TotalRevenue = decimal.NewFromFloat(revenue.Float64).Round(2)
	}
	if st.TotalClicks > 0 {
		clicks := decimal.NewFromInt(int64(st.TotalClicks))
		st.EPC = st.TotalRevenue.Div(clicks).Round(2)
		st.ConversionRate = decimal.NewFromInt(int64(st.ConfirmedSales)).Div(clicks).Mul(decimal.NewFromInt(100)).Round(2)
	}

	rows, err := db.conn.QueryContext(ctx, `
SELECT platform, COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN CAST(commission AS REAL) ELSE 0 END), 0)
FROM click_tracking GROUP BY platform ORDER BY platform`, string(models.TrackingConfirmed))
	if err != nil {
		return st, fmt.Errorf("revenue by platform: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p   models.PlatformRevenue
			raw string
			rev float64
		)
		if err := rows.Scan(&raw, &p.Clicks, &rev); err != nil {
			return st, err
		}
		p.Platform = models.Platform(raw)
		p.Revenue = decimal.NewFromFloat(rev).Round(2)
		st.ByPlatform = append(st.ByPlatform, p)
	}
	return st, rows.Err()
}
