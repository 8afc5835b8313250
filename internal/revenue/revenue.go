// Package revenue imports retailer affiliate reports and reports click
// revenue.
package revenue

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"ksp-deals/internal/affiliate"
	"ksp-deals/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DefaultHistoryLimit is the number of imports History returns.
const DefaultHistoryLimit = 50

var (
	ErrEmptyReport = errors.New("report has no rows")
	ErrNoUINColumn = errors.New("report has no UIN column")
)

var (
	uinHeaders        = []string{"UIN", "Sub-ID", "uin", "sub_id"}
	commissionHeaders = []string{"Commission", "commission", "עמלה"}
	moneyNoise        = strings.NewReplacer("₪", "", ",", "", " ", "", "\u00a0", "")
)

// Store is the tracking persistence the importer uses.
type Store interface {
	ConfirmClick(ctx context.Context, id string, commission decimal.Decimal, at time.Time) (bool, error)
	CreateReportImport(ctx context.Context, r *models.ReportImport) error
	ListReportImports(ctx context.Context, limit int) ([]models.ReportImport, error)
	RevenueStats(ctx context.Context) (models.RevenueStats, error)
}

// Importer matches report rows to tracked clicks.
type Importer struct {
	store Store
	links affiliate.Links
	now   func() time.Time
}

// Summary is the outcome of one import.
type Summary struct {
	Import        models.ReportImport
	UnmatchedRows int
}

// NewImporter creates an importer; links decides how report sub-ids map to
// click ids.
func NewImporter(store Store, links affiliate.Links) *Importer {
	return &Importer{store: store, links: links, now: time.Now}
}

// WithClock replaces the time source.
func (im *Importer) WithClock(now func() time.Time) *Importer {
	im.now = now
	return im
}

// Import reads a report (xlsx, or csv by extension), confirms every click
// whose id appears in the UIN column and saves an import summary. Rows whose
// click is unknown are counted as unmatched.
func (im *Importer) Import(ctx context.Context, filename string, r io.Reader) (*Summary, error) {
	rows, err := readRows(filename, r)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrEmptyReport
	}

	header := rows[0]
	uinCol := column(header, uinHeaders)
	if uinCol < 0 {
		return nil, ErrNoUINColumn
	}
	commissionCol := column(header, commissionHeaders)

	now := im.now()
	rec := models.ReportImport{
		ID:           uuid.NewString(),
		Filename:     filename,
		TotalRevenue: decimal.Zero,
		ImportedAt:   now,
	}

	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec.TotalRows++

		clickID := im.links.ParseClickID(cell(row, uinCol))
		if clickID == "" {
			continue
		}
		commission := parseMoney(cell(row, commissionCol))

		ok, err := im.store.ConfirmClick(ctx, clickID, commission, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			slog.Warn("report row has unknown click", "click", clickID)
			continue
		}
		rec.MatchedRows++
		rec.TotalRevenue = rec.TotalRevenue.Add(commission)
	}

	if err := im.store.CreateReportImport(ctx, &rec); err != nil {
		return nil, err
	}
	slog.Info("report imported", "file", filename, "rows", rec.TotalRows,
		"matched", rec.MatchedRows, "revenue", rec.TotalRevenue.String())

	return &Summary{Import: rec, UnmatchedRows: rec.TotalRows - rec.MatchedRows}, nil
}

// History returns the latest imports, newest first.
func (im *Importer) History(ctx context.Context) ([]models.ReportImport, error) {
	return im.store.ListReportImports(ctx, DefaultHistoryLimit)
}

// Stats returns click and revenue totals.
func (im *Importer) Stats(ctx context.Context) (models.RevenueStats, error) {
	return im.store.RevenueStats(ctx)
}

func readRows(filename string, r io.Reader) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv report: %w", err)
		}
		return rows, nil
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyReport
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// column returns the index of the first header (in names order) present in
// header, or -1.
func column(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(moneyNoise.Replace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
