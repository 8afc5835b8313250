// Package detector compares scraped snapshots with stored product state and
// emits price and stock alerts.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ksp-deals/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidSnapshot is returned for snapshots that cannot be observed.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// significantPercent is the change magnitude an alert requires (exclusive).
var significantPercent = decimal.NewFromInt(1)

var hundred = decimal.NewFromInt(100)

// Store is the product persistence the detector needs.
type Store interface {
	ProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	SaveObservation(ctx context.Context, p *models.Product, appended *models.PricePoint, alerts []models.Alert) error
}

// Observation is the result of one Observe call.
type Observation struct {
	Product *models.Product
	Alerts  []models.Alert // zero, one or two; all pending
	Created bool           // first sight of the SKU
}

// Detector turns scraped snapshots into product updates and alerts.
type Detector struct {
	store Store
	now   func() time.Time
}

// New creates a detector over store.
func New(store Store) *Detector {
	return &Detector{store: store, now: time.Now}
}

// WithClock replaces the time source.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Observe records one scraped snapshot for sku.
func (d *Detector) Observe(ctx context.Context, sku string, snap models.ScrapedProduct) (*Observation, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, fmt.Errorf("%w: empty sku", ErrInvalidSnapshot)
	}
	if !snap.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price %s for sku %s", ErrInvalidSnapshot, snap.Price, sku)
	}

	now := d.now()
	existing, err := d.store.ProductBySKU(ctx, sku)
	if errors.Is(err, models.ErrNotFound) {
		return d.create(ctx, sku, snap, now)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", sku, err)
	}
	return d.update(ctx, existing, snap, now)
}

func (d *Detector) create(ctx context.Context, sku string, snap models.ScrapedProduct, now time.Time) (*Observation, error) {
	p := &models.Product{
		ID:           uuid.NewString(),
		SKU:          sku,
		Title:        snap.Title,
		PriceCurrent: snap.Price,
		PriceHistory: []models.PricePoint{{Price: snap.Price, ObservedAt: now}},
		InStock:      snap.InStock,
		Category:     snap.Category,
		ImageURL:     snap.ImageURL,
		SourceURL:    snap.SourceURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Category == "" {
		p.Category = "other"
	}
	if err := d.store.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create product %s: %w", sku, err)
	}
	slog.Debug("product created", "sku", sku, "price", snap.Price.String())
	return &Observation{Product: p, Created: true}, nil
}

func (d *Detector) update(ctx context.Context, p *models.Product, snap models.ScrapedProduct, now time.Time) (*Observation, error) {
	lastPrice := p.LastPrice()
	newPrice := snap.Price
	wasInStock := p.InStock

	var (
		appended *models.PricePoint
		alerts   []models.Alert
	)

	if !newPrice.Equal(lastPrice) {
		pp := models.PricePoint{Price: newPrice, ObservedAt: now}
		p.PriceHistory = append(p.PriceHistory, pp)
		appended = &pp

		if lastPrice.IsPositive() {
			change := PercentChange(lastPrice, newPrice)
			if change.Abs().GreaterThan(significantPercent) {
				typ := models.AlertPriceIncrease
				if change.IsNegative() {
					typ = models.AlertPriceDrop
				}
				alerts = append(alerts, models.Alert{
					ID:            uuid.NewString(),
					ProductID:     p.ID,
					Type:          typ,
					OldPrice:      decimal.NewNullDecimal(lastPrice),
					NewPrice:      decimal.NewNullDecimal(newPrice),
					PercentChange: decimal.NewNullDecimal(change.Round(1)),
					Status:        models.StatusPending,
					CreatedAt:     now,
				})
			}
		}
	}

	if !wasInStock && snap.InStock {
		alerts = append(alerts, models.Alert{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			Type:      models.AlertBackInStock,
			NewPrice:  decimal.NewNullDecimal(newPrice),
			Status:    models.StatusPending,
			CreatedAt: now,
		})
	}

	p.PriceCurrent = newPrice
	p.InStock = snap.InStock
	p.ImageURL = snap.ImageURL
	if snap.Title != "" {
		p.Title = snap.Title
	}
	p.UpdatedAt = now

	if err := d.store.SaveObservation(ctx, p, appended, alerts); err != nil {
		return nil, fmt.Errorf("save observation %s: %w", p.SKU, err)
	}

	for _, a := range alerts {
		attrs := []any{"sku", p.SKU, "type", a.Type, "alert_id", a.ID}
		if a.OldPrice.Valid {
			attrs = append(attrs, "old_price", a.OldPrice.Decimal.String(), "new_price", a.NewPrice.Decimal.String(), "percent", a.PercentChange.Decimal.String())
		}
		slog.Info("alert created", attrs...)
	}

	return &Observation{Product: p, Alerts: alerts}, nil
}

// PercentChange returns (newPrice - oldPrice) / oldPrice * 100, unrounded.
func PercentChange(oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	return newPrice.Sub(oldPrice).Div(oldPrice).Mul(hundred)
}
