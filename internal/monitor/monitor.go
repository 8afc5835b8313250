// Package monitor runs periodic scrape passes over the retailer categories
// and feeds every listed product to the price-change detector.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ksp-deals/internal/detector"
	"ksp-deals/internal/models"
	"ksp-deals/internal/scheduler"
	"ksp-deals/internal/scraper"
)

// DefaultPause is the delay between two category requests.
const DefaultPause = 2 * time.Second

// Observer records one scraped product.
type Observer interface {
	Observe(ctx context.Context, sku string, snap models.ScrapedProduct) (*detector.Observation, error)
}

// Poster posts the eligible pending deals.
type Poster interface {
	PostEligiblePending(ctx context.Context) (scheduler.BatchResult, error)
}

// Monitor drives scrape passes.
type Monitor struct {
	observer   Observer
	registry   *scraper.Registry
	categories []scraper.Category
	interval   time.Duration
	pause      time.Duration
	poster     Poster
}

// PassSummary counts what one pass did.
type PassSummary struct {
	Categories int
	Scraped    int
	Created    int
	Alerts     int
	Rejected   int
	Posted     int
}

// New creates a monitor.
func New(observer Observer, registry *scraper.Registry, categories []scraper.Category, interval time.Duration) *Monitor {
	return &Monitor{
		observer:   observer,
		registry:   registry,
		categories: categories,
		interval:   interval,
		pause:      DefaultPause,
	}
}

// WithPause sets the delay between categories.
func (m *Monitor) WithPause(d time.Duration) *Monitor {
	m.pause = d
	return m
}

// WithAutoPost makes every pass end with a batch post.
func (m *Monitor) WithAutoPost(p Poster) *Monitor {
	m.poster = p
	return m
}

// Start runs a pass immediately and then one per interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	slog.Info("monitor started", "interval", m.interval, "categories", len(m.categories))

	m.runLogged(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped")
			return nil
		case <-ticker.C:
			m.runLogged(ctx)
		}
	}
}

func (m *Monitor) runLogged(ctx context.Context) {
	if _, err := m.RunPass(ctx); err != nil && ctx.Err() == nil {
		slog.Error("scrape pass failed", "error", err)
	}
}

// RunPass scrapes every category once. Each sku is observed at most once per
// pass. A category that fails to load is logged and skipped; a storage
// failure aborts the pass.
func (m *Monitor) RunPass(ctx context.Context) (PassSummary, error) {
	var (
		sum  PassSummary
		seen = map[string]bool{}
	)
	start := time.Now()

	for i, cat := range m.categories {
		if i > 0 && m.pause > 0 {
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			case <-time.After(m.pause):
			}
		}

		s := m.registry.FindScraper(cat.URL)
		if s == nil {
			slog.Warn("no scraper for category", "category", cat.Name, "url", cat.URL)
			continue
		}

		products, err := s.ScrapeCategory(ctx, cat)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			slog.Warn("category scrape failed", "category", cat.Name, "error", err)
			continue
		}
		sum.Categories++
		slog.Info("category scraped", "category", cat.Name, "products", len(products))

		for _, p := range products {
			if seen[p.SKU] {
				continue
			}
			seen[p.SKU] = true
			sum.Scraped++

			obs, err := m.observer.Observe(ctx, p.SKU, p)
			if errors.Is(err, detector.ErrInvalidSnapshot) {
				sum.Rejected++
				slog.Warn("snapshot rejected", "sku", p.SKU, "error", err)
				continue
			}
			if err != nil {
				return sum, fmt.Errorf("observe %s: %w", p.SKU, err)
			}
			if obs.Created {
				sum.Created++
			}
			sum.Alerts += len(obs.Alerts)
		}
	}

	if m.poster != nil {
		res, err := m.poster.PostEligiblePending(ctx)
		if err != nil {
			return sum, fmt.Errorf("auto post: %w", err)
		}
		sum.Posted = res.Posted
	}

	slog.Info("scrape pass complete",
		"categories", sum.Categories, "products", sum.Scraped, "created", sum.Created,
		"alerts", sum.Alerts, "rejected", sum.Rejected, "posted", sum.Posted,
		"took", time.Since(start).Round(time.Millisecond))
	return sum, nil
}
