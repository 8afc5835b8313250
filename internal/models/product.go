package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one observed price in a product's history.
type PricePoint struct {
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Product is the current known state of a retailer item, keyed by SKU.
type Product struct {
	ID           string
	SKU          string
	Title        string
	PriceCurrent decimal.Decimal
	PriceHistory []PricePoint // chronological, append-only
	InStock      bool
	Category     string
	ImageURL     string
	SourceURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LastPrice returns the price of the most recent history entry, falling back
// to PriceCurrent when the history is empty or its last price is not positive.
func (p *Product) LastPrice() decimal.Decimal {
	if n := len(p.PriceHistory); n > 0 && p.PriceHistory[n-1].Price.IsPositive() {
		return p.PriceHistory[n-1].Price
	}
	return p.PriceCurrent
}

// ScrapedProduct is what a scraper produces for one listing item.
type ScrapedProduct struct {
	SKU       string
	Title     string
	Price     decimal.Decimal
	ImageURL  string
	InStock   bool
	Category  string
	SourceURL string
}
