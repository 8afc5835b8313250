package scraper

import (
	"context"
	"strings"

	"ksp-deals/internal/models"
)

// Category is one listing page to scrape.
type Category struct {
	Name string
	URL  string
}

// Scraper reads the products listed on a retailer category page.
type Scraper interface {
	ScrapeCategory(ctx context.Context, cat Category) ([]models.ScrapedProduct, error)
	CanHandle(url string) bool
}

// Registry keeps every available scraper.
type Registry struct {
	scrapers []Scraper
}

// NewRegistry creates a registry with the given scrapers, checked in order.
func NewRegistry(scrapers ...Scraper) *Registry {
	return &Registry{scrapers: scrapers}
}

// FindScraper returns the first scraper that handles url, or nil.
func (r *Registry) FindScraper(url string) Scraper {
	for _, s := range r.scrapers {
		if s.CanHandle(url) {
			return s
		}
	}
	return nil
}

// kspCategoryPaths is the default set of KSP listings.
var kspCategoryPaths = []Category{
	{Name: "iphone", URL: "/web/cat/573.."},
	{Name: "ipad", URL: "/web/cat/574.."},
	{Name: "xiaomi-phones", URL: "/web/cat/89080.."},
	{Name: "laptops", URL: "/web/cat/159.."},
	{Name: "gaming-laptops", URL: "/web/cat/271.."},
	{Name: "monitors", URL: "/web/cat/130.."},
	{Name: "smart-tv", URL: "/web/cat/3169.."},
	{Name: "soundbars", URL: "/web/cat/6346.."},
	{Name: "headphones", URL: "/web/cat/347.."},
	{Name: "bluetooth-speakers", URL: "/web/cat/263.."},
	{Name: "earbuds", URL: "/web/cat/617.."},
	{Name: "playstation", URL: "/web/cat/2108.."},
	{Name: "xbox", URL: "/web/cat/36.."},
	{Name: "nintendo", URL: "/web/cat/2062.."},
	{Name: "action-cameras", URL: "/web/cat/1012.."},
	{Name: "robot-vacuums", URL: "/web/cat/1657.."},
	{Name: "coffee-machines", URL: "/web/cat/289.."},
	{Name: "keyboards", URL: "/web/cat/349.."},
	{Name: "mice", URL: "/web/cat/348.."},
}

// DefaultCategories returns the default KSP category listings under base.
func DefaultCategories(base string) []Category {
	base = strings.TrimRight(base, "/")
	cats := make([]Category, len(kspCategoryPaths))
	for i, c := range kspCategoryPaths {
		cats[i] = Category{Name: c.Name, URL: base + c.URL}
	}
	return cats
}
