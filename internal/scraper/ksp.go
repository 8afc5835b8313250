package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"ksp-deals/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

const (
	selProduct = `[class*="product-0-3-"]`
	selLink    = `a[href*="/item/"]`
	selTitle   = `a[class*="productTitle"]`
	selPrice   = `[class*="currentPrice-"]`
	selImage   = `[class*="lazyLoadWrapper"] img, [class*="imageWrapper"] img`
	selSKU     = `[class*="skuWrapper"]`

	soldOutMarker  = "אזל"
	assembleMarker = "להרכיב"
)

// MaxPrice drops listings with implausible prices (bundle configurators and
// parse glitches).
var MaxPrice = decimal.NewFromInt(35000)

var (
	itemSKU    = regexp.MustCompile(`/item/(\d+)`)
	digits     = regexp.MustCompile(`\d+`)
	priceChars = regexp.MustCompile(`[^\d.,]`)
)

// KSPScraper reads ksp.co.il category listings.
type KSPScraper struct {
	base   string
	client *http.Client
}

// NewKSPScraper creates a scraper for the retailer at base.
func NewKSPScraper(base string) *KSPScraper {
	return &KSPScraper{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// CanHandle reports whether url points at the retailer.
func (k *KSPScraper) CanHandle(url string) bool {
	return strings.HasPrefix(url, k.base+"/") || strings.Contains(url, "ksp.co.il")
}

// ScrapeCategory downloads cat.URL and parses its product tiles.
func (k *KSPScraper) ScrapeCategory(ctx context.Context, cat Category) ([]models.ScrapedProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cat.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "he-IL,he;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cat.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status code %d", cat.Name, resp.StatusCode)
	}
	return ParseListing(resp.Body, k.base)
}

// ParseListing extracts products from a KSP listing page. Relative links and
// images are resolved against base. Tiles without a sku, with a price outside
// (0, MaxPrice] or for "to assemble" bundles are dropped.
func ParseListing(r io.Reader, base string) ([]models.ScrapedProduct, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	base = strings.TrimRight(base, "/")

	var (
		products []models.ScrapedProduct
		seen     = map[string]bool{}
	)
	doc.Find(selProduct).Each(func(_ int, s *goquery.Selection) {
		p, ok := parseTile(s, base)
		if !ok || seen[p.SKU] {
			return
		}
		seen[p.SKU] = true
		products = append(products, p)
	})
	return products, nil
}

func parseTile(s *goquery.Selection, base string) (models.ScrapedProduct, bool) {
	href := s.Find(selLink).First().AttrOr("href", "")

	sku := ""
	if m := itemSKU.FindStringSubmatch(href); m != nil {
		sku = m[1]
	} else {
		sku = digits.FindString(s.Find(selSKU).First().Text())
	}
	if sku == "" {
		return models.ScrapedProduct{}, false
	}

	title := strings.TrimSpace(s.Find(selTitle).First().Text())
	if strings.Contains(title, assembleMarker) {
		return models.ScrapedProduct{}, false
	}

	price, err := ParsePrice(s.Find(selPrice).First().Text())
	if err != nil || !price.IsPositive() || price.GreaterThan(MaxPrice) {
		return models.ScrapedProduct{}, false
	}

	img := s.Find(selImage).First()
	src := img.AttrOr("src", "")
	if src == "" {
		src = img.AttrOr("data-src", "")
	}

	return models.ScrapedProduct{
		SKU:       sku,
		Title:     title,
		Price:     price,
		ImageURL:  absolute(base, src),
		InStock:   !strings.Contains(s.Text(), soldOutMarker),
		Category:  Classify(title),
		SourceURL: absolute(base, href),
	}, true
}

// ParsePrice reads a displayed price such as "₪1,299.90".
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(priceChars.ReplaceAllString(text, ""), ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("no price in %q", text)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", text, err)
	}
	return price, nil
}

func absolute(base, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return base + ref
}
