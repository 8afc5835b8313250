// Package affiliate builds KSP affiliate links and parses report sub-ids.
package affiliate

import (
	"fmt"
	"net/url"
	"strings"

	"ksp-deals/internal/models"
)

const DefaultBaseURL = "https://ksp.co.il"

// Links generates affiliate URLs for one partner id.
type Links struct {
	AffiliateID   string
	RetailerBase  string // e.g. https://ksp.co.il
	PublicBaseURL string // our redirect host; empty disables tracked links
}

// DirectLink returns the retailer item URL with the appkey parameter.
func (l Links) DirectLink(sku string) string {
	base := strings.TrimRight(l.RetailerBase, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/web/item/%s?appkey=%s", base, url.PathEscape(sku), url.QueryEscape(l.AffiliateID))
}

// TrackedLink returns the click-logging redirect URL for a product.
func (l Links) TrackedLink(productID string, platform models.Platform, lang models.Language) string {
	return fmt.Sprintf("%s/go/%s?channel=%s&lang=%s",
		strings.TrimRight(l.PublicBaseURL, "/"), url.PathEscape(productID), platform, lang)
}

// DealLink picks the tracked link when a public base URL is configured and
// falls back to the direct link.
func (l Links) DealLink(productID, sku string, platform models.Platform) string {
	if l.PublicBaseURL != "" && productID != "" {
		return l.TrackedLink(productID, platform, models.LangHebrew)
	}
	return l.DirectLink(sku)
}

// UIN returns the sub-id the retailer echoes back in its reports.
func (l Links) UIN(clickID string) string {
	return l.AffiliateID + "_" + clickID
}

// TrackingURL appends uin=AFFILIATE_clickID to the retailer product URL.
func (l Links) TrackingURL(productURL, clickID string) (string, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return "", fmt.Errorf("parse product url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("product url %q is not absolute", productURL)
	}
	q := u.Query()
	q.Set("uin", l.UIN(clickID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseClickID extracts the click id from a report uin. Values carrying our
// affiliate prefix are unwrapped; otherwise the segment after the last
// underscore is used. It returns "" when nothing usable is present.
func (l Links) ParseClickID(uin string) string {
	uin = strings.TrimSpace(uin)
	if uin == "" {
		return ""
	}
	if l.AffiliateID != "" {
		if id, ok := strings.CutPrefix(uin, l.AffiliateID+"_"); ok {
			return id
		}
	}
	if i := strings.LastIndex(uin, "_"); i >= 0 {
		return uin[i+1:]
	}
	return uin
}
