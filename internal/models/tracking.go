package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Platform is where an affiliate click originated.
type Platform string

const (
	PlatformTelegram  Platform = "telegram"
	PlatformSite      Platform = "site"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// ParsePlatform converts an external string into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformTelegram, PlatformSite, PlatformWhatsApp, PlatformInstagram, PlatformFacebook:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// Language of the storefront page a click came from.
type Language string

const (
	LangHebrew  Language = "he"
	LangEnglish Language = "en"
)

// ParseLanguage converts an external string into a Language.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(s); l {
	case LangHebrew, LangEnglish:
		return l, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// TrackingStatus of a click in the commission pipeline.
type TrackingStatus string

const (
	TrackingPending   TrackingStatus = "pending"
	TrackingConfirmed TrackingStatus = "confirmed"
)

// ClickTracking records one redirect through the affiliate link.
type ClickTracking struct {
	ID          string
	ProductID   string
	Platform    Platform
	Language    Language
	Status      TrackingStatus
	Commission  decimal.NullDecimal
	ClickedAt   time.Time
	ConfirmedAt *time.Time
}

// ReportImport summarizes one imported commission report.
type ReportImport struct {
	ID           string
	Filename     string
	TotalRows    int
	MatchedRows  int
	TotalRevenue decimal.Decimal
	ImportedAt   time.Time
}

// PlatformRevenue is a per-platform revenue aggregate.
type PlatformRevenue struct {
	Platform Platform
	Clicks   int
	Revenue  decimal.Decimal
}

// RevenueStats is the revenue dashboard overview.
type RevenueStats struct {
	TotalClicks    int
	ConfirmedSales int
	TotalRevenue   decimal.Decimal
	EPC            decimal.Decimal
	ConversionRate decimal.Decimal // percent
	ByPlatform     []PlatformRevenue
}
