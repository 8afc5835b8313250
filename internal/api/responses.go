package api

import (
	"time"

	"ksp-deals/internal/models"

	"github.com/shopspring/decimal"
)

type AlertResponse struct {
	ID            string              `json:"id"`
	ProductID     string              `json:"product_id"`
	Type          models.AlertType    `json:"type"`
	OldPrice      decimal.NullDecimal `json:"old_price"`
	NewPrice      decimal.NullDecimal `json:"new_price"`
	PercentChange decimal.NullDecimal `json:"percent_change"`
	Status        models.AlertStatus  `json:"status"`
	CreatedAt     string              `json:"created_at"`
	SentAt        *string             `json:"sent_at"`
	ProductSKU    string              `json:"product_sku"`
	ProductTitle  string              `json:"product_title"`
	ProductImage  string              `json:"product_image"`
	ProductURL    string              `json:"product_url"`
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toAlertResponse(a models.AlertView) AlertResponse {
	return AlertResponse{
		ID:            a.ID,
		ProductID:     a.ProductID,
		Type:          a.Type,
		OldPrice:      a.OldPrice,
		NewPrice:      a.NewPrice,
		PercentChange: a.PercentChange,
		Status:        a.Status,
		CreatedAt:     formatTime(a.CreatedAt),
		SentAt:        formatTimePtr(a.SentAt),
		ProductSKU:    a.ProductSKU,
		ProductTitle:  a.ProductTitle,
		ProductImage:  a.ProductImage,
		ProductURL:    a.ProductURL,
	}
}

type AlertStatsResponse struct {
	Total          int             `json:"total"`
	Pending        int             `json:"pending"`
	Sent           int             `json:"sent"`
	TotalDrops     int             `json:"total_drops"`
	AvgDropPercent decimal.Decimal `json:"avg_drop_percent"`
	TodayCount     int             `json:"today_count"`
}

func toAlertStatsResponse(st models.AlertStats) AlertStatsResponse {
	return AlertStatsResponse{
		Total:          st.Total,
		Pending:        st.Pending,
		Sent:           st.Sent,
		TotalDrops:     st.TotalDrops,
		AvgDropPercent: st.AvgDropPercent,
		TodayCount:     st.TodayCount,
	}
}

type PostResponse struct {
	ID              string              `json:"id"`
	AlertID         string              `json:"alert_id"`
	ProductID       string              `json:"product_id"`
	Title           string              `json:"title"`
	OldPrice        decimal.NullDecimal `json:"old_price"`
	NewPrice        decimal.NullDecimal `json:"new_price"`
	PercentOff      decimal.NullDecimal `json:"percent_off"`
	ImageURL        string              `json:"image_url"`
	AffiliateLink   string              `json:"affiliate_link"`
	Status          models.PostStatus   `json:"status"`
	DeliveryReceipt *string             `json:"delivery_receipt"`
	Error           *string             `json:"error"`
	CreatedAt       string              `json:"created_at"`
}

func toPostResponse(p models.PostRecord) PostResponse {
	return PostResponse{
		ID:              p.ID,
		AlertID:         p.AlertID,
		ProductID:       p.ProductID,
		Title:           p.Title,
		OldPrice:        p.OldPrice,
		NewPrice:        p.NewPrice,
		PercentOff:      p.PercentOff,
		ImageURL:        p.ImageURL,
		AffiliateLink:   p.AffiliateLink,
		Status:          p.Status,
		DeliveryReceipt: p.DeliveryReceipt,
		Error:           p.Error,
		CreatedAt:       formatTime(p.CreatedAt),
	}
}

type QuotaResponse struct {
	ChannelID          string          `json:"channel_id"`
	MinDiscountPercent decimal.Decimal `json:"min_discount_percent"`
	MaxPostsPerDay     int             `json:"max_posts_per_day"`
	PostsToday         int             `json:"posts_today"`
	Remaining          int             `json:"remaining"`
	LastResetAt        string          `json:"last_reset_at"`
	LastPostAt         *string         `json:"last_post_at"`
}

func toQuotaResponse(q models.PostingQuota) QuotaResponse {
	return QuotaResponse{
		ChannelID:          q.ChannelID,
		MinDiscountPercent: q.MinDiscountPercent,
		MaxPostsPerDay:     q.MaxPostsPerDay,
		PostsToday:         q.PostsToday,
		Remaining:          q.Remaining(),
		LastResetAt:        formatTime(q.LastResetAt),
		LastPostAt:         formatTimePtr(q.LastPostAt),
	}
}

type ReportImportResponse struct {
	ID           string          `json:"id"`
	Filename     string          `json:"filename"`
	TotalRows    int             `json:"total_rows"`
	MatchedRows  int             `json:"matched_rows"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	ImportedAt   string          `json:"imported_at"`
}

func toReportImportResponse(r models.ReportImport) ReportImportResponse {
	return ReportImportResponse{
		ID:           r.ID,
		Filename:     r.Filename,
		TotalRows:    r.TotalRows,
		MatchedRows:  r.MatchedRows,
		TotalRevenue: r.TotalRevenue,
		ImportedAt:   formatTime(r.ImportedAt),
	}
}

type PlatformRevenueResponse struct {
	Platform models.Platform `json:"platform"`
	Clicks   int             `json:"clicks"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type RevenueStatsResponse struct {
	TotalClicks    int                       `json:"total_clicks"`
	ConfirmedSales int                       `json:"confirmed_sales"`
	TotalRevenue   decimal.Decimal           `json:"total_revenue"`
	EPC            decimal.Decimal           `json:"epc"`
	ConversionRate decimal.Decimal           `json:"conversion_rate"`
	ByPlatform     []PlatformRevenueResponse `json:"by_platform"`
}

func toRevenueStatsResponse(st models.RevenueStats) RevenueStatsResponse {
	res := RevenueStatsResponse{
		TotalClicks:    st.TotalClicks,
		ConfirmedSales: st.ConfirmedSales,
		TotalRevenue:   st.TotalRevenue,
		EPC:            st.EPC,
		ConversionRate: st.ConversionRate,
		ByPlatform:     []PlatformRevenueResponse{},
	}
	for _, p := range st.ByPlatform {
		res.ByPlatform = append(res.ByPlatform, PlatformRevenueResponse{Platform: p.Platform, Clicks: p.Clicks, Revenue: p.Revenue})
	}
	return res
}
