package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"ksp-deals/internal/models"
	"ksp-deals/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *Server) ListAlerts(c *gin.Context) {
	f := models.AlertFilter{
		Limit:  getQueryInt("limit", 0, c),
		Offset: getQueryInt("offset", 0, c),
	}
	if raw := c.Query("status"); raw != "" {
		st, err := models.ParseAlertStatus(raw)
		if err != nil {
			respondError(c, "parse status", fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
		f.Status = &st
	}
	if raw := c.Query("type"); raw != "" {
		t, err := models.ParseAlertType(raw)
		if err != nil {
			respondError(c, "parse type", fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
		f.Type = &t
	}

	list, err := s.alerts.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, "error listing alerts", err)
		return
	}
	stats, err := s.alerts.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "error fetching alert stats", err)
		return
	}

	items := make([]AlertResponse, len(list))
	for i, a := range list {
		items[i] = toAlertResponse(a)
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts": items,
		"stats":  toAlertStatsResponse(stats),
	})
}

func (s *Server) AlertStats(c *gin.Context) {
	stats, err := s.alerts.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "error fetching alert stats", err)
		return
	}
	c.JSON(http.StatusOK, toAlertStatsResponse(stats))
}

func (s *Server) GetAlert(c *gin.Context) {
	d, err := s.alerts.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "error fetching alert", err)
		return
	}
	res := gin.H{"alert": toAlertResponse(d.Alert), "last_attempt": nil}
	if d.LastAttempt != nil {
		res["last_attempt"] = toPostResponse(*d.LastAttempt)
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) DismissAlert(c *gin.Context) {
	a, err := s.alerts.Dismiss(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "error dismissing alert", err)
		return
	}
	c.JSON(http.StatusOK, toAlertResponse(*a))
}

func (s *Server) GetSettings(c *gin.Context) {
	q, err := s.poster.Quota(c.Request.Context())
	if err != nil {
		respondError(c, "error fetching quota", err)
		return
	}
	c.JSON(http.StatusOK, toQuotaResponse(q))
}

type settingsRequest struct {
	ChannelID          *string          `json:"channel_id"`
	MinDiscountPercent *decimal.Decimal `json:"min_discount_percent"`
	MaxPostsPerDay     *int             `json:"max_posts_per_day"`
}

func (s *Server) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "bind settings", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	q, err := s.poster.UpdateSettings(c.Request.Context(), scheduler.Settings{
		ChannelID:          req.ChannelID,
		MinDiscountPercent: req.MinDiscountPercent,
		MaxPostsPerDay:     req.MaxPostsPerDay,
	})
	if err != nil {
		respondError(c, "error updating settings", err)
		return
	}
	c.JSON(http.StatusOK, toQuotaResponse(q))
}

type postRequest struct {
	AlertID string `json:"alert_id" binding:"required"`
}

func (s *Server) PostAlert(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "bind post", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	res, err := s.poster.PostOne(c.Request.Context(), req.AlertID)
	if err != nil {
		slog.Warn("post alert failed", "alert", req.AlertID, "error", err)
		respondError(c, "error posting alert", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alert_id": res.AlertID,
		"post_id":  res.PostID,
		"receipt":  res.Receipt,
	})
}

func (s *Server) PostPending(c *gin.Context) {
	res, err := s.poster.PostEligiblePending(c.Request.Context())
	if err != nil {
		respondError(c, "error posting pending alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posted": res.Posted, "skipped": res.Skipped})
}

func (s *Server) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	posts, err := s.store.ListPosts(ctx, postHistoryLimit)
	if err != nil {
		respondError(c, "error listing posts", err)
		return
	}
	stats, err := s.store.PostStats(ctx, models.StartOfDay(s.now(), s.loc))
	if err != nil {
		respondError(c, "error fetching post stats", err)
		return
	}

	items := make([]PostResponse, len(posts))
	for i, p := range posts {
		items[i] = toPostResponse(p)
	}
	c.JSON(http.StatusOK, gin.H{
		"posts": items,
		"stats": gin.H{
			"total_posts": stats.TotalPosts,
			"sent_today":  stats.SentToday,
			"failed":      stats.Failed,
		},
	})
}

func (s *Server) ImportReport(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, "read upload", fmt.Errorf("%w: file is required", errBadRequest))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, "open upload", err)
		return
	}
	defer f.Close()

	sum, err := s.reports.Import(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondError(c, "error importing report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"import":         toReportImportResponse(sum.Import),
		"unmatched_rows": sum.UnmatchedRows,
	})
}

func (s *Server) ReportHistory(c *gin.Context) {
	history, err := s.reports.History(c.Request.Context())
	if err != nil {
		respondError(c, "error fetching import history", err)
		return
	}
	items := make([]ReportImportResponse, len(history))
	for i, r := range history {
		items[i] = toReportImportResponse(r)
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) RevenueStats(c *gin.Context) {
	st, err := s.reports.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "error fetching revenue stats", err)
		return
	}
	c.JSON(http.StatusOK, toRevenueStatsResponse(st))
}

// Redirect logs an affiliate click and sends the visitor to the retailer.
func (s *Server) Redirect(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := s.store.ProductByID(ctx, c.Param("productId"))
	if err != nil {
		respondError(c, "error fetching product", err)
		return
	}

	platform := models.PlatformSite
	if raw := c.Query("channel"); raw != "" {
		if v, err := models.ParsePlatform(raw); err == nil {
			platform = v
		} else {
			slog.Warn("unknown click channel, using site", "value", raw)
		}
	}
	lang := models.LangHebrew
	if raw := c.Query("lang"); raw != "" {
		if v, err := models.ParseLanguage(raw); err == nil {
			lang = v
		}
	}

	click := &models.ClickTracking{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Platform:  platform,
		Language:  lang,
		Status:    models.TrackingPending,
		ClickedAt: s.now(),
	}
	if err := s.store.CreateClick(ctx, click); err != nil {
		respondError(c, "error logging click", err)
		return
	}

	target := p.SourceURL
	if target == "" {
		target = s.links.DirectLink(p.SKU)
	}
	dest, err := s.links.TrackingURL(target, click.ID)
	if err != nil {
		slog.Warn("bad product url, using direct link", "product", p.ID, "error", err)
		if dest, err = s.links.TrackingURL(s.links.DirectLink(p.SKU), click.ID); err != nil {
			respondError(c, "error building redirect", err)
			return
		}
	}
	c.Redirect(http.StatusFound, dest)
}
