// Package scheduler posts pending deal alerts to the channel under a daily
// quota and a minimum discount policy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ksp-deals/internal/affiliate"
	"ksp-deals/internal/channel"
	"ksp-deals/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var (
	ErrAlreadyProcessed = errors.New("alert already processed")
	ErrQuotaExceeded    = errors.New("daily post quota exceeded")
	ErrBelowThreshold   = errors.New("discount below posting threshold")
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrInvalidSettings  = errors.New("invalid posting settings")
)

const (
	DefaultSpacing         = 2 * time.Second
	DefaultDeliveryTimeout = 30 * time.Second
)

// Store is the persistence the scheduler needs.
type Store interface {
	GetAlert(ctx context.Context, id string) (*models.AlertView, error)
	PostCandidates(ctx context.Context, minDiscount decimal.Decimal, limit int) ([]models.AlertView, error)
	UpdateQuota(ctx context.Context, defaults models.PostingQuota, fn func(q *models.PostingQuota) bool) (models.PostingQuota, error)
	RecordSentPost(ctx context.Context, r *models.PostRecord, sentAt time.Time) (bool, error)
	RecordFailedPost(ctx context.Context, r *models.PostRecord) error
}

// Config holds the scheduler policy. Defaults seeds the quota row the first
// time it is read; afterwards the stored quota wins.
type Config struct {
	Defaults        models.PostingQuota
	Links           affiliate.Links
	Location        *time.Location
	Spacing         time.Duration
	DeliveryTimeout time.Duration
}

// Scheduler runs single posts and eligible batches. It assumes it is the
// only writer of the quota. Posts, batches and settings changes are
// serialized so the quota check, delivery and record happen as one step.
type Scheduler struct {
	mu        sync.Mutex
	store     Store
	deliverer channel.Deliverer
	cfg       Config
	limiter   *rate.Limiter
	now       func() time.Time
}

// Result describes a successful post.
type Result struct {
	AlertID string
	PostID  string
	Receipt string
}

// BatchResult counts the outcome of PostEligiblePending. Skipped counts
// selected alerts that were not posted.
type BatchResult struct {
	Posted  int
	Skipped int
}

// New creates a scheduler.
func New(store Store, deliverer channel.Deliverer, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}

	limit := rate.Inf
	if cfg.Spacing > 0 {
		limit = rate.Every(cfg.Spacing)
	}
	return &Scheduler{
		store:     store,
		deliverer: deliverer,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for quota days and timestamps.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Quota returns the posting quota after resetting the counter if the
// calendar day has advanced.
func (s *Scheduler) Quota(ctx context.Context) (models.PostingQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota(ctx)
}

func (s *Scheduler) quota(ctx context.Context) (models.PostingQuota, error) {
	now := s.now()
	defaults := s.cfg.Defaults
	defaults.PostsToday = 0
	defaults.LastResetAt = now
	defaults.LastPostAt = nil

	q, err := s.store.UpdateQuota(ctx, defaults, func(q *models.PostingQuota) bool {
		return q.ResetIfNewDay(now, s.cfg.Location)
	})
	if err != nil {
		return q, fmt.Errorf("load quota: %w", err)
	}
	return q, nil
}

// Settings is a partial quota configuration update; nil fields are kept.
type Settings struct {
	ChannelID          *string
	MinDiscountPercent *decimal.Decimal
	MaxPostsPerDay     *int
}

func (st Settings) validate() error {
	if st.ChannelID != nil && strings.TrimSpace(*st.ChannelID) == "" {
		return fmt.Errorf("%w: channel id is empty", ErrInvalidSettings)
	}
	if m := st.MinDiscountPercent; m != nil && (m.IsNegative() || m.GreaterThan(decimal.NewFromInt(100))) {
		return fmt.Errorf("%w: min discount %s is outside 0-100", ErrInvalidSettings, m)
	}
	if st.MaxPostsPerDay != nil && *st.MaxPostsPerDay < 0 {
		return fmt.Errorf("%w: max posts per day %d is negative", ErrInvalidSettings, *st.MaxPostsPerDay)
	}
	return nil
}

// UpdateSettings changes the quota configuration.
func (s *Scheduler) UpdateSettings(ctx context.Context, st Settings) (models.PostingQuota, error) {
	if err := st.validate(); err != nil {
		return models.PostingQuota{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	defaults := s.cfg.Defaults
	defaults.LastResetAt = now
	q, err := s.store.UpdateQuota(ctx, defaults, func(q *models.PostingQuota) bool {
		q.ResetIfNewDay(now, s.cfg.Location)
		if st.ChannelID != nil {
			q.ChannelID = strings.TrimSpace(*st.ChannelID)
		}
		if st.MinDiscountPercent != nil {
			q.MinDiscountPercent = *st.MinDiscountPercent
		}
		if st.MaxPostsPerDay != nil {
			q.MaxPostsPerDay = *st.MaxPostsPerDay
		}
		return true
	})
	if err != nil {
		return q, fmt.Errorf("update settings: %w", err)
	}
	slog.Info("posting settings updated",
		"channel", q.ChannelID, "min_discount", q.MinDiscountPercent.String(), "max_per_day", q.MaxPostsPerDay)
	return q, nil
}

// PostOne posts a single pending alert. Policy failures leave the alert
// pending and write nothing; a failed delivery is logged as a failed post.
func (s *Scheduler) PostOne(ctx context.Context, alertID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("alert %s: %w", alertID, err)
	}
	return s.post(ctx, a)
}

// PostEligiblePending posts pending price drops at or above the minimum
// discount, largest first, up to the quota left for today. Alerts are posted
// one at a time with at least the configured spacing between deliveries. A
// failed delivery is counted as skipped and the batch moves on.
func (s *Scheduler) PostEligiblePending(ctx context.Context) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res BatchResult
	q, err := s.quota(ctx)
	if err != nil {
		return res, err
	}
	remaining := q.Remaining()
	if remaining <= 0 {
		slog.Info("post quota exhausted for today", "posts_today", q.PostsToday, "max", q.MaxPostsPerDay)
		return res, nil
	}

	candidates, err := s.store.PostCandidates(ctx, q.MinDiscountPercent, remaining)
	if err != nil {
		return res, fmt.Errorf("select candidates: %w", err)
	}

	for i := range candidates {
		a := &candidates[i]
		_, err := s.post(ctx, a)
		switch {
		case err == nil:
			res.Posted++
		case errors.Is(err, ErrQuotaExceeded):
			res.Skipped += len(candidates) - i
			slog.Info("batch stopped at quota", "posted", res.Posted)
			return res, nil
		case errors.Is(err, ErrDeliveryFailed),
			errors.Is(err, ErrAlreadyProcessed),
			errors.Is(err, ErrBelowThreshold):
			res.Skipped++
			slog.Warn("alert skipped", "alert", a.ID, "error", err)
		default:
			return res, err
		}
	}

	slog.Info("batch post finished", "posted", res.Posted, "skipped", res.Skipped)
	return res, nil
}

func (s *Scheduler) post(ctx context.Context, a *models.AlertView) (*Result, error) {
	if a.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: alert %s is %s", ErrAlreadyProcessed, a.ID, a.Status)
	}

	q, err := s.quota(ctx)
	if err != nil {
		return nil, err
	}
	if q.PostsToday >= q.MaxPostsPerDay {
		return nil, fmt.Errorf("%w: %d of %d posts used", ErrQuotaExceeded, q.PostsToday, q.MaxPostsPerDay)
	}
	if a.IsDrop() && a.DiscountPercent().LessThan(q.MinDiscountPercent) {
		return nil, fmt.Errorf("%w: %s%% < %s%%", ErrBelowThreshold, a.DiscountPercent(), q.MinDiscountPercent)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for post slot: %w", err)
	}
	return s.deliver(ctx, a, q.ChannelID)
}

func (s *Scheduler) deliver(ctx context.Context, a *models.AlertView, target string) (*Result, error) {
	link := s.cfg.Links.DealLink(a.ProductID, a.ProductSKU, models.PlatformTelegram)
	msg := channel.FormatDeal(channel.Deal{
		Type:       a.Type,
		Title:      a.ProductTitle,
		OldPrice:   a.OldPrice,
		NewPrice:   a.NewPrice,
		PercentOff: a.DiscountPercent(),
		ImageURL:   a.ProductImage,
		Link:       link,
	})

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	receipt, derr := s.deliverer.Deliver(dctx, target, msg)
	cancel()

	rec := &models.PostRecord{
		ID:            uuid.NewString(),
		AlertID:       a.ID,
		ProductID:     a.ProductID,
		Title:         a.ProductTitle,
		OldPrice:      a.OldPrice,
		NewPrice:      a.NewPrice,
		ImageURL:      a.ProductImage,
		AffiliateLink: link,
		CreatedAt:     s.now(),
	}
	if a.PercentChange.Valid {
		rec.PercentOff = decimal.NewNullDecimal(a.PercentChange.Decimal.Abs())
	}

	if derr != nil {
		text := derr.Error()
		rec.Status = models.PostFailed
		rec.Error = &text
		if err := s.store.RecordFailedPost(ctx, rec); err != nil {
			return nil, fmt.Errorf("record failed post: %w", err)
		}
		slog.Warn("delivery failed", "alert", a.ID, "target", target, "error", derr)
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, derr)
	}

	rec.Status = models.PostSent
	rec.DeliveryReceipt = &receipt
	updated, err := s.store.RecordSentPost(ctx, rec, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record sent post: %w", err)
	}
	if !updated {
		slog.Warn("alert left pending before post was recorded", "alert", a.ID)
	}
	slog.Info("deal posted", "alert", a.ID, "sku", a.ProductSKU, "target", target, "receipt", receipt)

	return &Result{AlertID: a.ID, PostID: rec.ID, Receipt: receipt}, nil
}
