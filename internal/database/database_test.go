package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ksp-deals/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedProduct(t *testing.T, db *DB, id, sku string, price int64) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:           id,
		SKU:          sku,
		Title:        "Product " + sku,
		PriceCurrent: decimal.NewFromInt(price),
		PriceHistory: []models.PricePoint{{Price: decimal.NewFromInt(price), ObservedAt: t0}},
		InStock:      true,
		Category:     "laptops",
		ImageURL:     "https://img/" + sku + ".jpg",
		SourceURL:    "https://ksp.co.il/web/item/" + sku,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, db.CreateProduct(context.Background(), p))
	return p
}

func dropAlert(id, productID string, pct float64, at time.Time) models.Alert {
	return models.Alert{
		ID:            id,
		ProductID:     productID,
		Type:          models.AlertPriceDrop,
		OldPrice:      decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		NewPrice:      decimal.NewNullDecimal(decimal.NewFromInt(500)),
		PercentChange: decimal.NewNullDecimal(decimal.NewFromFloat(pct)),
		Status:        models.StatusPending,
		CreatedAt:     at,
	}
}

func TestProductRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProduct(t, db, "p1", "100", 1000)

	p, err := db.ProductBySKU(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.True(t, p.PriceCurrent.Equal(decimal.NewFromInt(1000)))
	require.Len(t, p.PriceHistory, 1)
	assert.WithinDuration(t, t0, p.PriceHistory[0].ObservedAt, 0)

	_, err = db.ProductBySKU(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	n, err := db.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveObservationAppendsHistoryAndAlerts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db, "p1", "100", 1000)

	p.PriceCurrent = decimal.NewFromInt(950)
	p.UpdatedAt = t0.Add(time.Hour)
	pp := models.PricePoint{Price: decimal.NewFromInt(950), ObservedAt: t0.Add(time.Hour)}
	alert := dropAlert("a1", p.ID, -5, t0.Add(time.Hour))
	require.NoError(t, db.SaveObservation(ctx, p, &pp, []models.Alert{alert}))

	got, err := db.ProductByID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got.PriceHistory, 2)
	assert.True(t, got.LastPrice().Equal(got.PriceCurrent))

	a, err := db.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertPriceDrop, a.Type)
	assert.Equal(t, "100", a.ProductSKU)
	assert.Equal(t, "-5", a.PercentChange.Decimal.String())
	assert.Nil(t, a.SentAt)
}

func TestSaveObservationUnknownProduct(t *testing.T) {
	db := newTestDB(t)
	err := db.SaveObservation(context.Background(), &models.Product{ID: "nope", UpdatedAt: t0}, nil, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListAlertsFilterAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db, "p1", "100", 1000)

	restock := models.Alert{
		ID: "a3", ProductID: p.ID, Type: models.AlertBackInStock,
		NewPrice: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		Status:   models.StatusPending, CreatedAt: t0.Add(3 * time.Minute),
	}
	alerts := []models.Alert{
		dropAlert("a1", p.ID, -10, t0.Add(time.Minute)),
		dropAlert("a2", p.ID, -50, t0.Add(2*time.Minute)),
		restock,
	}
	require.NoError(t, db.SaveObservation(ctx, p, nil, alerts))

	all, err := db.ListAlerts(ctx, models.AlertFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a3", "a2", "a1"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.False(t, all[0].OldPrice.Valid)

	drop := models.AlertPriceDrop
	drops, err := db.ListAlerts(ctx, models.AlertFilter{Type: &drop, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, drops, 1)
	assert.Equal(t, "a1", drops[0].ID)
}

func TestTransitionAlertOnlyFromPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db, "p1", "100", 1000)
	require.NoError(t, db.SaveObservation(ctx, p, nil, []models.Alert{dropAlert("a1", p.ID, -10, t0)}))

	ok, err := db.TransitionAlert(ctx, "a1", models.StatusDismissed, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TransitionAlert(ctx, "a1", models.StatusSent, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	a, err := db.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDismissed, a.Status)
	assert.Nil(t, a.SentAt)
}

func TestPostCandidatesOrderedByDiscount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db, "p1", "100", 1000)
	require.NoError(t, db.SaveObservation(ctx, p, nil, []models.Alert{
		dropAlert("small", p.ID, -35, t0),
		dropAlert("big", p.ID, -60, t0.Add(time.Minute)),
		dropAlert("edge", p.ID, -40, t0.Add(2*time.Minute)),
		dropAlert("mid", p.ID, -45.5, t0.Add(3*time.Minute)),
	}))

	got, err := db.PostCandidates(ctx, decimal.NewFromInt(40), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "big", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)

	got, err = db.PostCandidates(ctx, decimal.NewFromInt(40), 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestAlertStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db, "p1", "100", 1000)
	up := dropAlert("up", p.ID, 12, t0)
	up.Type = models.AlertPriceIncrease
	require.NoError(t, db.SaveObservation(ctx, p, nil, []models.Alert{
		dropAlert("a1", p.ID, -10, t0.Add(-48*time.Hour)),
		dropAlert("a2", p.ID, -21, t0),
		up,
	}))
	_, err := db.TransitionAlert(ctx, "a1", models.StatusSent, t0)
	require.NoError(t, err)

	st, err := db.AlertStats(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, 1, st.Sent)
	assert.Equal(t, 2, st.TotalDrops)
	assert.Equal(t, "15.5", st.AvgDropPercent.String())
	assert.Equal(t, 2, st.TodayCount)
}

func TestQuotaLazyCreateAndMutate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	defaults := models.PostingQuota{
		ChannelID:          "@deals",
		MinDiscountPercent: decimal.NewFromInt(40),
		MaxPostsPerDay:     10,
		LastResetAt:        t0,
	}

	q, err := db.UpdateQuota(ctx, defaults, nil)
	require.NoError(t, err)
	assert.Equal(t, "@deals", q.ChannelID)
	assert.Equal(t, 10, q.MaxPostsPerDay)

	q, err = db.UpdateQuota(ctx, defaults, func(q *models.PostingQuota) bool {
		q.MaxPostsPerDay = 3
		q.PostsToday = 2
		return true
	})
	require.NoError(t, err)

	q, err = db.UpdateQuota(ctx, defaults, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, q.MaxPostsPerDay)
	assert.Equal(t, 2, q.PostsToday)
	assert.Nil(t, q.LastPostAt)
}

func TestRecordSentPostIsOneUnit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db, "p1", "100", 1000)
	require.NoError(t, db.SaveObservation(ctx, p, nil, []models.Alert{dropAlert("a1", p.ID, -50, t0)}))
	_, err := db.UpdateQuota(ctx, models.PostingQuota{MinDiscountPercent: decimal.NewFromInt(40), MaxPostsPerDay: 10, LastResetAt: t0}, nil)
	require.NoError(t, err)

	receipt := "42"
	rec := &models.PostRecord{ID: "r1", AlertID: "a1", ProductID: p.ID, Title: p.Title, Status: models.PostSent, DeliveryReceipt: &receipt, CreatedAt: t0}
	updated, err := db.RecordSentPost(ctx, rec, t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, updated)

	a, err := db.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, a.Status)
	require.NotNil(t, a.SentAt)

	q, err := db.UpdateQuota(ctx, models.PostingQuota{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, q.PostsToday)
	require.NotNil(t, q.LastPostAt)

	last, err := db.LastPostForAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.PostSent, last.Status)
	require.NotNil(t, last.DeliveryReceipt)
	assert.Equal(t, "42", *last.DeliveryReceipt)
}

func TestRecordSentPostWithoutQuotaRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := seedProduct(t, db, "p1", "100", 1000)
	require.NoError(t, db.SaveObservation(ctx, p, nil, []models.Alert{dropAlert("a1", p.ID, -50, t0)}))

	_, err := db.RecordSentPost(ctx, &models.PostRecord{ID: "r1", AlertID: "a1", ProductID: p.ID, Status: models.PostSent, CreatedAt: t0}, t0)
	assert.ErrorIs(t, err, models.ErrNotFound)

	n, err := db.CountPostsForAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, n)
	a, err := db.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, a.Status)
}

func TestPostStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	msg := "boom"
	require.NoError(t, db.RecordFailedPost(ctx, &models.PostRecord{ID: "f1", AlertID: "a1", ProductID: "p1", Status: models.PostFailed, Error: &msg, CreatedAt: t0}))
	require.NoError(t, db.RecordFailedPost(ctx, &models.PostRecord{ID: "f2", AlertID: "a1", ProductID: "p1", Status: models.PostFailed, Error: &msg, CreatedAt: t0.Add(time.Minute)}))

	st, err := db.PostStats(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalPosts)
	assert.Equal(t, 0, st.SentToday)
	assert.Equal(t, 2, st.Failed)

	posts, err := db.ListPosts(ctx, 50)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "f2", posts[0].ID)
	require.NotNil(t, posts[0].Error)
	assert.Equal(t, "boom", *posts[0].Error)
}

func TestClickTrackingAndRevenue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, c := range []models.ClickTracking{
		{ID: "c1", ProductID: "p1", Platform: models.PlatformTelegram, Language: models.LangHebrew, Status: models.TrackingPending, ClickedAt: t0},
		{ID: "c2", ProductID: "p1", Platform: models.PlatformTelegram, Language: models.LangHebrew, Status: models.TrackingPending, ClickedAt: t0},
		{ID: "c3", ProductID: "p1", Platform: models.PlatformSite, Language: models.LangEnglish, Status: models.TrackingPending, ClickedAt: t0},
		{ID: "c4", ProductID: "p1", Platform: models.PlatformSite, Language: models.LangEnglish, Status: models.TrackingPending, ClickedAt: t0},
	} {
		c := c
		require.NoError(t, db.CreateClick(ctx, &c))
	}

	ok, err := db.ConfirmClick(ctx, "c1", decimal.NewFromInt(30), t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.ConfirmClick(ctx, "missing", decimal.NewFromInt(30), t0)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := db.GetClick(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.TrackingConfirmed, c.Status)
	assert.Equal(t, "30", c.Commission.Decimal.String())

	st, err := db.RevenueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalClicks)
	assert.Equal(t, 1, st.ConfirmedSales)
	assert.Equal(t, "30", st.TotalRevenue.String())
	assert.Equal(t, "7.5", st.EPC.String())
	assert.Equal(t, "25", st.ConversionRate.String())
	require.Len(t, st.ByPlatform, 2)
	assert.Equal(t, models.PlatformSite, st.ByPlatform[0].Platform)
	assert.Equal(t, "30", st.ByPlatform[1].Revenue.String())
}
