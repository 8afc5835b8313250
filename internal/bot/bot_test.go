package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ksp-deals/internal/alerts"
	"ksp-deals/internal/models"
	"ksp-deals/internal/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent     []tgbotapi.Chattable
	rejectFn func(c tgbotapi.Chattable) bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if f.rejectFn != nil && f.rejectFn(c) {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent)
	switch c := f.sent[len(f.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		return c.Text
	case tgbotapi.EditMessageTextConfig:
		return c.Text
	}
	t.Fatalf("unexpected chattable %T", f.sent[len(f.sent)-1])
	return ""
}

type fakeAlerts struct {
	list      []models.AlertView
	filter    models.AlertFilter
	dismissed []string
	dismiss   error
}

func (f *fakeAlerts) List(_ context.Context, flt models.AlertFilter) ([]models.AlertView, error) {
	f.filter = flt
	return f.list, nil
}

func (f *fakeAlerts) Stats(context.Context) (models.AlertStats, error) {
	return models.AlertStats{Total: 12, Pending: 4, Sent: 7, TotalDrops: 9, AvgDropPercent: decimal.RequireFromString("23.4"), TodayCount: 3}, nil
}

func (f *fakeAlerts) Dismiss(_ context.Context, id string) (*models.AlertView, error) {
	if f.dismiss != nil {
		return nil, f.dismiss
	}
	f.dismissed = append(f.dismissed, id)
	return &models.AlertView{}, nil
}

type fakePoster struct {
	postErr  error
	posted   []string
	batch    scheduler.BatchResult
	settings []scheduler.Settings
	quota    models.PostingQuota
}

func (f *fakePoster) PostOne(_ context.Context, id string) (*scheduler.Result, error) {
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.posted = append(f.posted, id)
	return &scheduler.Result{AlertID: id, Receipt: "77"}, nil
}

func (f *fakePoster) PostEligiblePending(context.Context) (scheduler.BatchResult, error) {
	return f.batch, nil
}

func (f *fakePoster) Quota(context.Context) (models.PostingQuota, error) { return f.quota, nil }

func (f *fakePoster) UpdateSettings(_ context.Context, st scheduler.Settings) (models.PostingQuota, error) {
	if st.MaxPostsPerDay != nil && *st.MaxPostsPerDay < 0 {
		return f.quota, fmt.Errorf("%w: negative", scheduler.ErrInvalidSettings)
	}
	f.settings = append(f.settings, st)
	return f.quota, nil
}

const admin = int64(4242)

func newTestBot() (*Bot, *fakeSender, *fakeAlerts, *fakePoster) {
	api := &fakeSender{}
	al := &fakeAlerts{}
	p := &fakePoster{quota: models.PostingQuota{
		ChannelID: "@KSPmivtzei", MinDiscountPercent: decimal.NewFromInt(40), MaxPostsPerDay: 10, PostsToday: 2,
	}}
	return New(api, al, p, admin), api, al, p
}

func message(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
}

func TestHelpIsPublic(t *testing.T) {
	b, api, _, _ := newTestBot()
	b.Handle(context.Background(), message(1, "/help@ksp_deals_bot"))

	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "/postall")
}

func TestCommandsRequireAdmin(t *testing.T) {
	b, api, _, p := newTestBot()
	b.Handle(context.Background(), message(1, "/post a1"))

	assert.Contains(t, api.lastText(t), "not authorized")
	assert.Empty(t, p.posted)
}

func TestPending(t *testing.T) {
	b, api, al, _ := newTestBot()
	al.list = []models.AlertView{{
		Alert: models.Alert{
			ID: "a1", Type: models.AlertPriceDrop,
			OldPrice:      decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			NewPrice:      decimal.NewNullDecimal(decimal.NewFromInt(550)),
			PercentChange: decimal.NewNullDecimal(decimal.RequireFromString("-45")),
		},
		ProductTitle: "Monitor <27\">",
	}}
	b.Handle(context.Background(), message(admin, "/pending"))

	require.NotNil(t, al.filter.Status)
	assert.Equal(t, models.StatusPending, *al.filter.Status)
	text := api.lastText(t)
	assert.Contains(t, text, "<code>a1</code>")
	assert.Contains(t, text, "-45.0%")
	assert.Contains(t, text, "Monitor &lt;27\"&gt;")
	assert.Contains(t, text, "₪1000 → ₪550")
}

func TestPendingEmpty(t *testing.T) {
	b, api, _, _ := newTestBot()
	b.Handle(context.Background(), message(admin, "/pending"))
	assert.Contains(t, api.lastText(t), "No pending alerts")
}

func TestPostMapsErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "Posted (message 77)"},
		{models.ErrNotFound, "not found"},
		{fmt.Errorf("%w: sent", scheduler.ErrAlreadyProcessed), "already sent"},
		{scheduler.ErrQuotaExceeded, "quota reached"},
		{scheduler.ErrBelowThreshold, "below the posting minimum"},
		{fmt.Errorf("%w: %w", scheduler.ErrDeliveryFailed, errors.New("Forbidden")), "stays pending"},
	}
	for _, tt := range tests {
		b, api, _, p := newTestBot()
		p.postErr = tt.err
		b.Handle(context.Background(), message(admin, "/post a1"))
		assert.Contains(t, api.lastText(t), tt.want)
	}

	b, api, _, _ := newTestBot()
	b.Handle(context.Background(), message(admin, "/post"))
	assert.Contains(t, api.lastText(t), "Usage")
}

func TestPostAllEditsProgressMessage(t *testing.T) {
	b, api, _, p := newTestBot()
	p.batch = scheduler.BatchResult{Posted: 3, Skipped: 1}
	b.Handle(context.Background(), message(admin, "/postall"))

	require.Len(t, api.sent, 2)
	edit, ok := api.sent[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 1, edit.MessageID)
	assert.Equal(t, "✅ Posted 3, skipped 1.", edit.Text)
}

func TestDismiss(t *testing.T) {
	b, api, al, _ := newTestBot()
	b.Handle(context.Background(), message(admin, "/dismiss a9"))
	assert.Equal(t, []string{"a9"}, al.dismissed)
	assert.Contains(t, api.lastText(t), "dismissed")

	al.dismiss = alerts.ErrInvalidTransition
	b.Handle(context.Background(), message(admin, "/dismiss a9"))
	assert.Contains(t, api.lastText(t), "Only pending")
}

func TestStatsAndQuota(t *testing.T) {
	b, api, _, p := newTestBot()
	b.Handle(context.Background(), message(admin, "/stats"))
	text := api.lastText(t)
	assert.Contains(t, text, "Alerts: 12 (today 3)")
	assert.Contains(t, text, "avg 23.4%")
	assert.Contains(t, text, "Posts today: 2/10")

	last := time.Date(2026, 6, 10, 9, 30, 0, 0, time.UTC)
	p.quota.LastPostAt = &last
	b.Handle(context.Background(), message(admin, "/quota"))
	text = api.lastText(t)
	assert.Contains(t, text, "@KSPmivtzei")
	assert.Contains(t, text, "Min discount: 40%")
	assert.Contains(t, text, "10/06/2026 09:30")
}

func TestSettingsCommands(t *testing.T) {
	b, api, _, p := newTestBot()
	ctx := context.Background()

	b.Handle(ctx, message(admin, "/setmin 35%"))
	b.Handle(ctx, message(admin, "/setmax 6"))
	b.Handle(ctx, message(admin, "/setchannel @other"))
	require.Len(t, p.settings, 3)
	assert.Equal(t, "35", p.settings[0].MinDiscountPercent.String())
	assert.Equal(t, 6, *p.settings[1].MaxPostsPerDay)
	assert.Equal(t, "@other", *p.settings[2].ChannelID)

	b.Handle(ctx, message(admin, "/setmax -1"))
	assert.Contains(t, api.lastText(t), "invalid posting settings")

	b.Handle(ctx, message(admin, "/setmin lots"))
	assert.Contains(t, api.lastText(t), "Invalid percent")
}

func TestHTMLFallbackToPlain(t *testing.T) {
	b, api, _, _ := newTestBot()
	api.rejectFn = func(c tgbotapi.Chattable) bool {
		m, ok := c.(tgbotapi.MessageConfig)
		return ok && m.ParseMode == tgbotapi.ModeHTML
	}
	b.Handle(context.Background(), message(admin, "/quota"))

	require.Len(t, api.sent, 2)
	assert.Empty(t, api.sent[1].(tgbotapi.MessageConfig).ParseMode)
}

func TestRunStopsWhenStreamCloses(t *testing.T) {
	b, api, _, _ := newTestBot()
	updates := make(chan tgbotapi.Update, 3)
	updates <- tgbotapi.Update{}
	updates <- tgbotapi.Update{Message: message(admin, "/help")}
	updates <- tgbotapi.Update{Message: message(admin, "/nope")}
	close(updates)

	require.NoError(t, b.Run(context.Background(), updates))
	require.Len(t, api.sent, 2)
	assert.Contains(t, api.lastText(t), "Unknown command")
}
