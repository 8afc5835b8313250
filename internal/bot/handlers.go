package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ksp-deals/internal/alerts"
	"ksp-deals/internal/models"
	"ksp-deals/internal/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const pendingListLimit = 10

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

const helpText = `🤖 <b>KSP Deals admin</b>

<b>/pending</b> - latest pending alerts
<b>/stats</b> - alert and posting stats
<b>/post &lt;id&gt;</b> - post one alert to the channel
<b>/postall</b> - post every eligible pending deal
<b>/dismiss &lt;id&gt;</b> - dismiss an alert
<b>/quota</b> - show the posting quota
<b>/setmin &lt;percent&gt;</b> - minimum discount to post
<b>/setmax &lt;n&gt;</b> - maximum posts per day
<b>/setchannel &lt;@channel|chat id&gt;</b> - posting target
<b>/help</b> - this message`

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText, true)
}

func percent(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	s := d.Decimal.StringFixed(1)
	if d.Decimal.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

func (b *Bot) handlePending(ctx context.Context, chatID int64) {
	status := models.StatusPending
	list, err := b.alerts.List(ctx, models.AlertFilter{Status: &status, Limit: pendingListLimit})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Could not list alerts: %v", err), false)
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "📭 No pending alerts.", false)
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Pending alerts</b>\n\n")
	for _, a := range list {
		title := a.ProductTitle
		if title == "" {
			title = a.ProductSKU
		}
		fmt.Fprintf(&sb, "<code>%s</code>\n%s %s\n", a.ID, a.Type, percent(a.PercentChange))
		fmt.Fprintf(&sb, "📦 %s\n", escapeHTML(title))
		if a.OldPrice.Valid && a.NewPrice.Valid {
			fmt.Fprintf(&sb, "💰 ₪%s → ₪%s\n", a.OldPrice.Decimal.String(), a.NewPrice.Decimal.String())
		} else if a.NewPrice.Valid {
			fmt.Fprintf(&sb, "💰 ₪%s\n", a.NewPrice.Decimal.String())
		}
		sb.WriteString("\n")
	}
	b.reply(chatID, sb.String(), true)
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	st, err := b.alerts.Stats(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Could not load stats: %v", err), false)
		return
	}
	q, err := b.poster.Quota(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Could not load quota: %v", err), false)
		return
	}

	text := fmt.Sprintf("📊 <b>Stats</b>\n\n"+
		"Alerts: %d (today %d)\n"+
		"Pending: %d\n"+
		"Sent: %d\n"+
		"Price drops: %d, avg %s%%\n"+
		"Posts today: %d/%d",
		st.Total, st.TodayCount, st.Pending, st.Sent, st.TotalDrops, st.AvgDropPercent.StringFixed(1),
		q.PostsToday, q.MaxPostsPerDay)
	b.reply(chatID, text, true)
}

func postError(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "❌ Alert not found."
	case errors.Is(err, scheduler.ErrAlreadyProcessed):
		return "⚠️ Alert was already sent or dismissed."
	case errors.Is(err, scheduler.ErrQuotaExceeded):
		return "⏳ Daily post quota reached. Try again tomorrow."
	case errors.Is(err, scheduler.ErrBelowThreshold):
		return "📉 Discount is below the posting minimum."
	case errors.Is(err, scheduler.ErrDeliveryFailed):
		return fmt.Sprintf("❌ %v. The alert stays pending.", err)
	}
	return fmt.Sprintf("❌ Error: %v", err)
}

func (b *Bot) handlePost(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "❌ Usage: /post <alert id>", false)
		return
	}
	res, err := b.poster.PostOne(ctx, args[0])
	if err != nil {
		slog.Warn("admin post failed", "alert", args[0], "error", err)
		b.reply(chatID, postError(err), false)
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Posted (message %s).", res.Receipt), false)
}

func (b *Bot) handlePostAll(ctx context.Context, chatID int64) {
	wait, err := b.api.Send(tgbotapi.NewMessage(chatID, "⏳ Posting eligible deals..."))
	waitID := 0
	if err == nil {
		waitID = wait.MessageID
	}

	var text string
	res, err := b.poster.PostEligiblePending(ctx)
	if err != nil {
		text = fmt.Sprintf("❌ Batch post failed: %v", err)
	} else {
		text = fmt.Sprintf("✅ Posted %d, skipped %d.", res.Posted, res.Skipped)
	}

	if waitID != 0 {
		if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, waitID, text)); err == nil {
			return
		}
	}
	b.reply(chatID, text, false)
}

func (b *Bot) handleDismiss(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "❌ Usage: /dismiss <alert id>", false)
		return
	}
	_, err := b.alerts.Dismiss(ctx, args[0])
	switch {
	case errors.Is(err, models.ErrNotFound):
		b.reply(chatID, "❌ Alert not found.", false)
	case errors.Is(err, alerts.ErrInvalidTransition):
		b.reply(chatID, "⚠️ Only pending alerts can be dismissed.", false)
	case err != nil:
		b.reply(chatID, fmt.Sprintf("❌ Error: %v", err), false)
	default:
		b.reply(chatID, "🗑 Alert dismissed.", false)
	}
}

func quotaText(q models.PostingQuota) string {
	last := "never"
	if q.LastPostAt != nil {
		last = q.LastPostAt.Format("02/01/2006 15:04")
	}
	return fmt.Sprintf("📢 <b>Posting quota</b>\n\n"+
		"Channel: %s\n"+
		"Min discount: %s%%\n"+
		"Posts today: %d/%d\n"+
		"Last post: %s",
		escapeHTML(q.ChannelID), q.MinDiscountPercent.String(), q.PostsToday, q.MaxPostsPerDay, last)
}

func (b *Bot) handleQuota(ctx context.Context, chatID int64) {
	q, err := b.poster.Quota(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Could not load quota: %v", err), false)
		return
	}
	b.reply(chatID, quotaText(q), true)
}

func (b *Bot) updateSettings(ctx context.Context, chatID int64, st scheduler.Settings) {
	q, err := b.poster.UpdateSettings(ctx, st)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ %v", err), false)
		return
	}
	b.reply(chatID, "✅ Settings saved.\n\n"+quotaText(q), true)
}

func (b *Bot) handleSetMin(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "❌ Usage: /setmin <percent>", false)
		return
	}
	v, err := decimal.NewFromString(strings.TrimSuffix(args[0], "%"))
	if err != nil {
		b.reply(chatID, "❌ Invalid percent. Use a value between 0 and 100.", false)
		return
	}
	b.updateSettings(ctx, chatID, scheduler.Settings{MinDiscountPercent: &v})
}

func (b *Bot) handleSetMax(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "❌ Usage: /setmax <posts per day>", false)
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		b.reply(chatID, "❌ Invalid number.", false)
		return
	}
	b.updateSettings(ctx, chatID, scheduler.Settings{MaxPostsPerDay: &n})
}

func (b *Bot) handleSetChannel(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "❌ Usage: /setchannel <@channel|chat id>", false)
		return
	}
	b.updateSettings(ctx, chatID, scheduler.Settings{ChannelID: &args[0]})
}
