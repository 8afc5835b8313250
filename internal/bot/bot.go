// Package bot serves the admin commands of the deals channel over Telegram.
package bot

import (
	"context"
	"log/slog"
	"strings"

	"ksp-deals/internal/channel"
	"ksp-deals/internal/models"
	"ksp-deals/internal/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Alerts is the alert query surface the bot uses.
type Alerts interface {
	List(ctx context.Context, f models.AlertFilter) ([]models.AlertView, error)
	Stats(ctx context.Context) (models.AlertStats, error)
	Dismiss(ctx context.Context, id string) (*models.AlertView, error)
}

// Poster is the posting surface the bot uses.
type Poster interface {
	PostOne(ctx context.Context, alertID string) (*scheduler.Result, error)
	PostEligiblePending(ctx context.Context) (scheduler.BatchResult, error)
	Quota(ctx context.Context) (models.PostingQuota, error)
	UpdateSettings(ctx context.Context, st scheduler.Settings) (models.PostingQuota, error)
}

// Bot answers admin commands.
type Bot struct {
	api         channel.Sender
	alerts      Alerts
	poster      Poster
	adminChatID int64 // 0 allows every chat
}

// New creates a command handler.
func New(api channel.Sender, alerts Alerts, poster Poster, adminChatID int64) *Bot {
	return &Bot{api: api, alerts: alerts, poster: poster, adminChatID: adminChatID}
}

// Updates opens the long-polling update stream.
func Updates(api *tgbotapi.BotAPI) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return api.GetUpdatesChan(u)
}

// Run handles updates until ctx is done or the stream closes.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	slog.Info("admin bot listening", "admin_chat", b.adminChatID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.Handle(ctx, update.Message)
		}
	}
}

func command(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(parts[0])
	if idx := strings.Index(cmd, "@"); idx > 0 {
		cmd = cmd[:idx]
	}
	return cmd, parts[1:]
}

// Handle dispatches one message.
func (b *Bot) Handle(ctx context.Context, msg *tgbotapi.Message) {
	cmd, args := command(msg.Text)
	if cmd == "" {
		return
	}
	chatID := msg.Chat.ID

	public := cmd == "/start" || cmd == "/help"
	if !public && b.adminChatID != 0 && chatID != b.adminChatID {
		slog.Warn("unauthorized command", "chat", chatID, "command", cmd)
		b.reply(chatID, "⛔ You are not authorized to use this bot.", false)
		return
	}

	switch cmd {
	case "/start", "/help":
		b.handleHelp(chatID)
	case "/pending":
		b.handlePending(ctx, chatID)
	case "/stats":
		b.handleStats(ctx, chatID)
	case "/post":
		b.handlePost(ctx, chatID, args)
	case "/postall":
		b.handlePostAll(ctx, chatID)
	case "/dismiss":
		b.handleDismiss(ctx, chatID, args)
	case "/quota":
		b.handleQuota(ctx, chatID)
	case "/setmin":
		b.handleSetMin(ctx, chatID, args)
	case "/setmax":
		b.handleSetMax(ctx, chatID, args)
	case "/setchannel":
		b.handleSetChannel(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help to see the available commands.", false)
	}
}

// reply sends text, retrying without formatting when Telegram rejects the HTML.
func (b *Bot) reply(chatID int64, text string, html bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	if html {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	if _, err := b.api.Send(msg); err != nil {
		if !html {
			slog.Error("send reply", "chat", chatID, "error", err)
			return
		}
		slog.Warn("html reply rejected, sending plain text", "chat", chatID, "error", err)
		msg.ParseMode = ""
		if _, err := b.api.Send(msg); err != nil {
			slog.Error("send reply", "chat", chatID, "error", err)
		}
	}
}
