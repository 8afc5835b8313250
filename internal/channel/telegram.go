package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the adapter uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers messages to a chat or channel through the Bot API.
type Telegram struct {
	api Sender
}

// NewTelegram wraps a bot API client.
func NewTelegram(api Sender) *Telegram {
	return &Telegram{api: api}
}

// Init connects to Telegram with token.
func Init(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("telegram token is invalid or revoked; get a new one from @BotFather")
		}
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}

	bot.Debug = false
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	return bot, nil
}

// Deliver posts msg to target. target is a numeric chat id or a channel
// username. A photo post that Telegram rejects is retried once as text.
func (t *Telegram) Deliver(ctx context.Context, target string, msg Message) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ErrNoTarget
	}

	if msg.ImageURL != "" {
		sent, err := t.send(ctx, photoConfig(target, msg))
		if err == nil {
			return strconv.Itoa(sent.MessageID), nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		slog.Warn("photo post failed, retrying as text", "target", target, "error", err)
	}

	sent, err := t.send(ctx, messageConfig(target, msg))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}

type sendResult struct {
	msg tgbotapi.Message
	err error
}

// send runs the blocking Bot API call and gives up when ctx is done.
func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	done := make(chan sendResult, 1)
	go func() {
		m, err := t.api.Send(c)
		done <- sendResult{m, err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return tgbotapi.Message{}, fmt.Errorf("telegram send: %w", ctx.Err())
	}
}

func keyboard(msg Message) *tgbotapi.InlineKeyboardMarkup {
	if msg.LinkURL == "" {
		return nil
	}
	label := msg.LinkLabel
	if label == "" {
		label = msg.LinkURL
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(label, msg.LinkURL)),
	)
	return &kb
}

func photoConfig(target string, msg Message) tgbotapi.PhotoConfig {
	file := tgbotapi.FileURL(msg.ImageURL)
	var cfg tgbotapi.PhotoConfig
	if chatID, ok := parseChatID(target); ok {
		cfg = tgbotapi.NewPhoto(chatID, file)
	} else {
		cfg = tgbotapi.NewPhotoToChannel(channelUsername(target), file)
	}
	cfg.Caption = msg.Text
	cfg.ParseMode = tgbotapi.ModeMarkdownV2
	if kb := keyboard(msg); kb != nil {
		cfg.ReplyMarkup = *kb
	}
	return cfg
}

func messageConfig(target string, msg Message) tgbotapi.MessageConfig {
	var cfg tgbotapi.MessageConfig
	if chatID, ok := parseChatID(target); ok {
		cfg = tgbotapi.NewMessage(chatID, msg.Text)
	} else {
		cfg = tgbotapi.NewMessageToChannel(channelUsername(target), msg.Text)
	}
	cfg.ParseMode = tgbotapi.ModeMarkdownV2
	if kb := keyboard(msg); kb != nil {
		cfg.ReplyMarkup = *kb
	}
	return cfg
}

func parseChatID(target string) (int64, bool) {
	id, err := strconv.ParseInt(target, 10, 64)
	return id, err == nil
}

func channelUsername(target string) string {
	if strings.HasPrefix(target, "@") {
		return target
	}
	return "@" + target
}
