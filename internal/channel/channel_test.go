package channel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ksp-deals/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent    []tgbotapi.Chattable
	failFor func(c tgbotapi.Chattable) error
	block   chan struct{}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.sent = append(f.sent, c)
	if f.failFor != nil {
		if err := f.failFor(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `Galaxy S24 \(256GB\) \- 5\.5" \_new\_\!`, EscapeMarkdownV2(`Galaxy S24 (256GB) - 5.5" _new_!`))
	assert.Equal(t, `a\\b \[x\]`, EscapeMarkdownV2(`a\b [x]`))
}

func TestDeliverPhotoToChannel(t *testing.T) {
	api := &fakeSender{}
	tg := NewTelegram(api)

	receipt, err := tg.Deliver(context.Background(), "@KSPdeals", Message{
		Text: "hello", ImageURL: "https://img/1.jpg", LinkLabel: "buy", LinkURL: "https://ksp.co.il/web/item/1",
	})
	require.NoError(t, err)
	assert.Equal(t, "101", receipt)

	require.Len(t, api.sent, 1)
	photo, ok := api.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "@KSPdeals", photo.ChannelUsername)
	assert.Equal(t, "hello", photo.Caption)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, photo.ParseMode)
	assert.Equal(t, tgbotapi.FileURL("https://img/1.jpg"), photo.File)

	kb, ok := photo.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://ksp.co.il/web/item/1", *kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, "buy", kb.InlineKeyboard[0][0].Text)
}

func TestDeliverTextToChatID(t *testing.T) {
	api := &fakeSender{}
	receipt, err := NewTelegram(api).Deliver(context.Background(), "-1001234", Message{Text: "no image"})
	require.NoError(t, err)
	assert.Equal(t, "101", receipt)

	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-1001234), msg.ChatID)
	assert.Nil(t, msg.ReplyMarkup)
}

func TestDeliverFallsBackToTextWhenPhotoFails(t *testing.T) {
	api := &fakeSender{failFor: func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.PhotoConfig); ok {
			return errors.New("Bad Request: wrong file identifier")
		}
		return nil
	}}
	receipt, err := NewTelegram(api).Deliver(context.Background(), "deals", Message{Text: "x", ImageURL: "bad"})
	require.NoError(t, err)
	assert.Equal(t, "102", receipt)
	require.Len(t, api.sent, 2)
	msg := api.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, "@deals", msg.ChannelUsername)
}

func TestDeliverErrors(t *testing.T) {
	_, err := NewTelegram(&fakeSender{}).Deliver(context.Background(), " ", Message{Text: "x"})
	assert.ErrorIs(t, err, ErrNoTarget)

	api := &fakeSender{failFor: func(tgbotapi.Chattable) error { return errors.New("Forbidden: bot is not a member") }}
	_, err = NewTelegram(api).Deliver(context.Background(), "@deals", Message{Text: "x"})
	assert.EqualError(t, err, "Forbidden: bot is not a member")
}

func TestDeliverHonorsTimeout(t *testing.T) {
	api := &fakeSender{block: make(chan struct{})}
	defer close(api.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewTelegram(api).Deliver(ctx, "@deals", Message{Text: "x", ImageURL: "https://img"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatPriceDrop(t *testing.T) {
	msg := FormatDeal(Deal{
		Type:       models.AlertPriceDrop,
		Title:      "Sony WH-1000XM5",
		OldPrice:   decimal.NewNullDecimal(decimal.NewFromInt(1500)),
		NewPrice:   decimal.NewNullDecimal(decimal.RequireFromString("849.9")),
		PercentOff: decimal.RequireFromString("43.3"),
		ImageURL:   "https://img/sony.jpg",
		Link:       "https://ksp.co.il/web/item/1?appkey=14887",
	})

	assert.True(t, strings.HasPrefix(msg.Text, "🔥 *ירידת מחיר\\!* 🔥"))
	assert.Contains(t, msg.Text, `Sony WH\-1000XM5`)
	assert.Contains(t, msg.Text, `~₪1500~ → *₪849\.90*`)
	assert.Contains(t, msg.Text, `חיסכון של 43% \(₪650\)\!`)
	assert.Equal(t, BuyButtonLabel, msg.LinkLabel)
	assert.Equal(t, "https://img/sony.jpg", msg.ImageURL)
}

func TestFormatBackInStock(t *testing.T) {
	msg := FormatDeal(Deal{
		Type:     models.AlertBackInStock,
		Title:    "PS5",
		NewPrice: decimal.NewNullDecimal(decimal.NewFromInt(2190)),
	})
	assert.Contains(t, msg.Text, "חזר למלאי")
	assert.Contains(t, msg.Text, "*₪2190*")
	assert.NotContains(t, msg.Text, "~")
}
