package channel

import (
	"fmt"
	"strings"

	"ksp-deals/internal/models"

	"github.com/shopspring/decimal"
)

// BuyButtonLabel is the inline button text under every deal post.
const BuyButtonLabel = "🛒 לרכישה ב-KSP"

var markdownV2Special = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
	"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// EscapeMarkdownV2 escapes every character Telegram reserves in MarkdownV2.
func EscapeMarkdownV2(text string) string {
	return markdownV2Special.Replace(text)
}

// Deal carries what a post shows about one alert.
type Deal struct {
	Type       models.AlertType
	Title      string
	OldPrice   decimal.NullDecimal
	NewPrice   decimal.NullDecimal
	PercentOff decimal.Decimal // magnitude
	ImageURL   string
	Link       string
}

func shekel(d decimal.Decimal) string {
	return EscapeMarkdownV2("₪" + d.Round(0).String())
}

func shekelPrecise(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return shekel(d)
	}
	return EscapeMarkdownV2("₪" + d.StringFixed(2))
}

// FormatDeal renders the Hebrew MarkdownV2 post for a deal.
func FormatDeal(d Deal) Message {
	var b strings.Builder
	title := EscapeMarkdownV2(d.Title)

	switch d.Type {
	case models.AlertBackInStock:
		b.WriteString("🎉 *חזר למלאי\\!* 🎉\n\n")
		fmt.Fprintf(&b, "📦 %s\n\n", title)
		if d.NewPrice.Valid {
			fmt.Fprintf(&b, "💰 *%s*\n\n", shekelPrecise(d.NewPrice.Decimal))
		}
		b.WriteString("⏰ *מהרו לפני שייגמר\\!*")
	case models.AlertPriceIncrease:
		fmt.Fprintf(&b, "📈 *עדכון מחיר*\n\n📦 %s\n\n", title)
		if d.OldPrice.Valid && d.NewPrice.Valid {
			fmt.Fprintf(&b, "%s → *%s*", shekelPrecise(d.OldPrice.Decimal), shekelPrecise(d.NewPrice.Decimal))
		}
	default:
		b.WriteString("🔥 *ירידת מחיר\\!* 🔥\n\n")
		fmt.Fprintf(&b, "📦 %s\n\n", title)
		if d.OldPrice.Valid && d.NewPrice.Valid {
			savings := d.OldPrice.Decimal.Sub(d.NewPrice.Decimal)
			fmt.Fprintf(&b, "~%s~ → *%s*\n", shekelPrecise(d.OldPrice.Decimal), shekelPrecise(d.NewPrice.Decimal))
			fmt.Fprintf(&b, "💥 חיסכון של %s%% \\(%s\\)\\!\n\n",
				EscapeMarkdownV2(d.PercentOff.Round(0).String()), shekel(savings))
		}
		b.WriteString("⏰ *מלאי מוגבל\\!*")
	}

	return Message{
		Text:      b.String(),
		ImageURL:  d.ImageURL,
		LinkLabel: BuyButtonLabel,
		LinkURL:   d.Link,
	}
}
