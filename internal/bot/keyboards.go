package bot

import (
	"fmt"
	"strconv"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Main keyboard labels.
const (
	buttonPromo    = "🎟 Promo code"
	buttonPackages = "📦 Packages"
	buttonMyCards  = "🃏 My cards"
	buttonCancel   = "❌ Cancel"
)

// buyPrefix prefixes the callback data of package buy buttons.
const buyPrefix = "buy:"

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonPromo),
			tgbotapi.NewKeyboardButton(buttonPackages),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonMyCards),
		),
	)
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonCancel),
		),
	)
}

func packagesKeyboard(pkgs []models.Package) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(pkgs))
	for _, pkg := range pkgs {
		label := fmt.Sprintf("Buy %s · %s %s", pkg.Name, payment.FormatAmount(pkg.Price), pkg.Currency)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, buyPrefix+strconv.FormatUint(pkg.ID, 10)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func linkKeyboard(text, url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(text, url),
		),
	)
}
