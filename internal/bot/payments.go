package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	log "github.com/sirupsen/logrus"
)

// handleBuy starts a purchase with the default provider.
func (b *Bot) handleBuy(ctx context.Context, chatID int64, user models.User, packageID uint64) {
	provider := b.purchases.DefaultProvider()
	if provider == payment.ProviderTelegram && b.cfg.PaymentProviderToken == "" {
		b.reply(chatID, msgPaymentsDown, mainKeyboard())
		return
	}

	initiated, errInit := b.purchases.Initiate(ctx, user.ID, packageID, purchase.InitiateOptions{Provider: provider})
	if errInit != nil {
		b.reply(chatID, purchaseErrorMessage(errInit), mainKeyboard())
		return
	}

	if provider == payment.ProviderTelegram {
		b.sendInvoice(chatID, initiated)
		return
	}
	text := fmt.Sprintf("Package «%s»: %s %s.\nTap the button below to pay. Your cards unlock as soon as the payment is confirmed.",
		initiated.Package.Name, payment.FormatAmount(initiated.Purchase.Amount), initiated.Purchase.Currency)
	b.reply(chatID, text, linkKeyboard("Pay", initiated.PaymentURL))
}

func (b *Bot) sendInvoice(chatID int64, initiated purchase.Initiated) {
	pkg := initiated.Package
	description := strings.TrimSpace(pkg.Description)
	if description == "" {
		description = "Backgammon training cards"
	}
	prices := []tgbotapi.LabeledPrice{{Label: pkg.Name, Amount: int(initiated.Purchase.Amount)}}
	invoice := tgbotapi.NewInvoice(
		chatID,
		pkg.Name,
		description,
		initiated.PaymentID,
		b.cfg.PaymentProviderToken,
		"package-"+strconv.FormatUint(pkg.ID, 10),
		initiated.Purchase.Currency,
		&prices,
	)
	if !b.send(invoice) {
		b.reply(chatID, msgTryAgain, mainKeyboard())
	}
}

func purchaseErrorMessage(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeAlreadyOwned:
		return "You already own this package."
	case apperr.CodePackageNotFound, apperr.CodePackageInactive:
		return "This package is no longer on sale."
	case apperr.CodeTransient:
		return msgTryAgain
	}
	log.WithError(err).Error("bot: initiate purchase")
	return msgPaymentsDown
}

// handlePreCheckout approves an invoice only when its purchase is still pending for the same amount.
// Any failure, including a timeout, declines the payment.
func (b *Bot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	timeout := b.cfg.PreCheckoutTimeout
	if timeout <= 0 {
		timeout = defaultPreCheckoutTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}
	if errCheck := b.purchases.CheckPending(checkCtx, q.InvoicePayload, int64(q.TotalAmount), q.Currency); errCheck != nil {
		answer.OK = false
		answer.ErrorMessage = preCheckoutErrorMessage(errCheck)
		log.WithError(errCheck).WithField("payment_id", q.InvoicePayload).Warn("bot: pre-checkout declined")
	}
	if _, errAnswer := b.client.AnswerPreCheckoutQuery(answer); errAnswer != nil {
		log.WithError(errAnswer).Warn("bot: answer pre-checkout")
	}
}

func preCheckoutErrorMessage(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodePurchaseNotFound:
		return "This invoice is unknown. Please start the purchase again."
	case apperr.CodeConflict:
		return "This invoice is no longer valid. Please start the purchase again."
	case apperr.CodeAmountMismatch:
		return "The invoice amount changed. Please start the purchase again."
	default:
		return "We could not verify the invoice. Please try again."
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, chatID int64, user models.User, sp *tgbotapi.SuccessfulPayment) {
	entry := log.WithFields(log.Fields{"payment_id": sp.InvoicePayload, "user_id": user.ID})
	result, errConfirm := b.purchases.Confirm(ctx, payment.Confirmation{
		PaymentID: sp.InvoicePayload,
		Amount:    int64(sp.TotalAmount),
		Currency:  sp.Currency,
		Status:    payment.StatusSucceeded,
		Metadata: map[string]string{
			"telegram_payment_charge_id": sp.TelegramPaymentChargeID,
			"provider_payment_charge_id": sp.ProviderPaymentChargeID,
		},
	})
	if errConfirm != nil {
		entry.WithError(errConfirm).Error("bot: confirm telegram payment")
		b.reply(chatID, "We received your payment but could not unlock the cards yet. Please contact support and mention this chat.", mainKeyboard())
		return
	}
	if result.AlreadyProcessed {
		b.reply(chatID, "This payment was already processed. Your cards are unlocked.", mainKeyboard())
		return
	}

	text := fmt.Sprintf("Payment received. %d %s unlocked.", result.CardsGranted, plural(result.CardsGranted, "card", "cards"))
	if b.reply(chatID, text, b.cardsMarkup()) {
		b.markCompleted(ctx, result.Purchase.ID)
	}
}

// NotifyPurchase tells the buyer that a gateway-confirmed purchase succeeded
// and records the purchase as completed once the message is delivered.
func (b *Bot) NotifyPurchase(ctx context.Context, p models.Purchase) {
	row, errGet := b.purchases.Get(ctx, p.ID)
	if errGet != nil {
		log.WithError(errGet).WithField("purchase_id", p.ID).Warn("bot: load purchase for notification")
		return
	}
	var user models.User
	if errFind := b.db.WithContext(ctx).First(&user, row.UserID).Error; errFind != nil {
		log.WithError(errFind).WithField("purchase_id", p.ID).Warn("bot: load buyer for notification")
		return
	}

	name := "your package"
	if row.Package != nil {
		name = "«" + row.Package.Name + "»"
	}
	text := fmt.Sprintf("Payment for %s received. Your cards are unlocked.", name)
	if b.reply(user.TelegramID, text, b.cardsMarkup()) {
		b.markCompleted(ctx, row.ID)
	}
}

func (b *Bot) cardsMarkup() any {
	if b.cfg.WebAppURL == "" {
		return mainKeyboard()
	}
	return linkKeyboard("Open my cards", b.cfg.WebAppURL)
}

func (b *Bot) markCompleted(ctx context.Context, purchaseID uint64) {
	if _, errMark := b.purchases.MarkCompleted(ctx, purchaseID); errMark != nil {
		log.WithError(errMark).WithField("purchase_id", purchaseID).Warn("bot: mark purchase completed")
	}
}
