package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	log "github.com/sirupsen/logrus"
)

const (
	msgTryAgain     = "Something went wrong. Please try again in a minute."
	msgPromoPrompt  = "Send me your promo code."
	msgUseMenu      = "Use the menu below: redeem a promo code, browse packages or open your cards."
	msgNoPackages   = "No packages are on sale right now."
	msgPaymentsDown = "Payments are temporarily unavailable."
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	user, errUser := b.ensureUser(ctx, msg.From)
	if errUser != nil {
		log.WithError(errUser).WithField("telegram_id", msg.From.ID).Warn("bot: upsert user")
		b.reply(msg.Chat.ID, msgTryAgain, nil)
		return
	}
	chatID := msg.Chat.ID

	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, chatID, user, msg.SuccessfulPayment)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.clearSession(ctx, chatID)
			welcome := settings.DefaultBotWelcomeText
			if b.settings != nil {
				welcome = b.settings.String(settings.BotWelcomeTextKey, settings.DefaultBotWelcomeText)
			}
			b.reply(chatID, welcome, mainKeyboard())
		case "redeem":
			code := strings.TrimSpace(msg.CommandArguments())
			if code == "" {
				b.promptPromo(ctx, chatID)
				return
			}
			b.redeem(ctx, chatID, user, code)
		case "packages":
			b.clearSession(ctx, chatID)
			b.showPackages(ctx, chatID)
		case "mycards":
			b.clearSession(ctx, chatID)
			b.showMyCards(ctx, chatID, user)
		case "cancel":
			b.clearSession(ctx, chatID)
			b.reply(chatID, msgUseMenu, mainKeyboard())
		default:
			b.reply(chatID, msgUseMenu, mainKeyboard())
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch text {
	case buttonPromo:
		b.promptPromo(ctx, chatID)
		return
	case buttonPackages:
		b.clearSession(ctx, chatID)
		b.showPackages(ctx, chatID)
		return
	case buttonMyCards:
		b.clearSession(ctx, chatID)
		b.showMyCards(ctx, chatID, user)
		return
	case buttonCancel:
		b.clearSession(ctx, chatID)
		b.reply(chatID, msgUseMenu, mainKeyboard())
		return
	}

	state, errState := b.sessions.Get(ctx, chatID)
	if errState != nil {
		log.WithError(errState).Warn("bot: read session")
	}
	if state == StateAwaitingPromo && text != "" {
		b.redeem(ctx, chatID, user, text)
		return
	}
	b.reply(chatID, msgUseMenu, mainKeyboard())
}

func (b *Bot) promptPromo(ctx context.Context, chatID int64) {
	if errSet := b.sessions.Set(ctx, chatID, StateAwaitingPromo); errSet != nil {
		log.WithError(errSet).Warn("bot: store session")
	}
	b.reply(chatID, msgPromoPrompt, cancelKeyboard())
}

func (b *Bot) clearSession(ctx context.Context, chatID int64) {
	if errClear := b.sessions.Clear(ctx, chatID); errClear != nil {
		log.WithError(errClear).Warn("bot: clear session")
	}
}

// redeem always ends the promo conversation with a final answer.
func (b *Bot) redeem(ctx context.Context, chatID int64, user models.User, code string) {
	b.clearSession(ctx, chatID)
	result, errRedeem := b.promo.Redeem(ctx, code, user.ID)
	if errRedeem != nil {
		if kind := apperr.KindOf(errRedeem); kind == apperr.KindInternal || kind == apperr.KindConfiguration {
			log.WithError(errRedeem).WithField("user_id", user.ID).Error("bot: redeem failed")
		}
	}
	b.reply(chatID, redeemMessage(result, errRedeem), mainKeyboard())
}

func redeemMessage(result promo.Result, err error) string {
	if err != nil {
		switch apperr.CodeOf(err) {
		case apperr.CodeInvalidFormat:
			return "That does not look like a promo code. Codes are 6-20 letters or digits."
		case apperr.CodeNotFound:
			return "Promo code not found."
		case apperr.CodeInactive:
			return "This promo code is no longer active."
		case apperr.CodeExpired:
			return "This promo code has expired."
		case apperr.CodeLimitReached:
			return "This promo code has already been used up."
		case apperr.CodeNoCards:
			return "This promo code has no cards attached yet. Please contact support."
		default:
			return msgTryAgain
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Promo code %s activated: %d %s unlocked.", result.Code, result.CardsGranted, plural(result.CardsGranted, "card", "cards"))
	if result.ExpiresAt != nil {
		fmt.Fprintf(&sb, " Access until %s.", result.ExpiresAt.UTC().Format("02.01.2006"))
	}
	return sb.String()
}

func (b *Bot) showPackages(ctx context.Context, chatID int64) {
	pkgs, errList := b.catalog.ListPurchasable(ctx)
	if errList != nil {
		log.WithError(errList).Warn("bot: list packages")
		b.reply(chatID, msgTryAgain, nil)
		return
	}
	if len(pkgs) == 0 {
		b.reply(chatID, msgNoPackages, mainKeyboard())
		return
	}
	var sb strings.Builder
	sb.WriteString("Packages on sale:\n")
	for _, pkg := range pkgs {
		fmt.Fprintf(&sb, "\n• %s: %s %s, %d %s", pkg.Name, payment.FormatAmount(pkg.Price), pkg.Currency, len(pkg.Cards), plural(len(pkg.Cards), "card", "cards"))
		if pkg.AccessDays > 0 {
			fmt.Fprintf(&sb, ", access for %d days", pkg.AccessDays)
		}
		if desc := strings.TrimSpace(pkg.Description); desc != "" {
			sb.WriteString("\n  " + desc)
		}
	}
	b.reply(chatID, sb.String(), packagesKeyboard(pkgs))
}

func (b *Bot) showMyCards(ctx context.Context, chatID int64, user models.User) {
	count, errCount := b.entitlement.CountAccessible(ctx, user.ID)
	if errCount != nil {
		log.WithError(errCount).Warn("bot: count cards")
		b.reply(chatID, msgTryAgain, nil)
		return
	}
	if count == 0 {
		b.reply(chatID, "You have no cards yet. Redeem a promo code or buy a package.", mainKeyboard())
		return
	}
	text := fmt.Sprintf("You have %d %s unlocked.", count, plural(int(count), "card", "cards"))
	if b.cfg.WebAppURL == "" {
		b.reply(chatID, text, mainKeyboard())
		return
	}
	b.reply(chatID, text, linkKeyboard("Open my cards", b.cfg.WebAppURL))
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	if _, errAnswer := b.client.AnswerCallbackQuery(tgbotapi.NewCallback(q.ID, "")); errAnswer != nil {
		log.WithError(errAnswer).Debug("bot: answer callback")
	}
	chatID := int64(q.From.ID)
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	user, errUser := b.ensureUser(ctx, q.From)
	if errUser != nil {
		log.WithError(errUser).Warn("bot: upsert user")
		b.reply(chatID, msgTryAgain, nil)
		return
	}

	raw, ok := strings.CutPrefix(q.Data, buyPrefix)
	if !ok {
		return
	}
	packageID, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || packageID == 0 {
		b.reply(chatID, msgNoPackages, mainKeyboard())
		return
	}
	b.handleBuy(ctx, chatID, user, packageID)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
