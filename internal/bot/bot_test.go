package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/retry"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"github.com/glebarez/sqlite"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"gorm.io/gorm"
)

type fakeClient struct {
	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	prechecks []tgbotapi.PreCheckoutConfig
	callbacks []tgbotapi.CallbackConfig
	failSend  bool
}

func (c *fakeClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	c.sent = append(c.sent, msg)
	return tgbotapi.Message{}, nil
}

func (c *fakeClient) AnswerCallbackQuery(cfg tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cfg)
	return tgbotapi.APIResponse{Ok: true}, nil
}

func (c *fakeClient) AnswerPreCheckoutQuery(cfg tgbotapi.PreCheckoutConfig) (tgbotapi.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prechecks = append(c.prechecks, cfg)
	return tgbotapi.APIResponse{Ok: true}, nil
}

func (c *fakeClient) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if msg, ok := c.sent[i].(tgbotapi.MessageConfig); ok {
			return msg
		}
	}
	t.Fatalf("expected a message to be sent")
	return tgbotapi.MessageConfig{}
}

func (c *fakeClient) lastInvoice(t *testing.T) tgbotapi.InvoiceConfig {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if invoice, ok := c.sent[i].(tgbotapi.InvoiceConfig); ok {
			return invoice
		}
	}
	t.Fatalf("expected an invoice to be sent")
	return tgbotapi.InvoiceConfig{}
}

type redirectGateway struct {
	next int
}

func (g *redirectGateway) Name() string { return payment.ProviderYooKassa }

func (g *redirectGateway) CreatePayment(context.Context, payment.PaymentRequest) (payment.PaymentHandle, error) {
	g.next++
	id := fmt.Sprintf("pay-%d", g.next)
	return payment.PaymentHandle{PaymentID: id, Status: payment.StatusPending, ConfirmationURL: "https://pay.example/" + id}, nil
}

func (g *redirectGateway) GetPayment(context.Context, string) (payment.PaymentStatus, error) {
	return payment.PaymentStatus{}, payment.ErrLookupUnsupported
}

type testEnv struct {
	conn      *gorm.DB
	bot       *Bot
	client    *fakeClient
	purchases *purchase.Service
}

func setupBotEnv(t *testing.T, cfg config.TelegramConfig, provider string, gateways ...payment.Gateway) testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:bot_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	store := settings.NewStore(conn)
	if errRefresh := store.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh settings: %v", errRefresh)
	}
	policy := retry.Policy{Attempts: 1}
	purchases := purchase.NewService(conn, policy, store, gateways, purchase.Options{DefaultProvider: provider})

	client := &fakeClient{}
	b := NewWithClient(client, cfg, Deps{
		DB:          conn,
		Settings:    store,
		Catalog:     catalog.NewService(conn),
		Entitlement: entitlement.NewService(conn, policy, store),
		Promo:       promo.NewService(conn, policy),
		Purchases:   purchases,
	})
	return testEnv{conn: conn, bot: b, client: client, purchases: purchases}
}

func createPackage(t *testing.T, conn *gorm.DB, name string, price int64, cardCount int) models.Package {
	t.Helper()
	pkg := models.Package{Name: name, Price: price, Currency: "RUB", Active: true}
	if errPkg := conn.Create(&pkg).Error; errPkg != nil {
		t.Fatalf("create package: %v", errPkg)
	}
	for i := 0; i < cardCount; i++ {
		card := models.Card{Title: fmt.Sprintf("%s card %d", name, i+1), Active: true}
		if errCard := conn.Create(&card).Error; errCard != nil {
			t.Fatalf("create card: %v", errCard)
		}
		if errAssoc := conn.Model(&pkg).Association("Cards").Append(&card); errAssoc != nil {
			t.Fatalf("attach card: %v", errAssoc)
		}
	}
	return pkg
}

func textUpdate(telegramID int, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: telegramID, FirstName: "Ann", UserName: "ann"},
		Chat: &tgbotapi.Chat{ID: int64(telegramID), Type: "private"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		command, _, _ := strings.Cut(text, " ")
		msg.Entities = &[]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return tgbotapi.Update{Message: msg}
}

func buyUpdate(telegramID int, packageID uint64) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-" + strconv.FormatUint(packageID, 10),
		From: &tgbotapi.User{ID: telegramID, FirstName: "Ann"},
		Data: buyPrefix + strconv.FormatUint(packageID, 10),
	}}
}

func findUser(t *testing.T, conn *gorm.DB, telegramID int64) models.User {
	t.Helper()
	var user models.User
	if errFind := conn.Where("telegram_id = ?", telegramID).First(&user).Error; errFind != nil {
		t.Fatalf("load user %d: %v", telegramID, errFind)
	}
	return user
}

func TestStartSendsWelcome(t *testing.T) {
	env := setupBotEnv(t, config.TelegramConfig{}, payment.ProviderYooKassa)
	env.bot.HandleUpdate(context.Background(), textUpdate(9001, "/start"))

	msg := env.client.lastMessage(t)
	if msg.Text != settings.DefaultBotWelcomeText {
		t.Fatalf("expected welcome text, got %q", msg.Text)
	}
	if msg.ChatID != 9001 {
		t.Fatalf("expected chat 9001, got %d", msg.ChatID)
	}
	if user := findUser(t, env.conn, 9001); user.Username != "ann" {
		t.Fatalf("expected user to be stored, got %+v", user)
	}
}

func TestPromoConversation(t *testing.T) {
	env := setupBotEnv(t, config.TelegramConfig{}, payment.ProviderYooKassa)
	ctx := context.Background()

	cards := []models.Card{{Title: "Opening 31", Active: true}, {Title: "Opening 42", Active: true}}
	if errCards := env.conn.Create(&cards).Error; errCards != nil {
		t.Fatalf("create cards: %v", errCards)
	}
	code := models.PromoCode{Code: "SUMMER24", MaxUses: 3, Active: true}
	if errCode := env.conn.Create(&code).Error; errCode != nil {
		t.Fatalf("create promo: %v", errCode)
	}
	if errAssoc := env.conn.Model(&code).Association("Cards").Append(&cards); errAssoc != nil {
		t.Fatalf("attach cards: %v", errAssoc)
	}

	env.bot.HandleUpdate(ctx, textUpdate(9101, buttonPromo))
	if msg := env.client.lastMessage(t); msg.Text != msgPromoPrompt {
		t.Fatalf("expected promo prompt, got %q", msg.Text)
	}

	env.bot.HandleUpdate(ctx, textUpdate(9101, "summer24"))
	if msg := env.client.lastMessage(t); !strings.Contains(msg.Text, "2 cards unlocked") {
		t.Fatalf("expected two cards unlocked, got %q", msg.Text)
	}
	var count int64
	user := findUser(t, env.conn, 9101)
	if errCount := env.conn.Model(&models.CardAccess{}).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count access: %v", errCount)
	}
	if count != 2 {
		t.Fatalf("expected 2 access rows, got %d", count)
	}

	env.bot.HandleUpdate(ctx, textUpdate(9101, "SUMMER24"))
	if msg := env.client.lastMessage(t); msg.Text != msgUseMenu {
		t.Fatalf("expected the session to be cleared after redeeming, got %q", msg.Text)
	}

	env.bot.HandleUpdate(ctx, textUpdate(9101, "/redeem NOPE99"))
	if msg := env.client.lastMessage(t); msg.Text != "Promo code not found." {
		t.Fatalf("expected not found reply, got %q", msg.Text)
	}

	env.bot.HandleUpdate(ctx, textUpdate(9101, "/redeem summer24"))
	if msg := env.client.lastMessage(t); !strings.Contains(msg.Text, "2 cards unlocked") {
		t.Fatalf("expected repeat redeem to refresh the same cards, got %q", msg.Text)
	}

	env.bot.HandleUpdate(ctx, textUpdate(9101, buttonMyCards))
	if msg := env.client.lastMessage(t); msg.Text != "You have 2 cards unlocked." {
		t.Fatalf("expected card count, got %q", msg.Text)
	}
}

func TestPromoPromptCanBeCancelled(t *testing.T) {
	env := setupBotEnv(t, config.TelegramConfig{}, payment.ProviderYooKassa)
	ctx := context.Background()

	env.bot.HandleUpdate(ctx, textUpdate(9201, "/redeem"))
	if state, _ := env.bot.sessions.Get(ctx, 9201); state != StateAwaitingPromo {
		t.Fatalf("expected awaiting promo state, got %q", state)
	}
	env.bot.HandleUpdate(ctx, textUpdate(9201, buttonCancel))
	if state, _ := env.bot.sessions.Get(ctx, 9201); state != StateIdle {
		t.Fatalf("expected idle state after cancel, got %q", state)
	}
	if msg := env.client.lastMessage(t); msg.Text != msgUseMenu {
		t.Fatalf("expected menu hint, got %q", msg.Text)
	}
}

func TestPackagesAndRedirectPurchase(t *testing.T) {
	env := setupBotEnv(t, config.TelegramConfig{}, payment.ProviderYooKassa, &redirectGateway{})
	ctx := context.Background()

	env.bot.HandleUpdate(ctx, textUpdate(9301, buttonPackages))
	if msg := env.client.lastMessage(t); msg.Text != msgNoPackages {
		t.Fatalf("expected empty catalog reply, got %q", msg.Text)
	}

	pkg := createPackage(t, env.conn, "Racing pack", 50000, 2)
	env.bot.HandleUpdate(ctx, textUpdate(9301, "/packages"))
	msg := env.client.lastMessage(t)
	if !strings.Contains(msg.Text, "Racing pack: 500.00 RUB, 2 cards") {
		t.Fatalf("expected package listing, got %q", msg.Text)
	}
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(keyboard.InlineKeyboard) != 1 {
		t.Fatalf("expected one buy button, got %#v", msg.ReplyMarkup)
	}
	data := keyboard.InlineKeyboard[0][0].CallbackData
	if data == nil || *data != buyPrefix+strconv.FormatUint(pkg.ID, 10) {
		t.Fatalf("unexpected buy callback data: %v", data)
	}

	env.bot.HandleUpdate(ctx, buyUpdate(9301, pkg.ID))
	msg = env.client.lastMessage(t)
	if !strings.Contains(msg.Text, "500.00 RUB") {
		t.Fatalf("expected payment prompt, got %q", msg.Text)
	}
	link, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || link.InlineKeyboard[0][0].URL == nil || *link.InlineKeyboard[0][0].URL != "https://pay.example/pay-1" {
		t.Fatalf("expected payment link button, got %#v", msg.ReplyMarkup)
	}
	if len(env.client.callbacks) != 1 {
		t.Fatalf("expected callback to be answered, got %d answers", len(env.client.callbacks))
	}

	env.bot.HandleUpdate(ctx, buyUpdate(9301, pkg.ID+100))
	if msg := env.client.lastMessage(t); msg.Text != "This package is no longer on sale." {
		t.Fatalf("expected unknown package reply, got %q", msg.Text)
	}
}

func TestTelegramInvoiceFlow(t *testing.T) {
	invoices, errInvoices := payment.NewTelegramInvoices(1)
	if errInvoices != nil {
		t.Fatalf("telegram invoices: %v", errInvoices)
	}
	cfg := config.TelegramConfig{PaymentProviderToken: "provider-token", WebAppURL: "https://cards.example/app"}
	env := setupBotEnv(t, cfg, payment.ProviderTelegram, invoices)
	ctx := context.Background()
	pkg := createPackage(t, env.conn, "Endgame pack", 30000, 1)

	env.bot.HandleUpdate(ctx, buyUpdate(9401, pkg.ID))
	invoice := env.client.lastInvoice(t)
	if !payment.IsTelegramPaymentID(invoice.Payload) {
		t.Fatalf("expected telegram payment id payload, got %q", invoice.Payload)
	}
	if invoice.ProviderToken != "provider-token" || invoice.Currency != "RUB" {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}
	if invoice.Prices == nil || (*invoice.Prices)[0].Amount != 30000 {
		t.Fatalf("expected invoice price 30000, got %+v", invoice.Prices)
	}

	env.bot.HandleUpdate(ctx, tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
		ID: "pcq-1", From: &tgbotapi.User{ID: 9401}, Currency: "RUB", TotalAmount: 100, InvoicePayload: invoice.Payload,
	}})
	env.bot.HandleUpdate(ctx, tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
		ID: "pcq-2", From: &tgbotapi.User{ID: 9401}, Currency: "RUB", TotalAmount: 30000, InvoicePayload: invoice.Payload,
	}})
	if len(env.client.prechecks) != 2 {
		t.Fatalf("expected two pre-checkout answers, got %d", len(env.client.prechecks))
	}
	if env.client.prechecks[0].OK || env.client.prechecks[0].ErrorMessage == "" {
		t.Fatalf("expected wrong amount to be declined, got %+v", env.client.prechecks[0])
	}
	if !env.client.prechecks[1].OK {
		t.Fatalf("expected matching amount to be approved, got %+v", env.client.prechecks[1])
	}

	paid := textUpdate(9401, "")
	paid.Message.SuccessfulPayment = &tgbotapi.SuccessfulPayment{
		Currency:                "RUB",
		TotalAmount:             30000,
		InvoicePayload:          invoice.Payload,
		TelegramPaymentChargeID: "tg-charge",
		ProviderPaymentChargeID: "provider-charge",
	}
	env.bot.HandleUpdate(ctx, paid)
	if msg := env.client.lastMessage(t); msg.Text != "Payment received. 1 card unlocked." {
		t.Fatalf("expected payment confirmation, got %q", msg.Text)
	}
	var row models.Purchase
	if errFind := env.conn.Where("payment_id = ?", invoice.Payload).First(&row).Error; errFind != nil {
		t.Fatalf("load purchase: %v", errFind)
	}
	if row.Status != models.PurchaseStatusCompleted {
		t.Fatalf("expected completed purchase, got %s", row.Status)
	}

	env.bot.HandleUpdate(ctx, paid)
	if msg := env.client.lastMessage(t); !strings.Contains(msg.Text, "already processed") {
		t.Fatalf("expected duplicate payment to be recognized, got %q", msg.Text)
	}

	env.bot.HandleUpdate(ctx, tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
		ID: "pcq-3", From: &tgbotapi.User{ID: 9401}, Currency: "RUB", TotalAmount: 30000, InvoicePayload: invoice.Payload,
	}})
	if env.client.prechecks[2].OK {
		t.Fatalf("expected settled invoice to be declined")
	}

	env.bot.HandleUpdate(ctx, buyUpdate(9401, pkg.ID))
	if msg := env.client.lastMessage(t); msg.Text != "You already own this package." {
		t.Fatalf("expected already owned reply, got %q", msg.Text)
	}
}

func TestTelegramInvoicesNeedProviderToken(t *testing.T) {
	invoices, errInvoices := payment.NewTelegramInvoices(2)
	if errInvoices != nil {
		t.Fatalf("telegram invoices: %v", errInvoices)
	}
	env := setupBotEnv(t, config.TelegramConfig{}, payment.ProviderTelegram, invoices)
	pkg := createPackage(t, env.conn, "Opening pack", 10000, 1)

	env.bot.HandleUpdate(context.Background(), buyUpdate(9501, pkg.ID))
	if msg := env.client.lastMessage(t); msg.Text != msgPaymentsDown {
		t.Fatalf("expected payments unavailable reply, got %q", msg.Text)
	}
	var count int64
	if errCount := env.conn.Model(&models.Purchase{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count purchases: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected no purchase to be created, got %d", count)
	}
}

func TestNotifyPurchaseMarksCompleted(t *testing.T) {
	env := setupBotEnv(t, config.TelegramConfig{}, payment.ProviderYooKassa, &redirectGateway{})
	ctx := context.Background()
	pkg := createPackage(t, env.conn, "Racing pack", 50000, 1)

	env.bot.HandleUpdate(ctx, textUpdate(9601, "/start"))
	user := findUser(t, env.conn, 9601)

	confirm := func() purchase.Result {
		initiated, errInit := env.purchases.Initiate(ctx, user.ID, pkg.ID, purchase.InitiateOptions{})
		if errInit != nil {
			t.Fatalf("initiate: %v", errInit)
		}
		result, errConfirm := env.purchases.Confirm(ctx, payment.Confirmation{
			PaymentID: initiated.PaymentID,
			Amount:    50000,
			Currency:  "RUB",
			Status:    payment.StatusSucceeded,
		})
		if errConfirm != nil {
			t.Fatalf("confirm: %v", errConfirm)
		}
		return result
	}

	result := confirm()
	env.client.failSend = true
	env.bot.NotifyPurchase(ctx, result.Purchase)
	stored, errGet := env.purchases.Get(ctx, result.Purchase.ID)
	if errGet != nil {
		t.Fatalf("get purchase: %v", errGet)
	}
	if stored.Status != models.PurchaseStatusSucceeded {
		t.Fatalf("expected purchase to stay succeeded when delivery fails, got %s", stored.Status)
	}

	env.client.failSend = false
	env.bot.NotifyPurchase(ctx, result.Purchase)
	msg := env.client.lastMessage(t)
	if msg.ChatID != 9601 || !strings.Contains(msg.Text, "Racing pack") {
		t.Fatalf("unexpected notification: %+v", msg)
	}
	stored, errGet = env.purchases.Get(ctx, result.Purchase.ID)
	if errGet != nil {
		t.Fatalf("get purchase: %v", errGet)
	}
	if stored.Status != models.PurchaseStatusCompleted {
		t.Fatalf("expected completed purchase, got %s", stored.Status)
	}
}
