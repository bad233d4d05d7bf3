// Package bot runs the Telegram bot: promo redemption, package sales and in-chat payments.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/users"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// handlerTimeout bounds the work done for one update.
const handlerTimeout = 30 * time.Second

// defaultPreCheckoutTimeout bounds the pre-checkout verification when none is configured.
const defaultPreCheckoutTimeout = 5 * time.Second

// Client is the subset of the Bot API used to answer users.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	AnswerCallbackQuery(config tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error)
	AnswerPreCheckoutQuery(config tgbotapi.PreCheckoutConfig) (tgbotapi.APIResponse, error)
}

// Deps are the services the bot talks to.
type Deps struct {
	DB          *gorm.DB
	Settings    *settings.Store
	Catalog     *catalog.Service
	Entitlement *entitlement.Service
	Promo       *promo.Service
	Purchases   *purchase.Service
	Sessions    SessionStore
}

// Bot handles Telegram updates.
type Bot struct {
	api    *tgbotapi.BotAPI
	client Client
	cfg    config.TelegramConfig

	db          *gorm.DB
	settings    *settings.Store
	catalog     *catalog.Service
	entitlement *entitlement.Service
	promo       *promo.Service
	purchases   *purchase.Service
	sessions    SessionStore

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects to the Bot API with the configured token.
func New(cfg config.TelegramConfig, deps Deps) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot: telegram token is not configured")
	}
	api, errAPI := tgbotapi.NewBotAPI(cfg.Token)
	if errAPI != nil {
		return nil, fmt.Errorf("bot: create bot api: %w", errAPI)
	}
	api.Debug = cfg.Debug
	log.Infof("bot: authorized as @%s (debug: %v)", api.Self.UserName, cfg.Debug)

	b := NewWithClient(api, cfg, deps)
	b.api = api
	return b, nil
}

// NewWithClient builds a bot that answers through client and does not poll.
func NewWithClient(client Client, cfg config.TelegramConfig, deps Deps) *Bot {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewMemorySessionStore(DefaultSessionTTL)
	}
	return &Bot{
		client:      client,
		cfg:         cfg,
		db:          deps.DB,
		settings:    deps.Settings,
		catalog:     deps.Catalog,
		entitlement: deps.Entitlement,
		promo:       deps.Promo,
		purchases:   deps.Purchases,
		sessions:    sessions,
	}
}

// Start begins long polling. Each update is handled in its own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot: no bot api to poll")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, errUpdates := b.api.GetUpdatesChan(u)
	if errUpdates != nil {
		return fmt.Errorf("bot: get updates: %w", errUpdates)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run(runCtx, updates)
	return nil
}

func (b *Bot) run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				handlerCtx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
				defer cancel()
				b.HandleUpdate(handlerCtx, update)
			}(update)
		}
	}
}

// Stop ends polling and waits for in-flight updates until ctx is done.
func (b *Bot) Stop(ctx context.Context) error {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleUpdate dispatches one update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("update_id", update.UpdateID).Errorf("bot: handler panic: %v", r)
		}
	}()

	switch {
	case update.PreCheckoutQuery != nil:
		b.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// ensureUser upserts the Telegram sender.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (models.User, error) {
	return users.Upsert(ctx, b.db, users.Profile{
		TelegramID: int64(from.ID),
		Username:   from.UserName,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	})
}

func (b *Bot) send(c tgbotapi.Chattable) bool {
	if _, errSend := b.client.Send(c); errSend != nil {
		log.WithError(errSend).Warn("bot: send failed")
		return false
	}
	return true
}

func (b *Bot) reply(chatID int64, text string, markup any) bool {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return b.send(msg)
}
