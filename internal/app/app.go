// Package app wires configuration, storage, services, the HTTP server and the bot into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/bot"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/catalog"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/db"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/entitlement"
	apphttp "github.com/IlyaStepanov1104/Backgammon-sub000/internal/http"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/admin"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/front"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/http/api/webhook"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/logging"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/models"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/payment"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/promo"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/purchase"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/retry"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/settings"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// invoiceNodeID is the snowflake node of Telegram invoice ids.
const invoiceNodeID = 1

// shutdownTimeout bounds the graceful stop of every component.
const shutdownTimeout = 20 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn, db.Options{})
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.Infof("migrations applied (config=%s)", configPath)
	return nil
}

// RunServer boots the HTTP APIs, the bot and the background workers, and blocks until ctx is done.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	application := fx.New(Module(cfg), fx.NopLogger)
	if errApp := application.Err(); errApp != nil {
		return errApp
	}

	startCtx, cancelStart := context.WithTimeout(ctx, shutdownTimeout)
	defer cancelStart()
	if errStart := application.Start(startCtx); errStart != nil {
		return errStart
	}

	<-ctx.Done()
	log.Info("shutting down")
	stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStop()
	return application.Stop(stopCtx)
}

// Module provides every component of the service.
func Module(appCfg config.AppConfig) fx.Option {
	return fx.Options(
		fx.Supply(appCfg),
		fx.Provide(
			provideConfig,
			provideDB,
			provideSettings,
			provideRetryPolicy,
			provideSessionStore,
			provideGateways,
			catalog.NewService,
			promo.NewService,
			entitlement.NewService,
			providePurchases,
			provideBot,
			provideRouter,
		),
		fx.Invoke(startSweeper, startBot, startHTTPServer),
	)
}

func provideConfig(lc fx.Lifecycle, appCfg config.AppConfig) (config.Config, error) {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	cfg, errLoad := config.LoadConfig(configPath)
	if errLoad != nil {
		return config.Config{}, errLoad
	}
	closer, errLog := logging.Setup(cfg.Log)
	if errLog != nil {
		return config.Config{}, fmt.Errorf("app: setup logging: %w", errLog)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return closer.Close() }})
	if !config.ConfigExists(configPath) {
		log.Warnf("config file %s not found, using environment only", configPath)
	}
	if cfg.JWT.Secret == "" {
		return config.Config{}, errors.New("app: jwt secret is empty")
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, nil
}

func dbOptions(cfg config.DatabaseConfig) db.Options {
	return db.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Logger:          logging.NewGormLogger(cfg.SlowThreshold),
	}
}

func provideDB(lc fx.Lifecycle, cfg config.Config) (*gorm.DB, error) {
	conn, errOpen := db.Open(cfg.Database.DSN, dbOptions(cfg.Database))
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	if _, errSeed := db.SeedAdmin(context.Background(), conn, cfg.Admin.Username, cfg.Admin.Password); errSeed != nil {
		return nil, errSeed
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		sqlDB, errDB := conn.DB()
		if errDB != nil {
			return errDB
		}
		return sqlDB.Close()
	}})
	return conn, nil
}

func provideSettings(conn *gorm.DB) (*settings.Store, error) {
	store := settings.NewStore(conn)
	if errRefresh := store.Refresh(context.Background()); errRefresh != nil {
		return nil, fmt.Errorf("app: load settings: %w", errRefresh)
	}
	return store, nil
}

func provideRetryPolicy(cfg config.Config) retry.Policy {
	return retry.FromConfig(cfg.Retry)
}

// provideSessionStore shares bot sessions through redis when an address is configured.
func provideSessionStore(lc fx.Lifecycle, cfg config.Config) (bot.SessionStore, error) {
	if cfg.Redis.Addr == "" {
		return bot.NewMemorySessionStore(cfg.Redis.SessionTTL), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: connect redis %s: %w", cfg.Redis.Addr, errPing)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	log.Infof("bot sessions stored in redis %s", cfg.Redis.Addr)
	return bot.NewRedisSessionStore(client, cfg.Redis.SessionTTL), nil
}

// provideGateways registers YooKassa when credentials are present and Telegram invoices when the bot can send them.
func provideGateways(cfg config.Config) ([]payment.Gateway, error) {
	var gateways []payment.Gateway
	if cfg.Payment.YooKassa.ShopID != "" || cfg.Payment.YooKassa.SecretKey != "" {
		yoo, errYoo := payment.NewYooKassa(cfg.Payment, &http.Client{})
		if errYoo != nil {
			return nil, errYoo
		}
		gateways = append(gateways, yoo)
	}
	if cfg.Telegram.PaymentProviderToken != "" {
		invoices, errInvoices := payment.NewTelegramInvoices(invoiceNodeID)
		if errInvoices != nil {
			return nil, errInvoices
		}
		gateways = append(gateways, invoices)
	}

	found := false
	for _, gw := range gateways {
		if gw.Name() == cfg.Payment.Provider {
			found = true
		}
	}
	if !found {
		log.Warnf("payment provider %q is not configured, purchases will be rejected", cfg.Payment.Provider)
	}
	return gateways, nil
}

func providePurchases(conn *gorm.DB, policy retry.Policy, store *settings.Store, gateways []payment.Gateway, cfg config.Config) *purchase.Service {
	return purchase.NewService(conn, policy, store, gateways, purchase.Options{
		DefaultProvider: cfg.Payment.Provider,
		ReturnURL:       cfg.Payment.ReturnURL,
		GatewayTimeout:  cfg.Payment.RequestTimeout,
	})
}

type botParams struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Settings    *settings.Store
	Catalog     *catalog.Service
	Entitlement *entitlement.Service
	Promo       *promo.Service
	Purchases   *purchase.Service
	Sessions    bot.SessionStore
}

// provideBot returns nil when the bot is disabled.
func provideBot(p botParams) (*bot.Bot, error) {
	if !p.Config.Telegram.Enabled {
		log.Info("telegram bot disabled")
		return nil, nil
	}
	return bot.New(p.Config.Telegram, bot.Deps{
		DB:          p.DB,
		Settings:    p.Settings,
		Catalog:     p.Catalog,
		Entitlement: p.Entitlement,
		Promo:       p.Promo,
		Purchases:   p.Purchases,
		Sessions:    p.Sessions,
	})
}

type routerParams struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Settings    *settings.Store
	Catalog     *catalog.Service
	Entitlement *entitlement.Service
	Promo       *promo.Service
	Purchases   *purchase.Service
	Bot         *bot.Bot
}

func provideRouter(p routerParams) *gin.Engine {
	if secret := p.Config.Payment.WebhookSecret; secret != "" {
		log.Infof("payment webhook mounted at /v0/webhooks/payment/%s", util.HideSecret(secret))
	} else {
		log.Warn("payment webhook secret is empty, gateway notifications are disabled")
	}
	return apphttp.NewRouter(apphttp.RouterDeps{
		DB: p.DB,
		Admin: admin.Deps{
			DB:          p.DB,
			JWT:         p.Config.JWT,
			Catalog:     p.Catalog,
			Promo:       p.Promo,
			Entitlement: p.Entitlement,
			Purchases:   p.Purchases,
			Settings:    p.Settings,
		},
		Front: front.Deps{
			DB:          p.DB,
			JWT:         p.Config.JWT,
			Telegram:    p.Config.Telegram,
			Catalog:     p.Catalog,
			Entitlement: p.Entitlement,
			Promo:       p.Promo,
			Purchases:   p.Purchases,
		},
		Webhook: webhook.Deps{
			Payment:   p.Config.Payment,
			Purchases: p.Purchases,
			Notifier:  buyerNotifier(p.Bot),
		},
	})
}

// buyerNotifier falls back to a log line when no bot can reach the buyer.
func buyerNotifier(b *bot.Bot) purchase.Notifier {
	if b != nil {
		return b
	}
	return purchase.NotifierFunc(func(_ context.Context, p models.Purchase) {
		log.WithField("purchase_id", p.ID).Info("purchase confirmed, bot disabled so the buyer was not notified")
	})
}

func startSweeper(lc fx.Lifecycle, svc *purchase.Service) {
	sweeper := purchase.NewPendingSweeper(svc, 0)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sweeper.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startBot(lc fx.Lifecycle, b *bot.Bot) {
	if b == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return b.Start(context.Background()) },
		OnStop:  b.Stop,
	})
}

func startHTTPServer(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine) {
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			listener, errListen := net.Listen("tcp", server.Addr)
			if errListen != nil {
				return fmt.Errorf("app: listen %s: %w", server.Addr, errListen)
			}
			go func() {
				if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
					log.WithError(errServe).Error("http server stopped")
				}
			}()
			log.Infof("http server listening on %s", server.Addr)
			return nil
		},
		OnStop: server.Shutdown,
	})
}
