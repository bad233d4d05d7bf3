package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix prefixes every environment override.
const envPrefix = "BGCARDS_"

// DefaultConfigPath is used when no path is configured.
const DefaultConfigPath = "config.yaml"

// AppConfig holds process-level options resolved from flags.
type AppConfig struct {
	ConfigPath string
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Telegram TelegramConfig `yaml:"telegram"`
	Payment  PaymentConfig  `yaml:"payment"`
	Redis    RedisConfig    `yaml:"redis"`
	Retry    RetryConfig    `yaml:"retry"`
	Admin    AdminBootstrap `yaml:"admin"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read-timeout"`
	WriteTimeout time.Duration `yaml:"write-timeout"`
}

// DatabaseConfig configures the SQL connection.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max-open-conns"`
	MaxIdleConns    int           `yaml:"max-idle-conns"`
	ConnMaxLifetime time.Duration `yaml:"conn-max-lifetime"`
	SlowThreshold   time.Duration `yaml:"slow-threshold"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	UserExpiry  time.Duration `yaml:"user-expiry"`
	AdminExpiry time.Duration `yaml:"admin-expiry"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// TelegramConfig configures the bot and mini-app authentication.
type TelegramConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Token                string        `yaml:"token"`
	Debug                bool          `yaml:"debug"`
	WebAppURL            string        `yaml:"webapp-url"`
	PaymentProviderToken string        `yaml:"payment-provider-token"`
	InitDataMaxAge       time.Duration `yaml:"init-data-max-age"`
	PreCheckoutTimeout   time.Duration `yaml:"pre-checkout-timeout"`
}

// PaymentConfig configures the payment gateway.
type PaymentConfig struct {
	Provider            string         `yaml:"provider"`
	Currency            string         `yaml:"currency"`
	ReturnURL           string         `yaml:"return-url"`
	WebhookSecret       string         `yaml:"webhook-secret"`
	RequestTimeout      time.Duration  `yaml:"request-timeout"`
	VerifyNotifications bool           `yaml:"verify-notifications"`
	YooKassa            YooKassaConfig `yaml:"yookassa"`
}

// YooKassaConfig holds YooKassa shop credentials.
type YooKassaConfig struct {
	ShopID    string `yaml:"shop-id"`
	SecretKey string `yaml:"secret-key"`
	BaseURL   string `yaml:"base-url"`
}

// RedisConfig configures the optional bot session store.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session-ttl"`
}

// RetryConfig configures the transient error retry policy.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base-delay"`
	MaxDelay  time.Duration `yaml:"max-delay"`
}

// AdminBootstrap seeds the first super admin on an empty database.
type AdminBootstrap struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ResolveConfigPath returns the config path from the flag, the environment or the default.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	if fromEnv := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); fromEnv != "" {
		return fromEnv
	}
	return DefaultConfigPath
}

// ConfigExists reports whether a config file exists at path.
func ConfigExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadConfig reads the YAML file at path, applies environment overrides and defaults.
// A missing file is not an error; environment variables alone can configure the service.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadDatabaseDSN returns the configured database DSN.
func LoadDatabaseDSN(path string) (string, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return "", errors.New("config: database dsn is empty")
	}
	return cfg.Database.DSN, nil
}

// applyEnvOverrides overwrites fields from BGCARDS_* environment variables.
func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Server.Addr, "SERVER_ADDR")
	overrideString(&cfg.Database.DSN, "DATABASE_DSN")
	overrideString(&cfg.JWT.Secret, "JWT_SECRET")
	overrideString(&cfg.Log.Level, "LOG_LEVEL")
	overrideString(&cfg.Log.Format, "LOG_FORMAT")
	overrideString(&cfg.Log.File, "LOG_FILE")
	overrideString(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	overrideString(&cfg.Telegram.WebAppURL, "TELEGRAM_WEBAPP_URL")
	overrideString(&cfg.Telegram.PaymentProviderToken, "TELEGRAM_PAYMENT_PROVIDER_TOKEN")
	overrideBool(&cfg.Telegram.Enabled, "TELEGRAM_ENABLED")
	overrideString(&cfg.Payment.Provider, "PAYMENT_PROVIDER")
	overrideString(&cfg.Payment.ReturnURL, "PAYMENT_RETURN_URL")
	overrideString(&cfg.Payment.WebhookSecret, "PAYMENT_WEBHOOK_SECRET")
	overrideString(&cfg.Payment.YooKassa.ShopID, "YOOKASSA_SHOP_ID")
	overrideString(&cfg.Payment.YooKassa.SecretKey, "YOOKASSA_SECRET_KEY")
	overrideString(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideString(&cfg.Redis.Password, "REDIS_PASSWORD")
	overrideInt(&cfg.Redis.DB, "REDIS_DB")
	overrideString(&cfg.Admin.Username, "ADMIN_USERNAME")
	overrideString(&cfg.Admin.Password, "ADMIN_PASSWORD")
}

// applyDefaults fills zero values with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.ConnMaxLifetime <= 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.SlowThreshold <= 0 {
		cfg.Database.SlowThreshold = 500 * time.Millisecond
	}
	if cfg.JWT.UserExpiry <= 0 {
		cfg.JWT.UserExpiry = 30 * 24 * time.Hour
	}
	if cfg.JWT.AdminExpiry <= 0 {
		cfg.JWT.AdminExpiry = 12 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 30
	}
	if cfg.Telegram.InitDataMaxAge <= 0 {
		cfg.Telegram.InitDataMaxAge = 24 * time.Hour
	}
	if cfg.Telegram.PreCheckoutTimeout <= 0 {
		cfg.Telegram.PreCheckoutTimeout = 5 * time.Second
	}
	cfg.Payment.Provider = strings.ToLower(strings.TrimSpace(cfg.Payment.Provider))
	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "yookassa"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "RUB"
	}
	if cfg.Payment.RequestTimeout <= 0 {
		cfg.Payment.RequestTimeout = 10 * time.Second
	}
	if cfg.Payment.YooKassa.BaseURL == "" {
		cfg.Payment.YooKassa.BaseURL = "https://api.yookassa.ru"
	}
	if cfg.Redis.SessionTTL <= 0 {
		cfg.Redis.SessionTTL = 30 * time.Minute
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 50 * time.Millisecond
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = time.Second
	}
}

func overrideString(target *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*target = strings.TrimSpace(v)
	}
}

func overrideBool(target *bool, key string) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}
	if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
		*target = parsed
	}
}

func overrideInt(target *int, key string) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		*target = parsed
	}
}
