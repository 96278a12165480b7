package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds process configuration read from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string
	AdminToken       string

	DatabaseDriver string
	DatabaseURL    string
	DatabaseSchema string
	SQLitePath     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	LockTTL       time.Duration

	LedgerEndpoint string
	LedgerTimeout  time.Duration
	WalletID       string
	LedgerDecimals int32
	CurrencySymbol string
	AddressPrefix  string
	MinTipAmount   decimal.Decimal
	TipTriggers    []string
	BotName        string

	TelegramToken         string
	TelegramBotID         string
	TelegramWebhookURL    string
	TelegramWebhookSecret string

	WhatsAppEnabled   bool
	WhatsAppStorePath string
	WhatsAppLogLevel  string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "tipbot"),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseSchema: getEnv("DATABASE_SCHEMA", "public"),
		SQLitePath:     getEnv("SQLITE_PATH", "data/tipbot.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		LedgerEndpoint: getEnv("LEDGER_ENDPOINT", "http://127.0.0.1:7072"),
		WalletID:       getEnv("WALLET_ID", ""),
		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "BAN"),
		AddressPrefix:  getEnv("ADDRESS_PREFIX", "ban_"),
		BotName:        getEnv("BOT_NAME", "BANANOTipBot"),

		TelegramToken:         getEnv("TELEGRAM_TOKEN", ""),
		TelegramBotID:         getEnv("TELEGRAM_BOT_ID", ""),
		TelegramWebhookURL:    getEnv("TELEGRAM_WEBHOOK_URL", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		WhatsAppLogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "INFO"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisTLS, err = getEnvBool("REDIS_TLS", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.LockTTL, err = getEnvDuration("LOCK_TTL", 2*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.LedgerTimeout, err = getEnvDuration("LEDGER_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	decimals, err := getEnvInt("LEDGER_DECIMALS", 29)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.LedgerDecimals = int32(decimals)
	if cfg.WhatsAppEnabled, err = getEnvBool("WHATSAPP_ENABLED", false); err != nil {
		errs = append(errs, err)
	}

	minTip := getEnv("MIN_TIP_AMOUNT", "1")
	if cfg.MinTipAmount, err = decimal.NewFromString(minTip); err != nil {
		errs = append(errs, fmt.Errorf("MIN_TIP_AMOUNT: invalid decimal %q", minTip))
	}

	cfg.TipTriggers = splitList(getEnv("TIP_TRIGGERS", ".tip,.ban,/tip"))

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when DATABASE_DRIVER=postgres"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when DATABASE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", c.DatabaseDriver))
	}
	if c.WalletID == "" {
		errs = append(errs, errors.New("WALLET_ID is required"))
	}
	if c.LedgerDecimals < 0 || c.LedgerDecimals > 38 {
		errs = append(errs, fmt.Errorf("LEDGER_DECIMALS: out of range: %d", c.LedgerDecimals))
	}
	if !c.MinTipAmount.IsPositive() {
		errs = append(errs, errors.New("MIN_TIP_AMOUNT must be positive"))
	}
	if len(c.TipTriggers) == 0 {
		errs = append(errs, errors.New("TIP_TRIGGERS must name at least one trigger"))
	}
	if c.TelegramToken != "" && c.TelegramWebhookSecret == "" {
		errs = append(errs, errors.New("TELEGRAM_WEBHOOK_SECRET is required when TELEGRAM_TOKEN is set"))
	}
	return errs
}

// TelegramEnabled reports whether the Telegram transport is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
