package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
	Purchase PurchaseConfig
	Purse    PurseConfig
	Issuance IssuanceConfig
	Payment  PaymentConfig
	Wallets  WalletsConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects Postgres storage. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// KafkaConfig controls outcome event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // console|json
	IncludeCaller bool
}

// PurchaseConfig holds saga parameters.
type PurchaseConfig struct {
	CancelTTLMax  time.Duration
	DefaultLocale string
}

// PurseConfig configures the local purse ledger.
type PurseConfig struct {
	ReservationTTL time.Duration
}

// IssuanceConfig configures the in-process product registry.
type IssuanceConfig struct {
	CancelWindow       time.Duration
	NonCancellableSets []string
}

// PaymentConfig configures the sandbox payment service.
type PaymentConfig struct {
	SandboxWebviewURL string
	SessionTTL        time.Duration
}

// WalletsConfig points at a JSON file of wallets to serve. Empty seeds none.
type WalletsConfig struct {
	File string
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 10
	defaultKafkaTopic      = "purchase_transactions"
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "console"
	defaultCancelTTLMax    = 24 * time.Hour
	defaultLocale          = "en"
	defaultReservationTTL  = 15 * time.Minute
	defaultCancelWindow    = time.Hour
	defaultSessionTTL      = 30 * time.Minute
)

// Load reads configuration from the environment, after loading any .env file
// in the working directory, applying defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host: valueOrDefault("SERVER_HOST", defaultHost),
		},
		Database: DatabaseConfig{
			URL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
			MaxOpenConns: parseIntWithDefault("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
			Topic:   valueOrDefault("KAFKA_TOPIC", defaultKafkaTopic),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
		Purchase: PurchaseConfig{
			DefaultLocale: valueOrDefault("DEFAULT_LOCALE", defaultLocale),
		},
		Issuance: IssuanceConfig{
			NonCancellableSets: splitCSV(os.Getenv("ISSUANCE_NON_CANCELLABLE_SETS")),
		},
		Payment: PaymentConfig{
			SandboxWebviewURL: strings.TrimRight(os.Getenv("PAYMENT_SANDBOX_WEBVIEW_URL"), "/"),
		},
		Wallets: WalletsConfig{
			File: strings.TrimSpace(os.Getenv("WALLETS_FILE")),
		},
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", defaultReadTimeout, &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", defaultWriteTimeout, &cfg.HTTP.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.HTTP.ShutdownTimeout},
		{"PURCHASE_CANCEL_TTL_MAX", defaultCancelTTLMax, &cfg.Purchase.CancelTTLMax},
		{"PURSE_RESERVATION_TTL", defaultReservationTTL, &cfg.Purse.ReservationTTL},
		{"ISSUANCE_CANCEL_WINDOW", defaultCancelWindow, &cfg.Issuance.CancelWindow},
		{"PAYMENT_SESSION_TTL", defaultSessionTTL, &cfg.Payment.SessionTTL},
	}
	for _, d := range durations {
		v, err := parseDurationWithDefault(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}

func splitCSV(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
