package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payment  PaymentConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

// RedisConfig enables the distributed reconcile lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig enables intent event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type PaymentConfig struct {
	DefaultCurrency string
	CountryCode     string // dialing code used for phone normalization, e.g. 966
	AmountTolerance decimal.Decimal
	// AmountHardLimit rejects declared totals that differ from the computed total by more
	// than this amount. Zero disables the check and every mismatch is corrected.
	AmountHardLimit decimal.Decimal
	ProviderTimeout time.Duration
	// AllowUnsignedWebhooks is the master switch for unsigned callbacks. A provider must also opt
	// in through its own allowUnsignedWebhooks setting, and only providers with optional signing
	// honour that. Accepted callbacks are logged at WARN and confirmed by polling the provider.
	AllowUnsignedWebhooks bool
	LockTTL               time.Duration
	PublicBaseURL         string // used to build provider callback URLs
	StorefrontURL         string // customer-facing success/failure/cancel pages
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

func defaults(v *viper.Viper) {
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.dsn", "paycore:paycore@tcp(localhost:3306)/paycore?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("jwt.access_secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", 15*time.Minute)
	v.SetDefault("jwt.issuer", "paycore")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "payment-intents")

	v.SetDefault("payment.default_currency", "SAR")
	v.SetDefault("payment.country_code", "966")
	v.SetDefault("payment.amount_tolerance", "0.01")
	v.SetDefault("payment.amount_hard_limit", "0")
	v.SetDefault("payment.provider_timeout", 20*time.Second)
	v.SetDefault("payment.allow_unsigned_webhooks", false)
	v.SetDefault("payment.lock_ttl", 30*time.Second)
	v.SetDefault("payment.public_base_url", "http://localhost:8099")
	v.SetDefault("payment.storefront_url", "http://localhost:3000")
}

// Load reads defaults, an optional .env file and the environment, in that order.
// Keys map to env vars by upper-casing and replacing dots, e.g. PAYMENT_PROVIDER_TIMEOUT.
func Load() *Config {
	_ = godotenv.Load()
	v := viper.New()
	defaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return FromViper(v)
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			Env:          v.GetString("server.env"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		JWT: JWTConfig{
			AccessSecret: v.GetString("jwt.access_secret"),
			AccessExpiry: v.GetDuration("jwt.access_expiry"),
			Issuer:       v.GetString("jwt.issuer"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Payment: PaymentConfig{
			DefaultCurrency:       v.GetString("payment.default_currency"),
			CountryCode:           strings.TrimPrefix(v.GetString("payment.country_code"), "+"),
			AmountTolerance:       decimalOr(v.GetString("payment.amount_tolerance"), decimal.NewFromFloat(0.01)),
			AmountHardLimit:       decimalOr(v.GetString("payment.amount_hard_limit"), decimal.Zero),
			ProviderTimeout:       v.GetDuration("payment.provider_timeout"),
			AllowUnsignedWebhooks: v.GetBool("payment.allow_unsigned_webhooks"),
			LockTTL:               v.GetDuration("payment.lock_ttl"),
			PublicBaseURL:         strings.TrimRight(v.GetString("payment.public_base_url"), "/"),
			StorefrontURL:         strings.TrimRight(v.GetString("payment.storefront_url"), "/"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decimalOr(s string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return d
}
