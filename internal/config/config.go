package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/casebill/casebill/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment   DeploymentConfig   `mapstructure:"deployment" validate:"required"`
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Logging      LoggingConfig      `mapstructure:"logging" validate:"required"`
	Postgres     PostgresConfig     `mapstructure:"postgres" validate:"required"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Billing      BillingConfig      `mapstructure:"billing" validate:"required"`
	Gateway      GatewayConfig      `mapstructure:"gateway" validate:"required"`
	Notification NotificationConfig `mapstructure:"notification" validate:"required"`
	Email        EmailConfig        `mapstructure:"email"`
	Cache        CacheConfig        `mapstructure:"cache" validate:"required"`
	Redis        RedisConfig        `mapstructure:"redis"`
	S3           S3Config           `mapstructure:"s3"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Retry        RetryConfig        `mapstructure:"retry" validate:"required"`
	Cron         CronConfig         `mapstructure:"cron"`
	Auth         AuthConfig         `mapstructure:"auth"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
	// AllowedOrigins is the CORS allow list, empty allows any origin
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// SSLRedirect redirects plain http requests when not running locally
	SSLRedirect bool `mapstructure:"ssl_redirect"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"required"`
	User                   string `mapstructure:"user" validate:"required"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode" validate:"required"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
	AutoMigrate            bool   `mapstructure:"auto_migrate" default:"false"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}

// BillingConfig carries the firm's billing policy
type BillingConfig struct {
	DefaultTaxRate       float64            `mapstructure:"default_tax_rate"`
	JurisdictionTaxRates map[string]float64 `mapstructure:"jurisdiction_tax_rates"`
	TaxRateCacheTTL      time.Duration      `mapstructure:"tax_rate_cache_ttl"`
	InvoiceDueDays       int                `mapstructure:"invoice_due_days" validate:"min=1"`
	LateFeePercentage    float64            `mapstructure:"late_fee_percentage"`
	PlanLateFeeAmount    float64            `mapstructure:"plan_late_fee_amount"`
	PlanGracePeriodDays  int                `mapstructure:"plan_grace_period_days" validate:"min=0"`
	PlanDefaultThreshold int                `mapstructure:"plan_default_threshold" validate:"min=1"`
	PortalURL            string             `mapstructure:"portal_url"`
	FirmName             string             `mapstructure:"firm_name"`
}

// TaxRateFor returns the configured rate for a jurisdiction, falling back to the default
func (c BillingConfig) TaxRateFor(jurisdiction string) decimal.Decimal {
	if rate, ok := c.JurisdictionTaxRates[strings.ToLower(jurisdiction)]; ok {
		return decimal.NewFromFloat(rate)
	}
	return decimal.NewFromFloat(c.DefaultTaxRate)
}

type GatewayConfig struct {
	// Provider is stripe, or none to reject card payments
	Provider         string        `mapstructure:"provider" validate:"oneof=stripe none"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"required"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateBurst        int           `mapstructure:"rate_burst"`
	CardFeePercent   float64       `mapstructure:"card_fee_percent"`
	CardFeeFixed     float64       `mapstructure:"card_fee_fixed"`
	StripeSecretKey  string        `mapstructure:"stripe_secret_key"`
	StripeWebhookKey string        `mapstructure:"stripe_webhook_secret"`
}

// CardFee returns the processing fee charged on a card payment of amount
func (c GatewayConfig) CardFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(c.CardFeePercent)).
		Add(decimal.NewFromFloat(c.CardFeeFixed)).
		Round(2)
}

type NotificationConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Topic      string           `mapstructure:"topic" validate:"required"`
	PubSub     types.PubSubType `mapstructure:"pubsub" validate:"required"`
	StaffEmail string           `mapstructure:"staff_email"`
	MaxRetries int              `mapstructure:"max_retries"`
	// PoisonTopic receives messages that failed every retry
	PoisonTopic string `mapstructure:"poison_topic"`
}

type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	APIKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address"`
	ReplyTo     string `mapstructure:"reply_to"`
}

type CacheConfig struct {
	Backend         types.CacheBackend `mapstructure:"backend" validate:"required"`
	DefaultTTL      time.Duration      `mapstructure:"default_ttl"`
	CleanupInterval time.Duration      `mapstructure:"cleanup_interval"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type S3Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	Region        string        `mapstructure:"region"`
	Bucket        string        `mapstructure:"bucket"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RetryConfig bounds the optimistic lock retries of the services
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"required"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"required"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time" validate:"required"`
	MaxRetries      uint64        `mapstructure:"max_retries" validate:"min=1"`
}

// CronConfig protects the sweep endpoints
type CronConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// AuthConfig lists the API keys allowed to call the billing API. Keys are
// stored as sha256 hex digests, never in raw form.
type AuthConfig struct {
	APIKey APIKeyConfig `mapstructure:"api_key"`
}

type APIKeyConfig struct {
	Header string                   `mapstructure:"header" validate:"required"`
	Keys   map[string]APIKeyDetails `mapstructure:"keys"`
}

type APIKeyDetails struct {
	TenantID string `mapstructure:"tenant_id" json:"tenant_id"`
	UserID   string `mapstructure:"user_id" json:"user_id"`
	Name     string `mapstructure:"name" json:"name"`
	IsActive bool   `mapstructure:"is_active" json:"is_active"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional, real deployments pass env vars directly
	if err := godotenv.Load(); err != nil {
		fmt.Printf("No .env file loaded: %v\n", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/casebill")

	v.SetEnvPrefix("CASEBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := GetDefaultConfig()
	v.SetDefault("deployment.mode", defaults.Deployment.Mode)
	v.SetDefault("server.address", defaults.Server.Address)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "casebill")
	v.SetDefault("postgres.dbname", "casebill")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("billing.default_tax_rate", defaults.Billing.DefaultTaxRate)
	v.SetDefault("billing.tax_rate_cache_ttl", defaults.Billing.TaxRateCacheTTL)
	v.SetDefault("billing.invoice_due_days", defaults.Billing.InvoiceDueDays)
	v.SetDefault("billing.late_fee_percentage", defaults.Billing.LateFeePercentage)
	v.SetDefault("billing.plan_late_fee_amount", defaults.Billing.PlanLateFeeAmount)
	v.SetDefault("billing.plan_grace_period_days", defaults.Billing.PlanGracePeriodDays)
	v.SetDefault("billing.plan_default_threshold", defaults.Billing.PlanDefaultThreshold)
	v.SetDefault("billing.firm_name", defaults.Billing.FirmName)
	v.SetDefault("gateway.provider", defaults.Gateway.Provider)
	v.SetDefault("gateway.timeout", defaults.Gateway.Timeout)
	v.SetDefault("gateway.rate_limit", defaults.Gateway.RateLimit)
	v.SetDefault("gateway.rate_burst", defaults.Gateway.RateBurst)
	v.SetDefault("gateway.card_fee_percent", defaults.Gateway.CardFeePercent)
	v.SetDefault("gateway.card_fee_fixed", defaults.Gateway.CardFeeFixed)
	v.SetDefault("notification.enabled", defaults.Notification.Enabled)
	v.SetDefault("notification.topic", defaults.Notification.Topic)
	v.SetDefault("notification.pubsub", defaults.Notification.PubSub)
	v.SetDefault("notification.max_retries", defaults.Notification.MaxRetries)
	v.SetDefault("notification.poison_topic", defaults.Notification.PoisonTopic)
	v.SetDefault("cache.backend", defaults.Cache.Backend)
	v.SetDefault("cache.default_ttl", defaults.Cache.DefaultTTL)
	v.SetDefault("cache.cleanup_interval", defaults.Cache.CleanupInterval)
	v.SetDefault("redis.key_prefix", "casebill:")
	v.SetDefault("s3.presign_expiry", 24*time.Hour)
	v.SetDefault("retry.initial_interval", defaults.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", defaults.Retry.MaxInterval)
	v.SetDefault("retry.max_elapsed_time", defaults.Retry.MaxElapsedTime)
	v.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	v.SetDefault("auth.api_key.header", defaults.Auth.APIKey.Header)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Billing: BillingConfig{
			DefaultTaxRate:       0.0475,
			JurisdictionTaxRates: map[string]float64{},
			TaxRateCacheTTL:      time.Hour,
			InvoiceDueDays:       types.DefaultInvoiceDueDays,
			LateFeePercentage:    1.5,
			PlanLateFeeAmount:    types.DefaultPlanLateFeeAmount,
			PlanGracePeriodDays:  types.DefaultPlanGracePeriodDays,
			PlanDefaultThreshold: types.DefaultPlanDefaultThreshold,
			FirmName:             "Casebill Law",
		},
		Gateway: GatewayConfig{
			Provider:       "none",
			Timeout:        10 * time.Second,
			RateLimit:      25,
			RateBurst:      5,
			CardFeePercent: 0.029,
			CardFeeFixed:   0.30,
		},
		Notification: NotificationConfig{
			Enabled:     true,
			Topic:       "billing_notifications",
			PubSub:      types.MemoryPubSub,
			MaxRetries:  3,
			PoisonTopic: "billing_notifications_poison",
		},
		Cache: CacheConfig{
			Backend:         types.CacheBackendMemory,
			DefaultTTL:      time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Retry: RetryConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			MaxElapsedTime:  5 * time.Second,
			MaxRetries:      8,
		},
		Auth: AuthConfig{
			APIKey: APIKeyConfig{Header: "x-api-key"},
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
