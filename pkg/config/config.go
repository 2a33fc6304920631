package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Booking      BookingConfig
	Platform     PlatformConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Platform.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GLOWBOOK_APP_ENV" required:"true"`
	Port         string `envconfig:"GLOWBOOK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GLOWBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GLOWBOOK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"GLOWBOOK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"GLOWBOOK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GLOWBOOK_DB_DSN"`
	Driver string `envconfig:"GLOWBOOK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GLOWBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"GLOWBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GLOWBOOK_DB_USER"`
	LegacyPassword string `envconfig:"GLOWBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"GLOWBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"GLOWBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GLOWBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GLOWBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GLOWBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GLOWBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GLOWBOOK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GLOWBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"GLOWBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"GLOWBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GLOWBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GLOWBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GLOWBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GLOWBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GLOWBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GLOWBOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GLOWBOOK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GLOWBOOK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GLOWBOOK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GLOWBOOK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"GLOWBOOK_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	BookingsTopic     string        `envconfig:"GLOWBOOK_PUBSUB_BOOKINGS_TOPIC" default:"gb-booking-events"`
	PaymentsTopic     string        `envconfig:"GLOWBOOK_PUBSUB_PAYMENTS_TOPIC" default:"gb-payment-events"`
	NotificationTopic string        `envconfig:"GLOWBOOK_PUBSUB_NOTIFICATION_TOPIC" default:"gb-notification-events"`
	PublishTimeout    time.Duration `envconfig:"GLOWBOOK_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GLOWBOOK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GLOWBOOK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GLOWBOOK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"GLOWBOOK_STRIPE_SECRET_KEY"`
	WebhookSecret string `envconfig:"GLOWBOOK_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"GLOWBOOK_STRIPE_ENV" default:"test"`
	SuccessURL    string `envconfig:"GLOWBOOK_STRIPE_SUCCESS_URL" default:"http://localhost:3000/bookings/{reference}/success"`
	CancelURL     string `envconfig:"GLOWBOOK_STRIPE_CANCEL_URL" default:"http://localhost:3000/bookings/{reference}/cancel"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken string `envconfig:"GLOWBOOK_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"GLOWBOOK_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"GLOWBOOK_SQUARE_LOCATION_ID"`

	// Signature key and the exact notification URL registered with Square;
	// both feed the webhook HMAC.
	WebhookSignatureKey string `envconfig:"GLOWBOOK_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL          string `envconfig:"GLOWBOOK_SQUARE_WEBHOOK_URL"`
}

// BaseURL resolves the Square API host for the configured environment.
func (s SquareConfig) BaseURL() string {
	if strings.EqualFold(strings.TrimSpace(s.Env), "production") {
		return "https://connect.squareup.com"
	}
	return "https://connect.squareupsandbox.com"
}

type BookingConfig struct {
	NumberSalt             string        `envconfig:"GLOWBOOK_BOOKING_NUMBER_SALT" default:"glowbook"`
	NumberMinLength        int           `envconfig:"GLOWBOOK_BOOKING_NUMBER_MIN_LENGTH" default:"8"`
	DefaultCurrency        string        `envconfig:"GLOWBOOK_BOOKING_DEFAULT_CURRENCY" default:"USD"`
	GiftCardReservationTTL time.Duration `envconfig:"GLOWBOOK_GIFT_CARD_RESERVATION_TTL" default:"2h"`
	SettingsCacheTTL       time.Duration `envconfig:"GLOWBOOK_SETTINGS_CACHE_TTL" default:"60s"`
	IdempotencyTTL         time.Duration `envconfig:"GLOWBOOK_BOOKING_IDEMPOTENCY_TTL" default:"24h"`
	CreateRateLimit        int64         `envconfig:"GLOWBOOK_BOOKING_CREATE_RATE_LIMIT" default:"10"`
	CreateRateWindow       time.Duration `envconfig:"GLOWBOOK_BOOKING_CREATE_RATE_WINDOW" default:"1m"`
}

// PlatformConfig holds the fallback platform settings used when the
// platform_settings table has no row yet.
type PlatformConfig struct {
	CommissionRate        string `envconfig:"GLOWBOOK_PLATFORM_COMMISSION_RATE" default:"0.15"`
	CommissionEnabled     bool   `envconfig:"GLOWBOOK_PLATFORM_COMMISSION_ENABLED" default:"true"`
	ServiceFeeKind        string `envconfig:"GLOWBOOK_PLATFORM_SERVICE_FEE_KIND" default:"percentage"`
	ServiceFeeValue       string `envconfig:"GLOWBOOK_PLATFORM_SERVICE_FEE_VALUE" default:"0"`
	TaxRate               string `envconfig:"GLOWBOOK_PLATFORM_TAX_RATE" default:"0"`
	TaxEnabled            bool   `envconfig:"GLOWBOOK_PLATFORM_TAX_ENABLED" default:"false"`
	AllowConflictOverride bool   `envconfig:"GLOWBOOK_PLATFORM_ALLOW_CONFLICT_OVERRIDE" default:"false"`
	LoyaltyPointValue     string `envconfig:"GLOWBOOK_PLATFORM_LOYALTY_POINT_VALUE" default:"0.01"`
	LoyaltyEarnRate       string `envconfig:"GLOWBOOK_PLATFORM_LOYALTY_EARN_RATE" default:"1"`
}

func (p PlatformConfig) validate() error {
	for name, raw := range map[string]string{
		EnvPlatformCommissionRate:    p.CommissionRate,
		EnvPlatformServiceFeeValue:   p.ServiceFeeValue,
		EnvPlatformTaxRate:           p.TaxRate,
		EnvPlatformLoyaltyPointValue: p.LoyaltyPointValue,
		EnvPlatformLoyaltyEarnRate:   p.LoyaltyEarnRate,
	} {
		if _, err := decimal.NewFromString(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s must be a decimal: %w", name, err)
		}
	}
	return nil
}

type CronConfig struct {
	Interval  time.Duration `envconfig:"GLOWBOOK_CRON_INTERVAL" default:"5m"`
	LockTTL   time.Duration `envconfig:"GLOWBOOK_CRON_LOCK_TTL" default:"4m"`
	BatchSize int           `envconfig:"GLOWBOOK_CRON_BATCH_SIZE" default:"100"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
