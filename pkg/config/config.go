package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "MERCAFLOW"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "MERCAFLOW_APP_ENV"
	EnvDBDSN  = "MERCAFLOW_DB_DSN"
	EnvDBHost = "MERCAFLOW_DB_HOST"
	EnvDBUser = "MERCAFLOW_DB_USER"
	EnvDBName = "MERCAFLOW_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Paylink      PaylinkConfig
	Orbitpay     OrbitpayConfig
	Escrow       EscrowConfig
	Admin        AdminConfig
	Cron         CronConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MERCAFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"MERCAFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MERCAFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERCAFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MERCAFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MERCAFLOW_DB_DSN"`
	Driver string `envconfig:"MERCAFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MERCAFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"MERCAFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MERCAFLOW_DB_USER"`
	LegacyPassword string `envconfig:"MERCAFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"MERCAFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"MERCAFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERCAFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERCAFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERCAFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERCAFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MERCAFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MERCAFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"MERCAFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERCAFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERCAFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERCAFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERCAFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERCAFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERCAFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MERCAFLOW_AUTO_MIGRATE" default:"false"`
}

type CheckoutConfig struct {
	SessionTTL  time.Duration `envconfig:"MERCAFLOW_CHECKOUT_SESSION_TTL" default:"30m"`
	RedirectURL string        `envconfig:"MERCAFLOW_CHECKOUT_REDIRECT_URL" required:"true"`
}

// PaylinkConfig configures the API-key hosted-payment-page provider.
type PaylinkConfig struct {
	BaseURL       string        `envconfig:"MERCAFLOW_PAYLINK_BASE_URL"`
	APIKey        string        `envconfig:"MERCAFLOW_PAYLINK_API_KEY"`
	WebhookSecret string        `envconfig:"MERCAFLOW_PAYLINK_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"MERCAFLOW_PAYLINK_TIMEOUT" default:"15s"`
}

// OrbitpayConfig configures the OAuth2 client-credentials provider.
type OrbitpayConfig struct {
	BaseURL       string        `envconfig:"MERCAFLOW_ORBITPAY_BASE_URL"`
	TokenURL      string        `envconfig:"MERCAFLOW_ORBITPAY_TOKEN_URL"`
	ClientID      string        `envconfig:"MERCAFLOW_ORBITPAY_CLIENT_ID"`
	ClientSecret  string        `envconfig:"MERCAFLOW_ORBITPAY_CLIENT_SECRET"`
	WebhookSecret string        `envconfig:"MERCAFLOW_ORBITPAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"MERCAFLOW_ORBITPAY_TIMEOUT" default:"15s"`
}

// EscrowConfig configures the escrow-release and payout provider.
type EscrowConfig struct {
	BaseURL       string        `envconfig:"MERCAFLOW_ESCROW_BASE_URL"`
	TokenURL      string        `envconfig:"MERCAFLOW_ESCROW_TOKEN_URL"`
	ClientID      string        `envconfig:"MERCAFLOW_ESCROW_CLIENT_ID"`
	ClientSecret  string        `envconfig:"MERCAFLOW_ESCROW_CLIENT_SECRET"`
	WebhookSecret string        `envconfig:"MERCAFLOW_ESCROW_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"MERCAFLOW_ESCROW_TIMEOUT" default:"20s"`
}

// AdminConfig guards the operator endpoints. The token is issued out of
// band; an empty value disables the admin surface entirely.
type AdminConfig struct {
	APIToken string `envconfig:"MERCAFLOW_ADMIN_API_TOKEN"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"MERCAFLOW_CRON_INTERVAL" default:"1m"`
	ExpiryBatchSize     int           `envconfig:"MERCAFLOW_CRON_EXPIRY_BATCH_SIZE" default:"100"`
	AutoReleaseAfter    time.Duration `envconfig:"MERCAFLOW_CRON_AUTO_RELEASE_AFTER" default:"168h"`
	PayoutStuckAfter    time.Duration `envconfig:"MERCAFLOW_CRON_PAYOUT_STUCK_AFTER" default:"15m"`
	PayoutReconcileSize int           `envconfig:"MERCAFLOW_CRON_PAYOUT_RECONCILE_SIZE" default:"50"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"MERCAFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MERCAFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SettlementTopic        string `envconfig:"MERCAFLOW_PUBSUB_SETTLEMENT_TOPIC" default:"mf-settlement-events"`
	SettlementSubscription string `envconfig:"MERCAFLOW_PUBSUB_SETTLEMENT_SUBSCRIPTION" default:"mf-settlement-worker"`
	PayoutSubscription     string `envconfig:"MERCAFLOW_PUBSUB_PAYOUT_SUBSCRIPTION" default:"mf-payout-worker"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MERCAFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MERCAFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MERCAFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
