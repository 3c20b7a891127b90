package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Fees         FeesConfig
	Stripe       StripeConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Tickets      TicketsConfig
	Applications ApplicationsConfig
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
	Env          string `envconfig:"MARKETLOOP_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETLOOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETLOOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETLOOP_LOG_WARN_STACK" default:"false"`
	BaseURL      string `envconfig:"MARKETLOOP_APP_BASE_URL"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETLOOP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETLOOP_DB_DSN"`
	Driver string `envconfig:"MARKETLOOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETLOOP_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETLOOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETLOOP_DB_USER"`
	LegacyPassword string `envconfig:"MARKETLOOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETLOOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETLOOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETLOOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETLOOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETLOOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETLOOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETLOOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETLOOP_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETLOOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETLOOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETLOOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETLOOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETLOOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETLOOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETLOOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETLOOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETLOOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETLOOP_JWT_EXPIRATION_MINUTES" required:"true"`
}

func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETLOOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETLOOP_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookDedupTTL time.Duration `envconfig:"MARKETLOOP_EVENTING_WEBHOOK_DEDUP_TTL" default:"720h"`
}

// FeesConfig holds the platform fee schedule. Rates are expressed in
// basis points so they survive env round trips without float drift.
type FeesConfig struct {
	PlatformRateBps    int `envconfig:"MARKETLOOP_FEES_PLATFORM_RATE_BPS" default:"600"`
	ApplicationRateBps int `envconfig:"MARKETLOOP_FEES_APPLICATION_RATE_BPS" default:"600"`
}

type StripeConfig struct {
	SecretKey            string `envconfig:"MARKETLOOP_STRIPE_SECRET_KEY"`
	WebhookSecret        string `envconfig:"MARKETLOOP_STRIPE_WEBHOOK_SECRET"`
	ConnectWebhookSecret string `envconfig:"MARKETLOOP_STRIPE_CONNECT_WEBHOOK_SECRET"`
	Env                  string `envconfig:"MARKETLOOP_STRIPE_ENV" default:"test"`
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
	AccessToken   string `envconfig:"MARKETLOOP_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"MARKETLOOP_SQUARE_WEBHOOK_SECRET"`
	Env           string `envconfig:"MARKETLOOP_SQUARE_ENV" default:"sandbox"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKETLOOP_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MARKETLOOP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKETLOOP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic          string `envconfig:"MARKETLOOP_PUBSUB_NOTIFICATION_TOPIC" required:"true"`
	NotificationSubscription   string `envconfig:"MARKETLOOP_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	ReconciliationTopic        string `envconfig:"MARKETLOOP_PUBSUB_RECONCILIATION_TOPIC" required:"true"`
	ReconciliationSubscription string `envconfig:"MARKETLOOP_PUBSUB_RECONCILIATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETLOOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETLOOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETLOOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	ApplicationSweepInterval time.Duration `envconfig:"MARKETLOOP_CRON_APPLICATION_SWEEP_INTERVAL" default:"1h"`
	SquareSyncInterval       time.Duration `envconfig:"MARKETLOOP_CRON_SQUARE_SYNC_INTERVAL" default:"15m"`
	LockTTL                  time.Duration `envconfig:"MARKETLOOP_CRON_LOCK_TTL" default:"5m"`
}

type TicketsConfig struct {
	CheckoutSuccessURL string `envconfig:"MARKETLOOP_TICKETS_SUCCESS_URL"`
	CheckoutCancelURL  string `envconfig:"MARKETLOOP_TICKETS_CANCEL_URL"`
}

type ApplicationsConfig struct {
	ApprovalTTL time.Duration `envconfig:"MARKETLOOP_APPLICATIONS_APPROVAL_TTL" default:"168h"`
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
