package config

// EnvPrefix is the envconfig prefix shared by every process.
const EnvPrefix = "MARKETLOOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "MARKETLOOP_APP_ENV"
	EnvPort     = "MARKETLOOP_APP_PORT"
	EnvDBDSN    = "MARKETLOOP_DB_DSN"
	EnvDBHost   = "MARKETLOOP_DB_HOST"
	EnvDBUser   = "MARKETLOOP_DB_USER"
	EnvDBName   = "MARKETLOOP_DB_NAME"
	EnvRedisURL = "MARKETLOOP_REDIS_URL"

	EnvJWTSecret  = "MARKETLOOP_JWT_SECRET"
	EnvJWTIssuer  = "MARKETLOOP_JWT_ISSUER"
	EnvJWTExpMins = "MARKETLOOP_JWT_EXPIRATION_MINUTES"

	EnvStripeSecretKey     = "MARKETLOOP_STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "MARKETLOOP_STRIPE_WEBHOOK_SECRET"
	EnvSquareAccessToken   = "MARKETLOOP_SQUARE_ACCESS_TOKEN"

	EnvGCPProjectID              = "MARKETLOOP_GCP_PROJECT_ID"
	EnvPubSubNotificationTopic   = "MARKETLOOP_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotificationSub     = "MARKETLOOP_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubReconciliationTopic = "MARKETLOOP_PUBSUB_RECONCILIATION_TOPIC"
	EnvPubSubReconciliationSub   = "MARKETLOOP_PUBSUB_RECONCILIATION_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
