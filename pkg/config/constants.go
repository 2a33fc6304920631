package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "GLOWBOOK_APP_ENV"
	EnvPort     = "GLOWBOOK_APP_PORT"
	EnvLogLevel = "GLOWBOOK_LOG_LEVEL"

	EnvDBDSN  = "GLOWBOOK_DB_DSN"
	EnvDBHost = "GLOWBOOK_DB_HOST"
	EnvDBUser = "GLOWBOOK_DB_USER"
	EnvDBName = "GLOWBOOK_DB_NAME"

	EnvRedisURL     = "GLOWBOOK_REDIS_URL"
	EnvJWTSecret    = "GLOWBOOK_JWT_SECRET"
	EnvJWTIssuer    = "GLOWBOOK_JWT_ISSUER"
	EnvGCPProjectID = "GLOWBOOK_GCP_PROJECT_ID"

	EnvPlatformCommissionRate    = "GLOWBOOK_PLATFORM_COMMISSION_RATE"
	EnvPlatformServiceFeeValue   = "GLOWBOOK_PLATFORM_SERVICE_FEE_VALUE"
	EnvPlatformTaxRate           = "GLOWBOOK_PLATFORM_TAX_RATE"
	EnvPlatformLoyaltyPointValue = "GLOWBOOK_PLATFORM_LOYALTY_POINT_VALUE"
	EnvPlatformLoyaltyEarnRate   = "GLOWBOOK_PLATFORM_LOYALTY_EARN_RATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
