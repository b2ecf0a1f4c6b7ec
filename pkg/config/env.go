package config

const (
	EnvPrefix = "DORMSTAY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "DORMSTAY_APP_ENV"
	EnvPort     = "DORMSTAY_APP_PORT"
	EnvLogLevel = "DORMSTAY_LOG_LEVEL"

	EnvDBDSN  = "DORMSTAY_DB_DSN"
	EnvDBHost = "DORMSTAY_DB_HOST"
	EnvDBUser = "DORMSTAY_DB_USER"
	EnvDBName = "DORMSTAY_DB_NAME"

	EnvUseSQLite = "DORMSTAY_USE_SQLITE"

	EnvRedisURL = "DORMSTAY_REDIS_URL"

	EnvJWTSecret = "DORMSTAY_JWT_SECRET"
	EnvJWTIssuer = "DORMSTAY_JWT_ISSUER"

	EnvBookingHorizonMonths = "DORMSTAY_BOOKING_HORIZON_MONTHS"
	EnvReminderOffset       = "DORMSTAY_REMINDER_OFFSET"
	EnvRiskOffset           = "DORMSTAY_RISK_OFFSET"

	EnvRoomLockBackend = "DORMSTAY_ROOM_LOCK_BACKEND"

	EnvSweepInterval = "DORMSTAY_CRON_SWEEP_INTERVAL"
)

const defaultSQLiteDSN = "file:dormstay.db?cache=shared&_busy_timeout=5000"

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
