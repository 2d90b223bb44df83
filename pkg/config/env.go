package config

// EnvPrefix scopes envconfig lookups; every field also declares its full key.
const EnvPrefix = "MKT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv         = "MKT_APP_ENV"
	EnvPort           = "MKT_APP_PORT"
	EnvDBDSN          = "MKT_DB_DSN"
	EnvDBHost         = "MKT_DB_HOST"
	EnvDBUser         = "MKT_DB_USER"
	EnvDBName         = "MKT_DB_NAME"
	EnvDBSQLitePath   = "MKT_DB_SQLITE_PATH"
	EnvUseSQLite      = "MKT_USE_SQLITE"
	EnvRedisURL       = "MKT_REDIS_URL"
	EnvJWTSecret      = "MKT_JWT_SECRET"
	EnvJWTIssuer      = "MKT_JWT_ISSUER"
	EnvCommissionRate = "MKT_COMMISSION_RATE"
	EnvGCSBucket      = "MKT_GCS_BUCKET_NAME"
	EnvGCPProjectID   = "MKT_GCP_PROJECT_ID"
)
