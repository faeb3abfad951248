package config

// EnvPrefix namespaces every environment variable the app reads.
const EnvPrefix = "PARCELOPS"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "PARCELOPS_APP_ENV"
	EnvPort   = "PARCELOPS_APP_PORT"

	EnvDBDSN  = "PARCELOPS_DB_DSN"
	EnvDBHost = "PARCELOPS_DB_HOST"
	EnvDBUser = "PARCELOPS_DB_USER"
	EnvDBName = "PARCELOPS_DB_NAME"

	EnvRedisURL = "PARCELOPS_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
