package config

const (
	EnvPrefix = "VOP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "VOP_APP_ENV"
	EnvPort              = "VOP_APP_PORT"
	EnvLogLevel          = "VOP_LOG_LEVEL"
	EnvLogFormat         = "VOP_LOG_FORMAT"
	EnvStorageDriver     = "VOP_STORAGE_DRIVER"
	EnvStorageSQLitePath = "VOP_STORAGE_SQLITE_PATH"
	EnvDBDSN             = "VOP_DB_DSN"
	EnvDBDriver          = "VOP_DB_DRIVER"
	EnvRedisURL          = "VOP_REDIS_URL"
	EnvRemoteBaseURL     = "VOP_REMOTE_BASE_URL"
	EnvRemoteAuthScheme  = "VOP_REMOTE_AUTH_SCHEME"
	EnvSyncEnabled       = "VOP_SYNC_ENABLED"
	EnvSyncDebounce      = "VOP_SYNC_DEBOUNCE"
	EnvJWTSecret         = "VOP_JWT_SECRET"
	EnvJWTIssuer         = "VOP_JWT_ISSUER"
)
