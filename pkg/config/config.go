package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Storage      StorageConfig
	DB           DBConfig
	Redis        RedisConfig
	Remote       RemoteConfig
	Sync         SyncConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
}

var validate = validator.New()

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Sync.Debounce <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvSyncDebounce)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VOP_APP_ENV" default:"dev"`
	Port         string `envconfig:"VOP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VOP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VOP_LOG_FORMAT" default:"json" validate:"oneof=json console"`
	LogWarnStack bool   `envconfig:"VOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorageConfig selects the durable key-value backend used for local cart snapshots.
type StorageConfig struct {
	Driver     string `envconfig:"VOP_STORAGE_DRIVER" default:"sqlite" validate:"oneof=memory sqlite postgres redis"`
	SQLitePath string `envconfig:"VOP_STORAGE_SQLITE_PATH" default:"vaccine-orders.db"`
}

type DBConfig struct {
	DSN    string `envconfig:"VOP_DB_DSN"`
	Driver string `envconfig:"VOP_DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`

	MaxOpenConns    int           `envconfig:"VOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VOP_REDIS_URL"`
	Address      string        `envconfig:"VOP_REDIS_ADDR"`
	Password     string        `envconfig:"VOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"VOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// RemoteConfig points the sync adapter at the remote cart endpoint.
type RemoteConfig struct {
	BaseURL    string        `envconfig:"VOP_REMOTE_BASE_URL" default:"http://localhost:8080/api" validate:"url"`
	Timeout    time.Duration `envconfig:"VOP_REMOTE_TIMEOUT" default:"10s"`
	AuthScheme string        `envconfig:"VOP_REMOTE_AUTH_SCHEME" default:"Token" validate:"oneof=Token Bearer"`
}

type SyncConfig struct {
	Enabled     bool          `envconfig:"VOP_SYNC_ENABLED" default:"true"`
	Debounce    time.Duration `envconfig:"VOP_SYNC_DEBOUNCE" default:"500ms"`
	PushTimeout time.Duration `envconfig:"VOP_SYNC_PUSH_TIMEOUT" default:"10s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VOP_JWT_SECRET"`
	Issuer            string `envconfig:"VOP_JWT_ISSUER" default:"vaccine-orders"`
	ExpirationMinutes int    `envconfig:"VOP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VOP_AUTO_MIGRATE" default:"false"`
}

// RequireServer checks the settings only the remote cart endpoint needs.
func (c *Config) RequireServer() error {
	missing := []string{}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		missing = append(missing, EnvJWTSecret)
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		missing = append(missing, EnvDBDSN)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
