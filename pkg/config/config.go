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
	FeatureFlags FeatureFlagsConfig
	Sweep        SweepConfig
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
	Env          string `envconfig:"PARCELOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"PARCELOPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PARCELOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PARCELOPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PARCELOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PARCELOPS_DB_DSN"`
	Driver string `envconfig:"PARCELOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PARCELOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"PARCELOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PARCELOPS_DB_USER"`
	LegacyPassword string `envconfig:"PARCELOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PARCELOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PARCELOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PARCELOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PARCELOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PARCELOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PARCELOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PARCELOPS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PARCELOPS_REDIS_ADDR"`
	Password     string        `envconfig:"PARCELOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PARCELOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PARCELOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PARCELOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PARCELOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PARCELOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PARCELOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PARCELOPS_AUTO_MIGRATE" default:"false"`
}

// SweepConfig tunes the delivery-status refresh sweep.
type SweepConfig struct {
	Interval    time.Duration `envconfig:"PARCELOPS_SWEEP_INTERVAL" default:"30m"`
	LockTTL     time.Duration `envconfig:"PARCELOPS_SWEEP_LOCK_TTL" default:"25m"`
	PageSize    int           `envconfig:"PARCELOPS_SWEEP_PAGE_SIZE" default:"100"`
	LockKey     string        `envconfig:"PARCELOPS_SWEEP_LOCK_KEY" default:"sweep:status-refresh"`
	Disabled    bool          `envconfig:"PARCELOPS_SWEEP_DISABLED" default:"false"`
	TrackingURL string        `envconfig:"PARCELOPS_SWEEP_TRACKING_URL"`
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
