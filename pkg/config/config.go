package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SCHOOLBANK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SCHOOLBANK_DB_DSN"
	EnvDBHost = "SCHOOLBANK_DB_HOST"
	EnvDBUser = "SCHOOLBANK_DB_USER"
	EnvDBName = "SCHOOLBANK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"SCHOOLBANK_APP_ENV" required:"true"`
	Port         string `envconfig:"SCHOOLBANK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SCHOOLBANK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SCHOOLBANK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SCHOOLBANK_DB_DSN"`
	Driver string `envconfig:"SCHOOLBANK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SCHOOLBANK_DB_HOST"`
	LegacyPort     int    `envconfig:"SCHOOLBANK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SCHOOLBANK_DB_USER"`
	LegacyPassword string `envconfig:"SCHOOLBANK_DB_PASSWORD"`
	LegacyName     string `envconfig:"SCHOOLBANK_DB_NAME"`
	LegacySSLMode  string `envconfig:"SCHOOLBANK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SCHOOLBANK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SCHOOLBANK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SCHOOLBANK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SCHOOLBANK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SCHOOLBANK_REDIS_URL"`
	Address      string        `envconfig:"SCHOOLBANK_REDIS_ADDR"`
	Password     string        `envconfig:"SCHOOLBANK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SCHOOLBANK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SCHOOLBANK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SCHOOLBANK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SCHOOLBANK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SCHOOLBANK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SCHOOLBANK_REDIS_WRITE_TIMEOUT" default:"5s"`
	SummaryTTL   time.Duration `envconfig:"SCHOOLBANK_REDIS_SUMMARY_TTL" default:"30s"`
}

// LedgerConfig tunes the banking engine.
type LedgerConfig struct {
	AccountNumberPrefix  string        `envconfig:"SCHOOLBANK_ACCOUNT_NUMBER_PREFIX" default:"SB"`
	AccountNumberRetries int           `envconfig:"SCHOOLBANK_ACCOUNT_NUMBER_RETRIES" default:"5"`
	TxRetryAttempts      int           `envconfig:"SCHOOLBANK_TX_RETRY_ATTEMPTS" default:"3"`
	TxRetryBackoff       time.Duration `envconfig:"SCHOOLBANK_TX_RETRY_BACKOFF" default:"25ms"`
	TxTimeout            time.Duration `envconfig:"SCHOOLBANK_TX_TIMEOUT" default:"5s"`
	MaintenanceBatchSize int           `envconfig:"SCHOOLBANK_MAINTENANCE_BATCH_SIZE" default:"500"`
}

type FeatureFlagsConfig struct {
	AutoMigrate  bool `envconfig:"SCHOOLBANK_AUTO_MIGRATE" default:"false"`
	SummaryCache bool `envconfig:"SCHOOLBANK_FEATURE_SUMMARY_CACHE" default:"true"`
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
