package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
)

// Identity provider and storage backends selectable from Config.
const (
	ProviderCognito = "cognito"
	ProviderMemory  = "memory"

	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds the settings needed to assemble a Client. It is read from
// HABIT_AUTH_* environment variables.
type Config struct {
	Provider      string        `env:"HABIT_AUTH_PROVIDER"        envDefault:"cognito"`
	Region        string        `env:"HABIT_AUTH_REGION"          envDefault:"eu-north-1"`
	UserPoolID    string        `env:"HABIT_AUTH_USER_POOL_ID"`
	ClientID      string        `env:"HABIT_AUTH_CLIENT_ID"`
	ClientSecret  string        `env:"HABIT_AUTH_CLIENT_SECRET"`
	GlobalSignOut bool          `env:"HABIT_AUTH_GLOBAL_SIGN_OUT" envDefault:"false"`
	ClockDrift    time.Duration `env:"HABIT_AUTH_CLOCK_DRIFT"     envDefault:"30s"`

	Namespace      string `env:"HABIT_AUTH_NAMESPACE"   envDefault:"@habit_tracker"`
	StorageBackend string `env:"HABIT_AUTH_STORAGE"     envDefault:"sqlite"`
	RedisAddr      string `env:"HABIT_AUTH_REDIS_ADDR"  envDefault:"localhost:6379"`
	RedisDB        int    `env:"HABIT_AUTH_REDIS_DB"    envDefault:"0"`
	SQLitePath     string `env:"HABIT_AUTH_SQLITE_PATH" envDefault:"habit-auth.db"`

	LogLevel string `env:"HABIT_AUTH_LOG_LEVEL" envDefault:"info"`
}

// LoadConfigFromEnv parses the environment into a Config and validates it.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, WrapError(ErrInvalidInput, err, map[string]any{"source": "env"})
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the selected provider and storage backend have what
// they need.
func (c Config) Validate() error {
	var poolRules, redisRules, sqliteRules []validation.Rule
	if c.Provider == ProviderCognito {
		poolRules = append(poolRules, validation.Required)
	}
	if c.StorageBackend == StorageRedis {
		redisRules = append(redisRules, validation.Required)
	}
	if c.StorageBackend == StorageSQLite {
		sqliteRules = append(sqliteRules, validation.Required)
	}

	err := validation.ValidateStruct(&c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderCognito, ProviderMemory)),
		validation.Field(&c.Region, poolRules...),
		validation.Field(&c.UserPoolID, poolRules...),
		validation.Field(&c.ClientID, poolRules...),
		validation.Field(&c.StorageBackend, validation.Required, validation.In(StorageSQLite, StorageRedis, StorageMemory)),
		validation.Field(&c.RedisAddr, redisRules...),
		validation.Field(&c.SQLitePath, sqliteRules...),
		validation.Field(&c.ClockDrift, validation.Min(time.Duration(0))),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
	if err != nil {
		return WrapError(ErrInvalidInput, err, map[string]any{"source": "config"})
	}
	return nil
}
