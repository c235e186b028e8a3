package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP      HTTPConfig
	DB        DBConfig
	Logging   LoggingConfig
	Admin     AdminConfig
	Rewards   RewardsConfig
	Placement PlacementConfig
	Jobs      JobsConfig
	Withdraw  WithdrawConfig
}

type HTTPConfig struct {
	Host            string        `env:"HOST,default=127.0.0.1"`
	Port            int           `env:"PORT,default=3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

type DBConfig struct {
	Host        string `env:"DB_HOST,default=127.0.0.1"`
	Port        string `env:"DB_PORT,default=5432"`
	User        string `env:"DB_USER,default=postgres"`
	Password    string `env:"DB_PASSWORD"`
	Name        string `env:"DB_NAME,default=matrix"`
	SSLMode     string `env:"DB_SSLMODE,default=disable"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE,default=false"`
}

// DSN renders the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}

type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Production bool   `env:"LOG_PRODUCTION,default=false"`
}

type AdminConfig struct {
	Code   string `env:"ADMIN_CODE,default=admin"`
	Secret string `env:"ADMIN_SECRET"`
}

type RewardsConfig struct {
	// CatalogPath points at a YAML catalog. Empty means the embedded default.
	CatalogPath string `env:"REWARD_CATALOG_PATH"`
}

type PlacementConfig struct {
	ReservationTTL time.Duration `env:"RESERVATION_TTL,default=72h"`
}

// JobsConfig holds cron specs. "off" disables a job.
type JobsConfig struct {
	ExpireSpec    string `env:"JOB_EXPIRE_SPEC,default=@every 10m"`
	ReconcileSpec string `env:"JOB_RECONCILE_SPEC,default=@every 1h"`
}

type WithdrawConfig struct {
	RatePerMinute int `env:"WITHDRAW_RATE_PER_MIN,default=6"`
	Burst         int `env:"WITHDRAW_BURST,default=3"`
}

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.HTTP.Port)
	}
	if c.Placement.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive, got %s", c.Placement.ReservationTTL)
	}
	if c.Admin.Secret == "" {
		return errors.New("ADMIN_SECRET is required")
	}
	if c.Withdraw.RatePerMinute <= 0 || c.Withdraw.Burst <= 0 {
		return errors.New("withdraw throttle rate and burst must be positive")
	}
	return nil
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
