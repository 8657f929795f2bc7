package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	TimeZone string `yaml:"timezone"`
}

// DSN prefers the full URL and falls back to the discrete fields.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.TimeZone,
	)
}

type MpesaConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type PaymentConfig struct {
	// SettlementMode is "poll" (ask the gateway) or "callback" (wait for the
	// gateway to call us back).
	SettlementMode string        `yaml:"settlement_mode"`
	PollAttempts   int           `yaml:"poll_attempts"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	SweepSchedule  string        `yaml:"sweep_schedule"`
	SweepWorkers   int           `yaml:"sweep_workers"`
}

// AwaitWindow bounds how long a checkout request waits for settlement.
func (p PaymentConfig) AwaitWindow() time.Duration {
	return time.Duration(p.PollAttempts) * p.PollInterval
}

type LogConfig struct {
	Mode string `yaml:"mode"`
	File string `yaml:"file"`
}

type Config struct {
	Port          string         `yaml:"port"`
	StoreDriver   string         `yaml:"store_driver"`
	JWTSecret     string         `yaml:"jwt_secret"`
	TxMaxAttempts int            `yaml:"tx_max_attempts"`
	SnowflakeNode int64          `yaml:"snowflake_node"`
	Database      DatabaseConfig `yaml:"database"`
	Mpesa         MpesaConfig    `yaml:"mpesa"`
	Payment       PaymentConfig  `yaml:"payment"`
	Log           LogConfig      `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Port:          "3000",
		StoreDriver:   "postgres",
		TxMaxAttempts: 5,
		SnowflakeNode: 1,
		Database:      DatabaseConfig{TimeZone: "Africa/Nairobi"},
		Mpesa:         MpesaConfig{Timeout: 15 * time.Second},
		Payment: PaymentConfig{
			SettlementMode: "poll",
			PollAttempts:   10,
			PollInterval:   3 * time.Second,
			PendingTTL:     48 * time.Hour,
			SweepSchedule:  "@every 5m",
			SweepWorkers:   4,
		},
		Log: LogConfig{Mode: "development"},
	}
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE, then
// plain environment variables. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.S().Warn(".env file not found")
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) mergeEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("STORE_DRIVER", &c.StoreDriver)
	str("JWT_SECRET", &c.JWTSecret)
	str("DATABASE_URL", &c.Database.URL)
	str("DB_HOST", &c.Database.Host)
	str("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_TIMEZONE", &c.Database.TimeZone)
	str("MPESA_BASE_URL", &c.Mpesa.BaseURL)
	str("MPESA_API_KEY", &c.Mpesa.APIKey)
	str("PAYMENT_SETTLEMENT_MODE", &c.Payment.SettlementMode)
	str("SWEEP_SCHEDULE", &c.Payment.SweepSchedule)
	str("LOG_MODE", &c.Log.Mode)
	str("LOG_FILE", &c.Log.File)

	ints := map[string]*int{
		"TX_MAX_ATTEMPTS":       &c.TxMaxAttempts,
		"PAYMENT_POLL_ATTEMPTS": &c.Payment.PollAttempts,
		"SWEEP_WORKERS":         &c.Payment.SweepWorkers,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := cast.ToIntE(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s", key)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"PAYMENT_POLL_INTERVAL": &c.Payment.PollInterval,
		"PENDING_ORDER_TTL":     &c.Payment.PendingTTL,
		"MPESA_TIMEOUT":         &c.Mpesa.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := cast.ToDurationE(v)
			if err != nil {
				return errors.Wrapf(err, "invalid %s", key)
			}
			*dst = d
		}
	}

	if v, ok := lookup("SNOWFLAKE_NODE"); ok && v != "" {
		n, err := cast.ToInt64E(v)
		if err != nil {
			return errors.Wrap(err, "invalid SNOWFLAKE_NODE")
		}
		c.SnowflakeNode = n
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.Payment.SettlementMode {
	case "poll", "callback":
	default:
		return errors.Errorf("unknown PAYMENT_SETTLEMENT_MODE %q", c.Payment.SettlementMode)
	}
	if c.TxMaxAttempts < 1 {
		return errors.New("TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.Payment.PollAttempts < 1 {
		return errors.New("PAYMENT_POLL_ATTEMPTS must be at least 1")
	}
	if c.Payment.PollInterval < 0 || c.Payment.PendingTTL <= 0 {
		return errors.New("payment durations must be positive")
	}
	return nil
}
