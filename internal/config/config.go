package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"auction-settlement/internal/models"
)

// EnvPrefix prefixes every environment override, e.g. AUCTION_DATABASE_DSN
const EnvPrefix = "AUCTION"

// Config is the application configuration
type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Logs struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // json|text
	} `mapstructure:"logs"`

	Database struct {
		Driver       string        `mapstructure:"driver"` // memory|postgres
		DSN          string        `mapstructure:"dsn"`
		MaxTxRetries int           `mapstructure:"max_tx_retries"`
		StoreTimeout time.Duration `mapstructure:"store_timeout"`
	} `mapstructure:"database"`

	// Redis holds tokens when Addr is set
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Tokens struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"tokens"`

	Bidding struct {
		MinAmount string `mapstructure:"min_amount"`
	} `mapstructure:"bidding"`

	Allocator struct {
		Prefix      string `mapstructure:"prefix"`
		MaxAttempts int    `mapstructure:"max_attempts"`
	} `mapstructure:"allocator"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
		RateLimit float64       `mapstructure:"rate_limit"`
		RateBurst int           `mapstructure:"rate_burst"`
	} `mapstructure:"auth"`

	// Minio stores uploads when Endpoint is set
	Minio struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Bucket    string `mapstructure:"bucket"`
		UseSSL    bool   `mapstructure:"use_ssl"`
		PublicURL string `mapstructure:"public_url"`
	} `mapstructure:"minio"`

	// AMQP carries outgoing mail when URL is set
	AMQP struct {
		URL        string `mapstructure:"url"`
		Exchange   string `mapstructure:"exchange"`
		RoutingKey string `mapstructure:"routing_key"`
	} `mapstructure:"amqp"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "json")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_tx_retries", 5)
	v.SetDefault("database.store_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("tokens.ttl", time.Hour)

	v.SetDefault("bidding.min_amount", "1000.00")

	v.SetDefault("allocator.prefix", "AUC")
	v.SetDefault("allocator.max_attempts", 1000)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.rate_limit", 5.0)
	v.SetDefault("auth.rate_burst", 10)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "auctions")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.public_url", "")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "")
	v.SetDefault("amqp.routing_key", "mail")
}

// Load reads defaults, then the optional YAML file, then AUCTION_* env overrides.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the application cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not one of memory|postgres", c.Database.Driver)
	}
	if c.Database.MaxTxRetries < 0 {
		return errors.New("database.max_tx_retries must not be negative")
	}
	if c.Database.StoreTimeout <= 0 {
		return errors.New("database.store_timeout must be positive")
	}
	if c.Tokens.TTL <= 0 {
		return errors.New("tokens.ttl must be positive")
	}
	if _, err := c.MinAmount(); err != nil {
		return err
	}
	if len(c.Allocator.Prefix) != 3 {
		return fmt.Errorf("allocator.prefix %q must be three characters", c.Allocator.Prefix)
	}
	if c.Allocator.MaxAttempts <= 0 {
		return errors.New("allocator.max_attempts must be positive")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret must be set")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Auth.RateLimit <= 0 || c.Auth.RateBurst <= 0 {
		return errors.New("auth.rate_limit and auth.rate_burst must be positive")
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		return errors.New("minio.bucket must be set when minio.endpoint is")
	}
	return nil
}

// MinAmount parses bidding.min_amount
func (c *Config) MinAmount() (models.Amount, error) {
	amount, err := models.ParseAmount(c.Bidding.MinAmount)
	if err != nil {
		return 0, fmt.Errorf("bidding.min_amount: %w", err)
	}
	if amount <= 0 {
		return 0, errors.New("bidding.min_amount must be positive")
	}
	return amount, nil
}
