package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "SLEDLJIVOST_"

// Config holds the runtime settings of the service.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	// Owner is the ledger owner account used when the database is created.
	// Empty means a random account is generated.
	Owner    string
	LogPath  string
	LogLevel string

	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// RedisConfig configures event publishing to Redis. Publishing is disabled
// when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RateLimitConfig limits public read requests per client IP.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DBPath:    "sledljivost.sqlite3",
		Addr:      ":8080",
		AdminUser: "Admin",
		LogLevel:  "info",
		Redis: RedisConfig{
			Channel: "sledljivost:events",
		},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 20,
		},
	}
}

type fileConfig struct {
	DB        string `toml:"db"`
	Addr      string `toml:"addr"`
	AdminUser string `toml:"admin_user"`
	Owner     string `toml:"owner"`
	Log       string `toml:"log"`
	LogLevel  string `toml:"log_level"`
	Redis     struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Channel  string `toml:"channel"`
	} `toml:"redis"`
	RateLimit struct {
		RPS   float64 `toml:"rps"`
		Burst int     `toml:"burst"`
	} `toml:"rate_limit"`
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is not empty), a .env file in the working directory (if present) and
// the environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// Ignore a missing .env; real environment variables still apply.
	_ = godotenv.Load()

	if err := LoadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the keys defined in a TOML file onto cfg.
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("db") {
		cfg.DBPath = strings.TrimSpace(raw.DB)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_user") {
		cfg.AdminUser = strings.TrimSpace(raw.AdminUser)
	}
	if meta.IsDefined("owner") {
		cfg.Owner = strings.TrimSpace(raw.Owner)
	}
	if meta.IsDefined("log") {
		cfg.LogPath = strings.TrimSpace(raw.Log)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("redis", "addr") {
		cfg.Redis.Addr = strings.TrimSpace(raw.Redis.Addr)
	}
	if meta.IsDefined("redis", "password") {
		cfg.Redis.Password = raw.Redis.Password
	}
	if meta.IsDefined("redis", "db") {
		cfg.Redis.DB = raw.Redis.DB
	}
	if meta.IsDefined("redis", "channel") {
		cfg.Redis.Channel = strings.TrimSpace(raw.Redis.Channel)
	}
	if meta.IsDefined("rate_limit", "rps") {
		cfg.RateLimit.RPS = raw.RateLimit.RPS
	}
	if meta.IsDefined("rate_limit", "burst") {
		cfg.RateLimit.Burst = raw.RateLimit.Burst
	}
	return nil
}

// LoadEnv overlays SLEDLJIVOST_* environment variables onto cfg.
func LoadEnv(cfg *Config) error {
	setString(&cfg.DBPath, "DB")
	setString(&cfg.Addr, "ADDR")
	setString(&cfg.AdminUser, "ADMIN_USER")
	setString(&cfg.Owner, "OWNER")
	setString(&cfg.LogPath, "LOG")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Redis.Channel, "REDIS_CHANNEL")

	if v, ok := lookup("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB: %w", EnvPrefix, err)
		}
		cfg.Redis.DB = n
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sRATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		cfg.RateLimit.RPS = f
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sRATE_LIMIT_BURST: %w", EnvPrefix, err)
		}
		cfg.RateLimit.Burst = n
	}
	return nil
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	if c.AdminUser == "" {
		return errors.New("admin username is required")
	}
	if err := validator.New().Var(c.Owner, "omitempty,eth_addr"); err != nil {
		return fmt.Errorf("owner %q is not a valid account address", c.Owner)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return errors.New("rate limit burst must be positive when rps is set")
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}
