package app

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/gatehouse/pkg/ratelimit"
)

// RuleConfig is one rate-limit rule as it appears in the config file.
type RuleConfig struct {
	Limit     int64  `mapstructure:"limit"`
	WindowSec int    `mapstructure:"window_sec"`
	Algorithm string `mapstructure:"algorithm"` // token_bucket, fixed_window, sliding_window
	BlockSec  int    `mapstructure:"block_sec"`
}

type Config struct {
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	Port      int    `mapstructure:"port"`

	Issuer        string `mapstructure:"issuer"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	AccessTTLSec  int    `mapstructure:"access_ttl_sec"`
	RefreshTTLSec int    `mapstructure:"refresh_ttl_sec"`

	DatabaseFile string `mapstructure:"database_file"`

	// RedisAddr selects the shared nonce/quota store. Empty means the
	// in-process store: fine on one node, wrong on many.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	MaxClockSkewSec  int    `mapstructure:"max_clock_skew_sec"`
	NonceLifetimeSec int    `mapstructure:"nonce_lifetime_sec"`
	SignatureDebug   bool   `mapstructure:"signature_debug"`
	BypassToken      string `mapstructure:"bypass_token"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Roles statically maps user ids to roles. Deployments with a real
	// identity backend swap in their own resolver when embedding the
	// packages directly.
	Roles map[string][]string `mapstructure:"roles"`

	ThrottlePerMinute int `mapstructure:"throttle_per_minute"`
	ThrottleBurst     int `mapstructure:"throttle_burst"`

	RateLimitDefault   RuleConfig            `mapstructure:"ratelimit_default"`
	RateLimitEndpoints map[string]RuleConfig `mapstructure:"ratelimit_endpoints"`
	RateLimitRoles     map[string]RuleConfig `mapstructure:"ratelimit_roles"`

	ShutdownGraceSec        int `mapstructure:"shutdown_grace_sec"`
	HousekeepingIntervalSec int `mapstructure:"housekeeping_interval_sec"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/gatehouse/")
	viper.AddConfigPath("$HOME/.gatehouse")
	viper.AddConfigPath(".")

	// Defaults
	viper.SetDefault("env", "dev")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("port", 8080)
	viper.SetDefault("issuer", "gatehouse")
	viper.SetDefault("access_ttl_sec", 15*60)
	viper.SetDefault("refresh_ttl_sec", 7*24*60*60)
	viper.SetDefault("database_file", "gatehouse.db")
	viper.SetDefault("max_clock_skew_sec", 300)
	viper.SetDefault("nonce_lifetime_sec", 60)
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("throttle_per_minute", 300)
	viper.SetDefault("throttle_burst", 0) // 0 = same as per-minute allowance
	viper.SetDefault("ratelimit_default", map[string]any{"limit": 60, "window_sec": 60})
	viper.SetDefault("shutdown_grace_sec", 10)
	viper.SetDefault("housekeeping_interval_sec", 3600)

	// Environment variables
	viper.SetEnvPrefix("GATEHOUSE")
	viper.AutomaticEnv()

	// AutomaticEnv does not surface env-only keys to Unmarshal; keys
	// without a default need an explicit binding.
	for _, key := range []string{
		"jwt_secret",
		"redis_addr",
		"redis_password",
		"redis_db",
		"signature_debug",
		"bypass_token",
	} {
		viper.MustBindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; defaults and env vars apply.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required (set GATEHOUSE_JWT_SECRET)")
	}

	return &cfg, nil
}

func (c *Config) ShutdownGracePeriod() time.Duration {
	return time.Duration(c.ShutdownGraceSec) * time.Second
}

func (c *Config) HousekeepingInterval() time.Duration {
	return time.Duration(c.HousekeepingIntervalSec) * time.Second
}

// RuleSet assembles the limiter rules from config.
func (c *Config) RuleSet() ratelimit.RuleSet {
	rs := ratelimit.RuleSet{
		Default: c.RateLimitDefault.rule(),
	}
	if len(c.RateLimitEndpoints) > 0 {
		rs.Endpoints = make(map[string]ratelimit.Rule, len(c.RateLimitEndpoints))
		for endpoint, rc := range c.RateLimitEndpoints {
			rs.Endpoints[endpoint] = rc.rule()
		}
	}
	if len(c.RateLimitRoles) > 0 {
		rs.Roles = make(map[string]ratelimit.Rule, len(c.RateLimitRoles))
		for role, rc := range c.RateLimitRoles {
			rs.Roles[role] = rc.rule()
		}
	}
	return rs
}

func (rc RuleConfig) rule() ratelimit.Rule {
	return ratelimit.Rule{
		Limit:     rc.Limit,
		Window:    time.Duration(rc.WindowSec) * time.Second,
		Algorithm: ratelimit.Algorithm(rc.Algorithm),
		BlockFor:  time.Duration(rc.BlockSec) * time.Second,
	}
}
