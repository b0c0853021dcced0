// Package config loads and validates the flat configuration schema shared
// by every component: server binding, backend target, rule parameters,
// block/allow lists, the Redis-backed stats store, and logging.
//
// Load reads an optional YAML file (an explicit path, or config.yaml from
// the working directory or /etc/opentsdb-protector) and PROTECTOR_-prefixed
// environment variables over built-in defaults. Daemonization and PID-file
// handling are not part of this package; cmd/server passes its --config
// flag to Load and manages the PID file itself.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the merged, validated configuration for one protector process.
type Config struct {
	Host        string                 `mapstructure:"host"`
	Port        int                    `mapstructure:"port"`
	BackendHost string                 `mapstructure:"backend_host"`
	BackendPort int                    `mapstructure:"backend_port"`
	TimeoutSec  int                    `mapstructure:"timeout"`
	SafeMode    bool                   `mapstructure:"safe_mode"`
	Rules       map[string]interface{} `mapstructure:"rules"`
	BlockedList []string               `mapstructure:"blockedlist"`
	AllowedList []string               `mapstructure:"allowedlist"`
	DB          DBConfig               `mapstructure:"db"`
	Log         LogConfig              `mapstructure:"log"`
	Foreground  bool                   `mapstructure:"foreground"`
	PIDFile     string                 `mapstructure:"pidfile"`
	LogFile     string                 `mapstructure:"logfile"`
}

type DBConfig struct {
	Redis  RedisConfig `mapstructure:"redis"`
	Expire int         `mapstructure:"expire"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Rotate      bool `mapstructure:"rotate"`
	MaxBytes    int  `mapstructure:"maxBytes"`
	BackupCount int  `mapstructure:"backupCount"`
}

// Load reads configuration from an optional file plus environment
// variables, merges in defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/opentsdb-protector")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PROTECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if configPath != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Unmarshal skips keys whose value is null, which would drop rules that
	// take no parameter (e.g. "query_no_aggregator: null"); restore them.
	if rawRules, ok := v.Get("rules").(map[string]interface{}); ok {
		if cfg.Rules == nil {
			cfg.Rules = map[string]interface{}{}
		}
		for name, param := range rawRules {
			if _, present := cfg.Rules[name]; !present {
				cfg.Rules[name] = param
			}
		}
	}

	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.BackendHost = strings.TrimSpace(cfg.BackendHost)
	cfg.DB.Redis.Host = strings.TrimSpace(cfg.DB.Redis.Host)
	cfg.PIDFile = strings.TrimSpace(cfg.PIDFile)
	cfg.LogFile = strings.TrimSpace(cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 4242)
	v.SetDefault("backend_host", "localhost")
	v.SetDefault("backend_port", 4243)
	v.SetDefault("timeout", 60)
	v.SetDefault("safe_mode", false)
	v.SetDefault("rules", map[string]interface{}{})
	v.SetDefault("blockedlist", []string{})
	v.SetDefault("allowedlist", []string{})
	v.SetDefault("db.redis.host", "localhost")
	v.SetDefault("db.redis.port", 6379)
	v.SetDefault("db.redis.password", "")
	v.SetDefault("db.expire", 0)
	v.SetDefault("log.rotate", true)
	v.SetDefault("log.maxBytes", 10*1024*1024)
	v.SetDefault("log.backupCount", 5)
	v.SetDefault("foreground", true)
	v.SetDefault("pidfile", "/var/run/opentsdb-protector.pid")
	v.SetDefault("logfile", "")
}

// Validate rejects configurations the rest of the system could not run
// with; it does not reach into StatsStore/backend reachability, which are
// runtime concerns.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.BackendPort <= 0 || c.BackendPort > 65535 {
		return fmt.Errorf("invalid backend_port: %d", c.BackendPort)
	}
	if c.BackendHost == "" {
		return fmt.Errorf("backend_host is required")
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSec)
	}
	for _, pattern := range append(append([]string{}, c.BlockedList...), c.AllowedList...) {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("blockedlist/allowedlist entries must not be empty")
		}
	}
	return nil
}

// BackendOrigin is the scheme://host:port the proxy forwards to.
func (c *Config) BackendOrigin() string {
	return fmt.Sprintf("http://%s:%d", c.BackendHost, c.BackendPort)
}

// ListenAddr is the host:port ProxyServer binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisAddr is the host:port of the configured Redis StatsStore backend.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.DB.Redis.Host, c.DB.Redis.Port)
}
