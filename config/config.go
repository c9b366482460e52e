// Package config loads application configuration with viper. Components
// receive their effective configuration at construction time; nothing reads
// configuration on the request path.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/corestack/corestack/cache"
	"github.com/corestack/corestack/syncer"
)

// Config represents the application configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

// AppConfig contains application-level configuration.
type AppConfig struct {
	// Name doubles as the cache key namespace.
	Name  string `mapstructure:"name"`
	Debug bool   `mapstructure:"debug"`
}

// CacheConfig contains cache layer configuration.
type CacheConfig struct {
	// Backend selects the store: memory, redis, freecache, memcached,
	// leveldb, disk.
	Backend    string        `mapstructure:"backend"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Redis      RedisConfig   `mapstructure:"redis"`
	Rules      []RuleConfig  `mapstructure:"rules"`
}

// RedisConfig contains the redis backend connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RuleConfig declares one caching rule. Match is a literal path, "*" for
// everything, or "~<expr>" for a regular expression.
type RuleConfig struct {
	Match  string  `mapstructure:"match"`
	Status []int   `mapstructure:"status"`
	TTL    float64 `mapstructure:"ttl"`
	// NoCache marks an explicit opt-out (equivalent to TTL 0).
	NoCache bool `mapstructure:"no_cache"`
}

// StorageConfig maps logical bucket names to blob URLs.
type StorageConfig struct {
	Buckets map[string]string `mapstructure:"buckets"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// SyncConfig contains sync engine defaults.
type SyncConfig struct {
	Direction     string        `mapstructure:"direction"`
	Conflict      string        `mapstructure:"conflict"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// LoadConfig loads configuration from the given path (a file or a directory
// containing corestack.yml), environment variables and defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CORESTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if strings.HasSuffix(configPath, ".yml") || strings.HasSuffix(configPath, ".yaml") {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("corestack")
			v.SetConfigType("yaml")
			v.AddConfigPath(configPath)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read configuration: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "corestack")
	v.SetDefault("app.debug", false)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.default_ttl", time.Duration(0))
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("storage.buckets", map[string]string{
		"templates": "mem://",
		"settings":  "mem://",
		"static":    "mem://",
	})
	v.SetDefault("storage.timeout", 30*time.Second)

	v.SetDefault("sync.direction", "bidirectional")
	v.SetDefault("sync.conflict", "newest_wins")
	v.SetDefault("sync.max_concurrent", 5)
	v.SetDefault("sync.timeout", 30*time.Second)
	v.SetDefault("sync.retry_attempts", 2)
	v.SetDefault("sync.retry_delay", 500*time.Millisecond)
}

// CacheRules converts the configured rule records into cache rules.
func (c *Config) CacheRules() ([]cache.Rule, error) {
	rules := make([]cache.Rule, 0, len(c.Cache.Rules))
	for _, rc := range c.Cache.Rules {
		rule := cache.Rule{Status: rc.Status}

		switch {
		case rc.Match == "" || rc.Match == "*":
			rule.Match = cache.Wildcard()
		case strings.HasPrefix(rc.Match, "~"):
			re, err := regexp.Compile(strings.TrimPrefix(rc.Match, "~"))
			if err != nil {
				return nil, fmt.Errorf("invalid rule pattern %q: %w", rc.Match, err)
			}
			rule.Match = cache.Regex(re)
		default:
			rule.Match = cache.Literal(rc.Match)
		}

		if rc.NoCache {
			rule.TTL = cache.TTL(0)
		} else if rc.TTL > 0 {
			rule.TTL = cache.TTL(time.Duration(rc.TTL * float64(time.Second)))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SyncStrategy converts the sync defaults into a syncer.Strategy.
func (c *Config) SyncStrategy() syncer.Strategy {
	strategy := syncer.DefaultStrategy()

	switch c.Sync.Direction {
	case "pull":
		strategy.Direction = syncer.Pull
	case "push":
		strategy.Direction = syncer.Push
	case "bidirectional", "":
		strategy.Direction = syncer.Bidirectional
	}

	switch c.Sync.Conflict {
	case "remote_wins":
		strategy.Conflict = syncer.RemoteWins
	case "local_wins":
		strategy.Conflict = syncer.LocalWins
	case "newest_wins", "":
		strategy.Conflict = syncer.NewestWins
	case "manual":
		strategy.Conflict = syncer.Manual
	case "backup_both":
		strategy.Conflict = syncer.BackupBoth
	}

	if c.Sync.MaxConcurrent > 0 {
		strategy.MaxConcurrent = c.Sync.MaxConcurrent
	}
	if c.Sync.Timeout > 0 {
		strategy.Timeout = c.Sync.Timeout
	}
	if c.Sync.RetryAttempts >= 0 {
		strategy.RetryAttempts = c.Sync.RetryAttempts
	}
	if c.Sync.RetryDelay > 0 {
		strategy.RetryDelay = c.Sync.RetryDelay
	}
	return strategy
}
