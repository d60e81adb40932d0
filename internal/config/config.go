package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Cache    CacheConfig    `yaml:"cache"`
	LogLevel string         `yaml:"log_level"`
}

type TelegramConfig struct {
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
	Phone   string `yaml:"phone"`
	// SessionDir holds the MTProto session file. Defaults to Dir().
	SessionDir string `yaml:"session_dir"`
}

type CacheConfig struct {
	// Database is the SQLite file backing the cache. Defaults to
	// cache.db inside Dir().
	Database             string   `yaml:"database"`
	FullInfoTTL          Duration `yaml:"full_info_ttl"`
	FullInfoTTLBot       Duration `yaml:"full_info_ttl_bot"`
	RepairDelay          Duration `yaml:"repair_delay"`
	DemoteDelay          Duration `yaml:"demote_delay"`
	ContactsSyncInterval Duration `yaml:"contacts_sync_interval"`
	CloseTimeout         Duration `yaml:"close_timeout"`
}

// Duration is a time.Duration written as "90s" or "1h" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", n.Line)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "tgcache")
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{SessionDir: Dir()},
		Cache: CacheConfig{
			Database:             filepath.Join(Dir(), "cache.db"),
			FullInfoTTL:          Duration(time.Minute),
			FullInfoTTLBot:       Duration(time.Hour),
			RepairDelay:          Duration(time.Second),
			DemoteDelay:          Duration(time.Second),
			ContactsSyncInterval: Duration(10 * time.Minute),
			CloseTimeout:         Duration(5 * time.Second),
		},
		LogLevel: "info",
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	case "":
		c.LogLevel = "info"
	default:
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	for name, d := range map[string]Duration{
		"full_info_ttl":          c.Cache.FullInfoTTL,
		"full_info_ttl_bot":      c.Cache.FullInfoTTLBot,
		"repair_delay":           c.Cache.RepairDelay,
		"demote_delay":           c.Cache.DemoteDelay,
		"contacts_sync_interval": c.Cache.ContactsSyncInterval,
		"close_timeout":          c.Cache.CloseTimeout,
	} {
		if d < 0 {
			return errors.Errorf("cache.%s must not be negative", name)
		}
	}
	return nil
}

// HasCredentials reports whether the Telegram API credentials are set.
func (c *Config) HasCredentials() bool {
	return c.Telegram.APIID != 0 && c.Telegram.APIHash != ""
}
