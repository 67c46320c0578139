// Package config loads passkey wallet settings from a config file, the
// environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PASSKEY_WALLET_NETWORK_ID.
const EnvPrefix = "PASSKEY_WALLET"

// Config holds every setting of the wallet.
type Config struct {
	NetworkID       string        `mapstructure:"network_id"`
	RelyingPartyID  string        `mapstructure:"relying_party_id"`
	Domain          string        `mapstructure:"domain"`
	Curve           string        `mapstructure:"curve"`
	CeremonyTimeout time.Duration `mapstructure:"ceremony_timeout"`

	Registry RegistryConfig `mapstructure:"registry"`
	GraphQL  GraphQLConfig  `mapstructure:"graphql"`
	Chainweb ChainwebConfig `mapstructure:"chainweb"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type RegistryConfig struct {
	PageSize  int    `mapstructure:"page_size"`
	EventName string `mapstructure:"event_name"`
}

type GraphQLConfig struct {
	Endpoints map[string]string `mapstructure:"endpoints"`
	RetryMax  int               `mapstructure:"retry_max"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	// APIKey is only read from the environment.
	APIKey string `mapstructure:"-"`
}

type ChainwebConfig struct {
	Endpoints    map[string]string `mapstructure:"endpoints"`
	RetryMax     int               `mapstructure:"retry_max"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	PollInterval time.Duration     `mapstructure:"poll_interval"`
}

type MatcherConfig struct {
	Workers int `mapstructure:"workers"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type secrets struct {
	APIKey       string `env:"GRAPHQL_API_KEY"`
	PublicAPIKey string `env:"NEXT_PUBLIC_GRAPHQL_API_KEY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network_id", "mainnet01")
	v.SetDefault("relying_party_id", "")
	v.SetDefault("domain", "")
	v.SetDefault("curve", "p256")
	v.SetDefault("ceremony_timeout", 60*time.Second)
	v.SetDefault("registry.page_size", 200)
	v.SetDefault("registry.event_name", "kadena.spirekey.REGISTER_CREDENTIAL")
	v.SetDefault("graphql.retry_max", 2)
	v.SetDefault("graphql.timeout", 30*time.Second)
	v.SetDefault("chainweb.retry_max", 2)
	v.SetDefault("chainweb.timeout", 30*time.Second)
	v.SetDefault("chainweb.poll_interval", 5*time.Second)
	v.SetDefault("matcher.workers", 0)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "passkey-wallet.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.enabled", false)
}

// FlagKeys maps command line flag names to config keys.
var FlagKeys = map[string]string{
	"network-id":   "network_id",
	"rp-id":        "relying_party_id",
	"domain":       "domain",
	"curve":        "curve",
	"store":        "storage.driver",
	"store-path":   "storage.path",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"workers":      "matcher.workers",
	"metrics":      "metrics.enabled",
	"graphql-url":  "graphql.endpoint",
	"chainweb-url": "chainweb.endpoint",
}

// Load reads the config file at path when it is not empty, then applies
// environment overrides and the flags of fs named in FlagKeys. Flags only
// win when they were set on the command line.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if fs != nil {
		for name, key := range FlagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// a single endpoint flag applies to the selected network
	if u := v.GetString("graphql.endpoint"); u != "" {
		cfg.GraphQL.Endpoints = withEndpoint(cfg.GraphQL.Endpoints, cfg.NetworkID, u)
	}
	if u := v.GetString("chainweb.endpoint"); u != "" {
		cfg.Chainweb.Endpoints = withEndpoint(cfg.Chainweb.Endpoints, cfg.NetworkID, u)
	}

	var s secrets
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.GraphQL.APIKey = s.APIKey
	if cfg.GraphQL.APIKey == "" {
		cfg.GraphQL.APIKey = s.PublicAPIKey
	}
	return &cfg, nil
}

func withEndpoint(m map[string]string, network, url string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[network] = url
	return m
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.NetworkID) == "" {
		errs = append(errs, errors.New("network_id is required"))
	}
	if c.Registry.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("registry.page_size must be positive, got %d", c.Registry.PageSize))
	}
	switch c.Curve {
	case "p256", "secp256k1":
	default:
		errs = append(errs, fmt.Errorf("unknown curve %q", c.Curve))
	}
	switch c.Storage.Driver {
	case "sqlite", "leveldb", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Matcher.Workers < 0 {
		errs = append(errs, errors.New("matcher.workers must not be negative"))
	}
	return errors.Join(errs...)
}
