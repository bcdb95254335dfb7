package config

import (
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

// Defaults. TTLs are 7-day class; fetch budgets sit in the 8-15s band.
const (
	defaultAddress           = "127.0.0.1"
	defaultPort              = 7447
	defaultDBPath            = "./.nostrly"
	defaultEventTTL          = 7 * 24 * time.Hour
	defaultThreadTTL         = 7 * 24 * time.Hour
	defaultSweepCron         = "0 * * * *" // hourly
	defaultStartupSweepDelay = 10 * time.Second
	defaultBlockCacheSize    = 32 << 20

	defaultEventTimeout   = 8 * time.Second
	defaultSubtreeTimeout = 10 * time.Second
	defaultChainTimeout   = 12 * time.Second
	defaultInflightGrace  = 5 * time.Minute
	defaultMaxHops        = 100
	defaultMaxChainRounds = 3

	defaultRelayRPS         = 20
	defaultRelayBurst       = 40
	defaultRelayDialTimeout = 5 * time.Second
)

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	_ = c.ValidateConfig()
	return c
}

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = defaultAddress
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ValidateConfig applies defaults and validates values in the config. It
// mutates the receiver to fill in missing defaults and returns an error if any
// configuration value is invalid.
func (c *Config) ValidateConfig() error {
	if c.Server.DBPath == "" {
		c.Server.DBPath = defaultDBPath
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// cache
	if c.Cache.EventTTL.Duration() == 0 {
		c.Cache.EventTTL = Duration(defaultEventTTL)
	}
	if c.Cache.ThreadTTL.Duration() == 0 {
		c.Cache.ThreadTTL = Duration(defaultThreadTTL)
	}
	if c.Cache.EventTTL.Duration() < 0 || c.Cache.ThreadTTL.Duration() < 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.SweepCron == "" {
		c.Cache.SweepCron = defaultSweepCron
	}
	if !gronx.IsValid(c.Cache.SweepCron) {
		return fmt.Errorf("invalid sweep cron expression: %s", c.Cache.SweepCron)
	}
	if c.Cache.StartupSweepDelay.Duration() == 0 {
		c.Cache.StartupSweepDelay = Duration(defaultStartupSweepDelay)
	}
	if c.Cache.BlockCacheSize.Int64() == 0 {
		c.Cache.BlockCacheSize = SizeBytes(defaultBlockCacheSize)
	}

	// fetch
	f := &c.Fetch
	if f.EventTimeout.Duration() <= 0 {
		f.EventTimeout = Duration(defaultEventTimeout)
	}
	if f.SubtreeTimeout.Duration() <= 0 {
		f.SubtreeTimeout = Duration(defaultSubtreeTimeout)
	}
	if f.ChainTimeout.Duration() <= 0 {
		f.ChainTimeout = Duration(defaultChainTimeout)
	}
	if f.InflightGrace.Duration() <= 0 {
		f.InflightGrace = Duration(defaultInflightGrace)
	}
	// the in-flight entry must outlive its own request
	if f.InflightGrace.Duration() <= f.EventTimeout.Duration() {
		return fmt.Errorf("fetch.inflight_grace (%s) must be longer than fetch.event_timeout (%s)",
			f.InflightGrace.Duration(), f.EventTimeout.Duration())
	}
	if f.InflightCapacity < 0 {
		return fmt.Errorf("fetch.inflight_capacity must not be negative")
	}
	if f.MaxHops <= 0 {
		f.MaxHops = defaultMaxHops
	}
	if f.MaxChainRounds <= 0 {
		f.MaxChainRounds = defaultMaxChainRounds
	}

	// relays
	if c.Relays.RPS <= 0 {
		c.Relays.RPS = defaultRelayRPS
	}
	if c.Relays.Burst <= 0 {
		c.Relays.Burst = defaultRelayBurst
	}
	if c.Relays.DialTimeout.Duration() <= 0 {
		c.Relays.DialTimeout = Duration(defaultRelayDialTimeout)
	}
	for _, u := range c.Relays.URLs {
		if err := validateRelayURL(u); err != nil {
			return err
		}
	}
	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("NOSTRLY_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
