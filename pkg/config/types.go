package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Relays  RelayConfig   `yaml:"relays"`
}

// ServerConfig holds http listener and storage location settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CacheConfig controls record lifetimes in the local store and the sweep
// that removes expired records.
type CacheConfig struct {
	EventTTL          Duration  `yaml:"event_ttl"`
	ThreadTTL         Duration  `yaml:"thread_ttl"`
	SweepCron         string    `yaml:"sweep_cron"`
	StartupSweepDelay Duration  `yaml:"startup_sweep_delay"`
	SweepDisabled     bool      `yaml:"sweep_disabled"`
	BlockCacheSize    SizeBytes `yaml:"block_cache_size"`
}

// FetchConfig bounds network work done on behalf of readers.
type FetchConfig struct {
	EventTimeout   Duration `yaml:"event_timeout"`
	SubtreeTimeout Duration `yaml:"subtree_timeout"`
	ChainTimeout   Duration `yaml:"chain_timeout"`
	InflightGrace  Duration `yaml:"inflight_grace"`
	// InflightCapacity caps the in-flight table; zero means unbounded.
	InflightCapacity int `yaml:"inflight_capacity"`
	MaxHops          int `yaml:"max_hops"`
	MaxChainRounds   int `yaml:"max_chain_rounds"`
}

// RelayConfig lists upstream relays and the outbound request budget.
type RelayConfig struct {
	URLs        []string `yaml:"urls"`
	RPS         float64  `yaml:"rps"`
	Burst       int      `yaml:"burst"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from
// strings like "100ms", "7d" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// day suffix, since TTLs are usually expressed in days
	if strings.HasSuffix(raw, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(raw, "d")); err == nil && n >= 0 {
			return Duration(time.Duration(n) * 24 * time.Hour), nil
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
