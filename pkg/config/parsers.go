package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr     string
	DB       string
	Config   string
	Relays   []string
	LogLevel string
	Set      map[string]bool
}

// EnvResult describes which environment overrides were seen.
type EnvResult struct {
	Keys    []string
	EnvUsed bool
}

// EffectiveConfigResult holds the result of LoadEffectiveConfig.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "+"-joined subset of "config", "env", "flags", or "defaults"
}

// BindFlags registers the shared config flags on fs and returns the value
// holder. Call Collect after the flag set has been parsed.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{Set: map[string]bool{}}
	fs.StringVar(&f.Addr, "addr", "", "HTTP listen address (host:port)")
	fs.StringVar(&f.DB, "db", defaultDBPath, "Pebble DB path")
	fs.StringVar(&f.Config, "config", "./config.yaml", "Path to config file")
	fs.StringSliceVar(&f.Relays, "relay", nil, "Upstream relay URL (repeatable)")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return f
}

// Collect records which flags were explicitly set on the command line.
func (f *Flags) Collect(fs *pflag.FlagSet) {
	if f.Set == nil {
		f.Set = map[string]bool{}
	}
	fs.Visit(func(fl *pflag.Flag) { f.Set[fl.Name] = true })
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads NOSTRLY_* environment variables into a fresh Config.
// Values that fail to parse are ignored.
func ParseConfigEnvs() (*Config, EnvResult) {
	envCfg := &Config{}
	var res EnvResult
	lookup := func(key string) (string, bool) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return "", false
		}
		res.Keys = append(res.Keys, key)
		res.EnvUsed = true
		return v, true
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			if d, err := parseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	if v, ok := lookup("NOSTRLY_ADDR"); ok {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	}
	if v, ok := lookup("NOSTRLY_DB_PATH"); ok {
		envCfg.Server.DBPath = v
	}
	if v, ok := lookup("NOSTRLY_RELAYS"); ok {
		envCfg.Relays.URLs = parseList(v)
	}
	if v, ok := lookup("NOSTRLY_RELAY_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			envCfg.Relays.RPS = f
		}
	}
	num("NOSTRLY_RELAY_BURST", &envCfg.Relays.Burst)

	dur("NOSTRLY_EVENT_TTL", &envCfg.Cache.EventTTL)
	dur("NOSTRLY_THREAD_TTL", &envCfg.Cache.ThreadTTL)
	if v, ok := lookup("NOSTRLY_SWEEP_CRON"); ok {
		envCfg.Cache.SweepCron = v
	}
	if v, ok := lookup("NOSTRLY_SWEEP_DISABLED"); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			envCfg.Cache.SweepDisabled = true
		}
	}

	dur("NOSTRLY_EVENT_TIMEOUT", &envCfg.Fetch.EventTimeout)
	dur("NOSTRLY_SUBTREE_TIMEOUT", &envCfg.Fetch.SubtreeTimeout)
	dur("NOSTRLY_CHAIN_TIMEOUT", &envCfg.Fetch.ChainTimeout)
	dur("NOSTRLY_INFLIGHT_GRACE", &envCfg.Fetch.InflightGrace)
	num("NOSTRLY_MAX_HOPS", &envCfg.Fetch.MaxHops)

	if v, ok := lookup("NOSTRLY_LOG_LEVEL"); ok {
		envCfg.Logging.Level = v
	}
	return envCfg, res
}

// LoadEffectiveConfig layers the sources as file, then env, then explicit
// flags, applies defaults and validates the result. An explicit --config that
// points at a missing file is an error.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}

	out := &Config{}
	var sources []string
	if fileExists && fileCfg != nil {
		*out = *fileCfg
		sources = append(sources, "config")
	}
	if envRes.EnvUsed && envCfg != nil {
		overlay(out, envCfg)
		sources = append(sources, "env")
	}

	flagsUsed := false
	if flags.Set["addr"] {
		flagsUsed = true
		if h, p, err := net.SplitHostPort(flags.Addr); err == nil {
			out.Server.Address = h
			out.Server.Port, _ = strconv.Atoi(p)
		} else {
			out.Server.Address = flags.Addr
		}
	}
	if flags.Set["db"] {
		flagsUsed = true
		out.Server.DBPath = flags.DB
	}
	if flags.Set["relay"] {
		flagsUsed = true
		out.Relays.URLs = append([]string(nil), flags.Relays...)
	}
	if flags.Set["log-level"] {
		flagsUsed = true
		out.Logging.Level = flags.LogLevel
	}
	if flagsUsed {
		sources = append(sources, "flags")
	}
	if len(sources) == 0 {
		sources = append(sources, "defaults")
	}

	if err := out.ValidateConfig(); err != nil {
		return res, err
	}
	res.Config = out
	res.Addr = out.Addr()
	res.DBPath = out.Server.DBPath
	res.Source = strings.Join(sources, "+")
	return res, nil
}

// overlay copies every non-zero field of src onto dst.
func overlay(dst, src *Config) {
	if src.Server.Address != "" {
		dst.Server.Address = src.Server.Address
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.DBPath != "" {
		dst.Server.DBPath = src.Server.DBPath
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}

	if src.Cache.EventTTL != 0 {
		dst.Cache.EventTTL = src.Cache.EventTTL
	}
	if src.Cache.ThreadTTL != 0 {
		dst.Cache.ThreadTTL = src.Cache.ThreadTTL
	}
	if src.Cache.SweepCron != "" {
		dst.Cache.SweepCron = src.Cache.SweepCron
	}
	if src.Cache.StartupSweepDelay != 0 {
		dst.Cache.StartupSweepDelay = src.Cache.StartupSweepDelay
	}
	if src.Cache.SweepDisabled {
		dst.Cache.SweepDisabled = true
	}
	if src.Cache.BlockCacheSize != 0 {
		dst.Cache.BlockCacheSize = src.Cache.BlockCacheSize
	}

	if src.Fetch.EventTimeout != 0 {
		dst.Fetch.EventTimeout = src.Fetch.EventTimeout
	}
	if src.Fetch.SubtreeTimeout != 0 {
		dst.Fetch.SubtreeTimeout = src.Fetch.SubtreeTimeout
	}
	if src.Fetch.ChainTimeout != 0 {
		dst.Fetch.ChainTimeout = src.Fetch.ChainTimeout
	}
	if src.Fetch.InflightGrace != 0 {
		dst.Fetch.InflightGrace = src.Fetch.InflightGrace
	}
	if src.Fetch.InflightCapacity != 0 {
		dst.Fetch.InflightCapacity = src.Fetch.InflightCapacity
	}
	if src.Fetch.MaxHops != 0 {
		dst.Fetch.MaxHops = src.Fetch.MaxHops
	}
	if src.Fetch.MaxChainRounds != 0 {
		dst.Fetch.MaxChainRounds = src.Fetch.MaxChainRounds
	}

	if len(src.Relays.URLs) > 0 {
		dst.Relays.URLs = append([]string(nil), src.Relays.URLs...)
	}
	if src.Relays.RPS != 0 {
		dst.Relays.RPS = src.Relays.RPS
	}
	if src.Relays.Burst != 0 {
		dst.Relays.Burst = src.Relays.Burst
	}
	if src.Relays.DialTimeout != 0 {
		dst.Relays.DialTimeout = src.Relays.DialTimeout
	}
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid relay url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid relay url %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid relay url %q: missing host", raw)
	}
	return nil
}
