// Package cfg loads pg_subscribe's per-process configuration: compile-time
// engine limits with file/flag overrides, logging format, and the admin and
// metrics surfaces, mirroring the teacher's toml-plus-flags Configuration
// pattern.
package cfg

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// EngineConfiguration controls the change-propagation engine's fixed-capacity
// resources (spec.md §3/§5) and heartbeat cadence (spec.md §4.7/§6).
type EngineConfiguration struct {
	MaxSlots            int `toml:"max_slots"`             // S: slot table capacity
	RingCapacity        int `toml:"ring_capacity"`          // R: events per slot ring
	MaxTrackedTables    int `toml:"max_tracked_tables"`     // T: distinct base tables under trigger
	HeartbeatIntervalMS int `toml:"heartbeat_interval_ms"`  // H: default heartbeat cadence
	StaleTimeoutSeconds int `toml:"stale_timeout_seconds"`  // staleness window for SweepStale (swept every half window)
	AnalyzerCacheSize   int `toml:"analyzer_cache_size"`    // QueryFacts LRU entries
}

// LoggingConfiguration controls log verbosity and rendering.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// AdminConfiguration controls the monitoring HTTP surface (admin package).
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// PrometheusConfiguration controls metrics exposition.
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// HostDBConfiguration points at the reference HostDatabase implementation.
type HostDBConfiguration struct {
	Path string `toml:"path"` // sqlite3 DSN/path; ":memory:" for ephemeral hosts
}

// Configuration is the top-level, per-process configuration.
type Configuration struct {
	Engine     EngineConfiguration     `toml:"engine"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Admin      AdminConfiguration      `toml:"admin"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	HostDB     HostDBConfiguration     `toml:"hostdb"`
}

// Command line flags, applied over whatever Load read from file.
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
	HostDBPathFlag = flag.String("hostdb-path", "", "Host database path (overrides config)")
)

// Config is the process-wide configuration singleton, populated with
// defaults before Load overlays file and flag values. Compile-time limits
// named in spec.md §6 (MAX_SLOTS, MAX_EVENTS_PER_SLOT, MAX_TRACKED_TABLES)
// surface here as the Engine section's runtime-configurable defaults.
var Config = &Configuration{
	Engine: EngineConfiguration{
		MaxSlots:            64,
		RingCapacity:        32,
		MaxTrackedTables:    256,
		HeartbeatIntervalMS: 1000,
		StaleTimeoutSeconds: 300,
		AnalyzerCacheSize:   1024,
	},
	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},
	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "0.0.0.0",
		Port:        7777,
	},
	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
	HostDB: HostDBConfiguration{
		Path: "./pg_subscribe.db",
	},
}

// Load loads configuration from file and applies CLI overrides.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}
	if *HostDBPathFlag != "" {
		Config.HostDB.Path = *HostDBPathFlag
	}

	return nil
}

// Validate checks configuration for errors.
func Validate() error {
	if Config.Engine.MaxSlots < 1 {
		return fmt.Errorf("engine.max_slots must be >= 1")
	}

	if Config.Engine.RingCapacity < 1 {
		return fmt.Errorf("engine.ring_capacity must be >= 1")
	}

	if Config.Engine.MaxTrackedTables < 1 {
		return fmt.Errorf("engine.max_tracked_tables must be >= 1")
	}

	if Config.Engine.HeartbeatIntervalMS < 50 || Config.Engine.HeartbeatIntervalMS > 60000 {
		return fmt.Errorf("engine.heartbeat_interval_ms must be in [50, 60000], got %d", Config.Engine.HeartbeatIntervalMS)
	}

	if Config.Engine.StaleTimeoutSeconds < 1 {
		return fmt.Errorf("engine.stale_timeout_seconds must be >= 1")
	}

	if Config.Engine.AnalyzerCacheSize < 1 {
		return fmt.Errorf("engine.analyzer_cache_size must be >= 1")
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", Config.Logging.Format)
	}

	if Config.HostDB.Path == "" {
		return fmt.Errorf("hostdb.path must not be empty")
	}

	return nil
}
