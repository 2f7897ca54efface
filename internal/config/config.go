// Package config loads the world server configuration from yaml with
// environment-variable overrides (WORLDD_*).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Tick        TickConfig        `yaml:"tick"`
	Ingress     IngressConfig     `yaml:"ingress"`
	Replication ReplicationConfig `yaml:"replication"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Transport   TransportConfig   `yaml:"transport"`
}

// ServerConfig covers the ops HTTP surface.
type ServerConfig struct {
	Env             string `yaml:"env"`
	GameAddr        string `yaml:"game_addr"`
	OpsAddr         string `yaml:"ops_addr"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// TickConfig tunes the fixed-rate scheduler.
type TickConfig struct {
	IntervalMs       int  `yaml:"interval_ms"`
	MaxCatchUpTicks  int  `yaml:"max_catch_up_ticks"`
	AssertTickThread bool `yaml:"assert_tick_thread"`
	EffectCapacity   int  `yaml:"effect_capacity"`
}

// Interval returns the tick interval as a duration.
func (t TickConfig) Interval() time.Duration {
	return time.Duration(t.IntervalMs) * time.Millisecond
}

// IngressConfig caps the per-session inbound command mailboxes.
type IngressConfig struct {
	MaxInboundCommandsPerSession int `yaml:"max_inbound_commands_per_session"`
	MaxQueuedBytesPerSession     int `yaml:"max_queued_bytes_per_session"`
	MaxCommandsPerDrain          int `yaml:"max_commands_per_drain"`
}

// ReplicationConfig caps the outbound snapshot pipeline and the time slicer.
type ReplicationConfig struct {
	MaxOutboundSnapshotsPerSession int `yaml:"max_outbound_snapshots_per_session"`
	MaxQueuedBytesPerSession       int `yaml:"max_queued_bytes_per_session"`
	SliceBudgetPerTickUs           int `yaml:"slice_budget_per_tick_us"`
	MaxSlicesPerTick               int `yaml:"max_slices_per_tick"`
	EntitiesPerSlice               int `yaml:"entities_per_slice"`
	AppliedSetCap                  int `yaml:"applied_set_cap"`
}

// PersistenceConfig caps the checkpoint write-request queue and names the
// optional redis drain target.
type PersistenceConfig struct {
	MaxWritesPerPlayer      int    `yaml:"max_writes_per_player"`
	MaxWritesGlobal         int    `yaml:"max_writes_global"`
	MaxQueuedBytesPerPlayer int    `yaml:"max_queued_bytes_per_player"`
	MaxQueuedBytesGlobal    int    `yaml:"max_queued_bytes_global"`
	RedisAddr               string `yaml:"redis_addr"`
	RedisList               string `yaml:"redis_list"`
	DrainBatch              int    `yaml:"drain_batch"`
}

// TransportConfig tunes the websocket gateway.
type TransportConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins"`
	WriteTimeoutMs  int      `yaml:"write_timeout_ms"`
	BreakerMaxFails int      `yaml:"breaker_max_fails"`
	BreakerOpenMs   int      `yaml:"breaker_open_ms"`
	ReadLimitBytes  int64    `yaml:"read_limit_bytes"`
	PingIntervalSec int      `yaml:"ping_interval_sec"`
}

// Default returns the baked-in defaults. Every cap has a sane bound so a
// missing config file still yields a functional server.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Env:             "dev",
			GameAddr:        ":8080",
			OpsAddr:         ":8090",
			ShutdownTimeout: 10,
		},
		Tick: TickConfig{
			IntervalMs:      100,
			MaxCatchUpTicks: 3,
			EffectCapacity:  512,
		},
		Ingress: IngressConfig{
			MaxInboundCommandsPerSession: 64,
			MaxQueuedBytesPerSession:     64 * 1024,
			MaxCommandsPerDrain:          256,
		},
		Replication: ReplicationConfig{
			MaxOutboundSnapshotsPerSession: 8,
			MaxQueuedBytesPerSession:       256 * 1024,
			SliceBudgetPerTickUs:           2000,
			MaxSlicesPerTick:               4,
			EntitiesPerSlice:               128,
			AppliedSetCap:                  4096,
		},
		Persistence: PersistenceConfig{
			MaxWritesPerPlayer:      4,
			MaxWritesGlobal:         1024,
			MaxQueuedBytesPerPlayer: 256 * 1024,
			MaxQueuedBytesGlobal:    16 * 1024 * 1024,
			RedisList:               "caelmor:persistence",
			DrainBatch:              32,
		},
		Transport: TransportConfig{
			WriteTimeoutMs:  2000,
			BreakerMaxFails: 5,
			BreakerOpenMs:   5000,
			ReadLimitBytes:  128 * 1024,
			PingIntervalSec: 30,
		},
	}
}

// Load reads the yaml file at path (if it exists) over the defaults and then
// applies WORLDD_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot honor.
func (c *Config) Validate() error {
	if c.Tick.IntervalMs <= 0 {
		return fmt.Errorf("config: tick.interval_ms must be positive, got %d", c.Tick.IntervalMs)
	}
	if c.Tick.MaxCatchUpTicks < 1 {
		return fmt.Errorf("config: tick.max_catch_up_ticks must be >= 1, got %d", c.Tick.MaxCatchUpTicks)
	}
	if c.Ingress.MaxInboundCommandsPerSession <= 0 {
		return fmt.Errorf("config: ingress.max_inbound_commands_per_session must be positive")
	}
	if c.Replication.MaxOutboundSnapshotsPerSession <= 0 {
		return fmt.Errorf("config: replication.max_outbound_snapshots_per_session must be positive")
	}
	if c.Replication.EntitiesPerSlice <= 0 {
		return fmt.Errorf("config: replication.entities_per_slice must be positive")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString("WORLDD_ENV", &cfg.Server.Env)
	overrideString("WORLDD_GAME_ADDR", &cfg.Server.GameAddr)
	overrideString("WORLDD_OPS_ADDR", &cfg.Server.OpsAddr)
	overrideInt("WORLDD_TICK_INTERVAL_MS", &cfg.Tick.IntervalMs)
	overrideInt("WORLDD_TICK_MAX_CATCHUP", &cfg.Tick.MaxCatchUpTicks)
	overrideBool("WORLDD_TICK_ASSERT", &cfg.Tick.AssertTickThread)
	overrideInt("WORLDD_INGRESS_MAX_COMMANDS", &cfg.Ingress.MaxInboundCommandsPerSession)
	overrideInt("WORLDD_INGRESS_MAX_BYTES", &cfg.Ingress.MaxQueuedBytesPerSession)
	overrideInt("WORLDD_OUTBOUND_MAX_SNAPSHOTS", &cfg.Replication.MaxOutboundSnapshotsPerSession)
	overrideInt("WORLDD_OUTBOUND_MAX_BYTES", &cfg.Replication.MaxQueuedBytesPerSession)
	overrideString("WORLDD_REDIS_ADDR", &cfg.Persistence.RedisAddr)
	overrideString("WORLDD_REDIS_LIST", &cfg.Persistence.RedisList)
}

func overrideString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
