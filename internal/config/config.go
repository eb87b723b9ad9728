// Package config loads layered configuration for the server and agent
// processes: defaults, then an optional YAML file, then environment
// variables (highest precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the server's HTTP surface and data directories.
type ServerConfig struct {
	ListenAddr   string `json:"listen_addr" yaml:"listen_addr" env:"REKCOD_LISTEN_ADDR"`
	ConfigDir    string `json:"config_dir" yaml:"config_dir" env:"REKCOD_CONFIG_DIR"`
	DataDir      string `json:"data_dir" yaml:"data_dir" env:"REKCOD_DATA_DIR"`
	DashboardDir string `json:"dashboard_dir" yaml:"dashboard_dir" env:"REKCOD_DASHBOARD_DIR"`
	CORSOrigins  string `json:"cors_origins" yaml:"cors_origins" env:"REKCOD_CORS_ORIGINS"`
}

// CORSOriginList splits the comma-separated CORSOrigins field. An empty
// field allows no cross-origin requests (same-origin dashboard mounts
// don't need one).
func (s ServerConfig) CORSOriginList() []string {
	if strings.TrimSpace(s.CORSOrigins) == "" {
		return nil
	}
	parts := strings.Split(s.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DatabaseConfig describes the embedded KVS store. Only Path is passed to
// kvs.Open; MaxOpenConns and MaxIdleConns are not read by it, and kvs.Open
// fixes the pool at 50 open / 3 idle connections.
type DatabaseConfig struct {
	Path         string `json:"path" yaml:"path" env:"REKCOD_DB_PATH"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns" env:"REKCOD_DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"REKCOD_DB_MAX_IDLE_CONNS"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// LivenessConfig holds node liveness timings (§4.4). node.RunLiveness does
// not read it: it sweeps every 5s with a fixed 15s offline threshold.
// cmd/rekcod-server uses SweepInterval only as its graceful-shutdown timeout.
type LivenessConfig struct {
	SweepInterval   time.Duration `json:"-" yaml:"-"`
	OfflineAfter    time.Duration `json:"-" yaml:"-"`
	SweepIntervalMS int64         `json:"sweep_interval_ms" yaml:"sweep_interval_ms" env:"REKCOD_LIVENESS_SWEEP_MS"`
	OfflineAfterMS  int64         `json:"offline_after_ms" yaml:"offline_after_ms" env:"REKCOD_LIVENESS_OFFLINE_MS"`
}

// ServerAppConfig is the full server process configuration.
type ServerAppConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Liveness LivenessConfig `json:"liveness" yaml:"liveness"`
}

// AgentConfig is the full agent process configuration.
type AgentConfig struct {
	MasterHost        string        `json:"master_host" yaml:"master_host" env:"REKCOD_MASTER_HOST"`
	Token              string        `json:"token" yaml:"token" env:"REKCOD_TOKEN"`
	ListenAddr         string        `json:"listen_addr" yaml:"listen_addr" env:"REKCOD_AGENT_LISTEN_ADDR"`
	DockerHost         string        `json:"docker_host" yaml:"docker_host" env:"DOCKER_HOST"`
	RegisterInterval   time.Duration `json:"-" yaml:"-"`
	RegisterIntervalMS int64         `json:"register_interval_ms" yaml:"register_interval_ms" env:"REKCOD_REGISTER_INTERVAL_MS"`
	Logging            LoggingConfig `json:"logging" yaml:"logging"`
}

// DefaultServerConfig returns a ServerAppConfig populated with defaults
// matching spec.md §4.1 and §4.4.
func DefaultServerConfig() *ServerAppConfig {
	return &ServerAppConfig{
		Server: ServerConfig{
			ListenAddr: "0.0.0.0:6734",
			ConfigDir:  ".",
			DataDir:    "./data",
		},
		Database: DatabaseConfig{
			Path:         "./data/rekcod.db",
			MaxOpenConns: 50,
			MaxIdleConns: 3,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Liveness: LivenessConfig{
			SweepIntervalMS: 5000,
			OfflineAfterMS:  15000,
		},
	}
}

// DefaultAgentConfig returns an AgentConfig populated with defaults matching
// spec.md §4.4 (agents register every 10s).
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		MasterHost:         "127.0.0.1:6734",
		ListenAddr:         "0.0.0.0:6735",
		RegisterIntervalMS: 10000,
		Logging:            LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadServerConfig layers defaults, an optional YAML file, and environment
// variables (highest precedence), then resolves derived duration fields.
func LoadServerConfig() (*ServerAppConfig, error) {
	_ = godotenv.Load()

	cfg := DefaultServerConfig()
	if path := strings.TrimSpace(os.Getenv("REKCOD_CONFIG_FILE")); path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !strings.Contains(err.Error(), "none of the target fields were set") {
		return nil, fmt.Errorf("decode env: %w", err)
	}

	cfg.Liveness.SweepInterval = time.Duration(cfg.Liveness.SweepIntervalMS) * time.Millisecond
	cfg.Liveness.OfflineAfter = time.Duration(cfg.Liveness.OfflineAfterMS) * time.Millisecond
	return cfg, nil
}

// LoadAgentConfig layers defaults and environment variables for the agent
// process. REKCOD_CONFIG (per spec.md §6) names an optional env file.
func LoadAgentConfig() (*AgentConfig, error) {
	if envFile := strings.TrimSpace(os.Getenv("REKCOD_CONFIG")); envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultAgentConfig()
	if err := envdecode.Decode(cfg); err != nil && !strings.Contains(err.Error(), "none of the target fields were set") {
		return nil, fmt.Errorf("decode env: %w", err)
	}

	cfg.RegisterInterval = time.Duration(cfg.RegisterIntervalMS) * time.Millisecond
	return cfg, nil
}

func loadYAMLFile(path string, cfg *ServerAppConfig) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
