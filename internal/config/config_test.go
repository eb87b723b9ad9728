package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	require.Equal(t, "0.0.0.0:6734", cfg.Server.ListenAddr)
	require.Equal(t, 50, cfg.Database.MaxOpenConns)
}

func TestLoadServerConfig_EnvOverride(t *testing.T) {
	t.Setenv("REKCOD_LISTEN_ADDR", "127.0.0.1:9999")
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddr)
}

func TestLoadServerConfig_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: 10.0.0.1:6734\n"), 0o644))
	t.Setenv("REKCOD_CONFIG_FILE", path)

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:6734", cfg.Server.ListenAddr)
}

func TestServerConfig_CORSOriginList(t *testing.T) {
	cfg := ServerConfig{CORSOrigins: " https://a.example.com, https://b.example.com ,"}
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOriginList())
}

func TestServerConfig_CORSOriginList_Empty(t *testing.T) {
	cfg := ServerConfig{}
	require.Nil(t, cfg.CORSOriginList())
}

func TestLoadAgentConfig_Defaults(t *testing.T) {
	cfg, err := LoadAgentConfig()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6734", cfg.MasterHost)
	require.Equal(t, int64(10000), cfg.RegisterIntervalMS)
}
