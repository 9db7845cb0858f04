package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8000", cfg.Addr())
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 64, cfg.Stream.BufferSize)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 2s
logging:
  format: json
stream:
  ping_interval: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, time.Minute, cfg.Stream.PingInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("MSGSTORE_HOST", "0.0.0.0")
	t.Setenv("MSGSTORE_PORT", "7000")
	t.Setenv("MSGSTORE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7000", cfg.Addr())
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "server: [\n"},
		{name: "port out of range", body: "server:\n  port: 70000\n"},
		{name: "unknown level", body: "logging:\n  level: loud\n"},
		{name: "unknown format", body: "logging:\n  format: xml\n"},
		{name: "zero buffer", body: "stream:\n  buffer_size: 0\n"},
		{name: "negative timeout", body: "server:\n  read_timeout: -1s\n"},
		{name: "bad env port", body: "", env: map[string]string{"MSGSTORE_PORT": "eighty"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestResolve_OverridesBeatEnv(t *testing.T) {
	t.Setenv("MSGSTORE_LOG_LEVEL", "loud")
	t.Setenv("MSGSTORE_PORT", "eighty")
	t.Setenv("MSGSTORE_HOST", "10.0.0.1")

	cfg, err := Resolve(writeConfig(t, "server:\n  port: 9090\n"), Overrides{Addr: "0.0.0.0:7000", LogLevel: "debug"})
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7000", cfg.Addr())
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestResolve_InvalidOverride(t *testing.T) {
	_, err := Resolve("", Overrides{LogLevel: "loud"})
	require.Error(t, err)

	_, err = Resolve("", Overrides{Addr: "127.0.0.1:0"})
	require.Error(t, err)

	_, err = Resolve("", Overrides{Addr: "no-port"})
	require.Error(t, err)
}

func TestSetAddr(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.SetAddr("0.0.0.0:8080"))
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)

	require.Error(t, cfg.SetAddr("no-port"))
	require.Error(t, cfg.SetAddr("host:http"))
}
