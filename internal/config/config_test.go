package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  mode: debug
log:
  level: debug
  format: text
checkpoint:
  driver: bolt
  bolt:
    path: /tmp/cp.db
stream:
  stall_timeout: 15s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "*", cfg.Server.CORSOrigin)
	assert.Equal(t, "echo", cfg.Agent.Provider)
	assert.Equal(t, []string{"set_context"}, cfg.Agent.ApprovalTools)
	assert.Equal(t, "bolt", cfg.Checkpoint.Driver)
	assert.Equal(t, "checkpoints", cfg.Checkpoint.Bolt.Bucket)
	assert.Equal(t, 15*time.Second, cfg.Stream.StallTimeout)
	assert.Equal(t, time.Hour, cfg.Checkpoint.TTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("HITL_SERVER_PORT", "9090")
	t.Setenv("HITL_SERVER_CORS_ORIGIN", "https://app.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://app.example.com", cfg.Server.CORSOrigin)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 3001, Mode: "release"},
			Log:        LogConfig{Level: "info", Format: "json"},
			Agent:      AgentConfig{Provider: "echo"},
			Checkpoint: CheckpointConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, errContains: "invalid server port"},
		{name: "bad mode", mutate: func(c *Config) { c.Server.Mode = "prod" }, errContains: "invalid server mode"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "trace" }, errContains: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, errContains: "invalid log format"},
		{name: "unknown provider", mutate: func(c *Config) { c.Agent.Provider = "llama" }, errContains: "invalid agent provider"},
		{name: "openai needs model", mutate: func(c *Config) { c.Agent.Provider = "openai" }, errContains: "agent.model is required"},
		{name: "a2a needs url", mutate: func(c *Config) { c.Agent.Provider = "a2a" }, errContains: "agent.a2a.base_url"},
		{name: "unknown driver", mutate: func(c *Config) { c.Checkpoint.Driver = "redis" }, errContains: "invalid checkpoint driver"},
		{name: "mysql needs host", mutate: func(c *Config) { c.Checkpoint.Driver = "mysql" }, errContains: "checkpoint.mysql.host"},
		{name: "negative stall timeout", mutate: func(c *Config) { c.Stream.StallTimeout = -time.Second }, errContains: "stall_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}
