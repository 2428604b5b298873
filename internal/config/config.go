package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Stream     StreamConfig     `mapstructure:"stream"`
}

// ServerConfig HTTP server
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Mode               string        `mapstructure:"mode"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRequestBodySize int           `mapstructure:"max_request_body_size"`
	CORSOrigin         string        `mapstructure:"cors_origin"`
}

// LogConfig logging
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	AddSource bool   `mapstructure:"add_source"`
}

// AgentConfig agent collaborator
type AgentConfig struct {
	Provider      string    `mapstructure:"provider"` // echo, openai, deepseek, ark, a2a
	Model         string    `mapstructure:"model"`
	APIKey        string    `mapstructure:"api_key"`
	BaseURL       string    `mapstructure:"base_url"`
	SystemPrompt  string    `mapstructure:"system_prompt"`
	MaxIterations int       `mapstructure:"max_iterations"`
	ApprovalTools []string  `mapstructure:"approval_tools"` // tools that suspend the run for a human decision
	A2A           A2AConfig `mapstructure:"a2a"`
}

// A2AConfig remote A2A agent
type A2AConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CheckpointConfig checkpoint store
type CheckpointConfig struct {
	Driver string         `mapstructure:"driver"` // memory, bolt, mysql
	TTL    time.Duration  `mapstructure:"ttl"`    // memory only; 0 keeps threads forever
	Bolt   BoltConfig     `mapstructure:"bolt"`
	MySQL  DatabaseConfig `mapstructure:"mysql"`
}

// BoltConfig bbolt file store
type BoltConfig struct {
	Path    string        `mapstructure:"path"`
	Bucket  string        `mapstructure:"bucket"`
	Timeout time.Duration `mapstructure:"timeout"` // file lock wait
}

// DatabaseConfig database
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	Table           string        `mapstructure:"table"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StreamConfig SSE streaming
type StreamConfig struct {
	// StallTimeout emits a timeout status when a run is silent this long; 0 disables
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.max_request_body_size", 4) // MB
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.add_source", false)

	v.SetDefault("agent.provider", "echo")
	v.SetDefault("agent.model", "")
	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.base_url", "")
	v.SetDefault("agent.system_prompt", "You are a helpful assistant. Use tools when they help; some tools need human approval before they run.")
	v.SetDefault("agent.max_iterations", 8)
	v.SetDefault("agent.approval_tools", []string{"set_context"})
	v.SetDefault("agent.a2a.base_url", "")
	v.SetDefault("agent.a2a.timeout", "5m")

	v.SetDefault("checkpoint.driver", "memory")
	v.SetDefault("checkpoint.ttl", "1h")
	v.SetDefault("checkpoint.bolt.path", "data/checkpoints.db")
	v.SetDefault("checkpoint.bolt.bucket", "checkpoints")
	v.SetDefault("checkpoint.bolt.timeout", "1s")
	v.SetDefault("checkpoint.mysql.driver", "mysql")
	v.SetDefault("checkpoint.mysql.host", "")
	v.SetDefault("checkpoint.mysql.port", 3306)
	v.SetDefault("checkpoint.mysql.user", "")
	v.SetDefault("checkpoint.mysql.password", "")
	v.SetDefault("checkpoint.mysql.database", "")
	v.SetDefault("checkpoint.mysql.table", "chat_checkpoints")
	v.SetDefault("checkpoint.mysql.max_open_conns", 20)
	v.SetDefault("checkpoint.mysql.max_idle_conns", 5)
	v.SetDefault("checkpoint.mysql.conn_max_lifetime", "1h")

	v.SetDefault("stream.stall_timeout", "0s")
}

// Load reads the config file (optional when configPath is empty) and
// environment overrides prefixed with HITL_, e.g. HITL_SERVER_PORT.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HITL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Note: the logger is set up from this config, so nothing is logged here

	return &cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server mode: %s, must be 'debug' or 'release'", c.Server.Mode)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'text'", c.Log.Format)
	}

	switch c.Agent.Provider {
	case "echo":
	case "openai", "deepseek", "ark":
		if c.Agent.Model == "" {
			return fmt.Errorf("agent.model is required for provider %s", c.Agent.Provider)
		}
	case "a2a":
		if c.Agent.A2A.BaseURL == "" {
			return fmt.Errorf("agent.a2a.base_url is required for provider a2a")
		}
	default:
		return fmt.Errorf("invalid agent provider: %s", c.Agent.Provider)
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative")
	}

	switch c.Checkpoint.Driver {
	case "memory":
	case "bolt":
		if c.Checkpoint.Bolt.Path == "" {
			return fmt.Errorf("checkpoint.bolt.path is required")
		}
	case "mysql":
		if c.Checkpoint.MySQL.Host == "" {
			return fmt.Errorf("checkpoint.mysql.host is required")
		}
		if c.Checkpoint.MySQL.Database == "" {
			return fmt.Errorf("checkpoint.mysql.database is required")
		}
	default:
		return fmt.Errorf("invalid checkpoint driver: %s, must be 'memory', 'bolt' or 'mysql'", c.Checkpoint.Driver)
	}

	if c.Stream.StallTimeout < 0 {
		return fmt.Errorf("stream.stall_timeout must not be negative")
	}

	return nil
}

// GetServerAddr host:port
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetReadTimeout read timeout
func (c *Config) GetReadTimeout() time.Duration {
	return c.Server.ReadTimeout
}

// GetWriteTimeout write timeout; 0 disables it, which long SSE streams need
func (c *Config) GetWriteTimeout() time.Duration {
	return c.Server.WriteTimeout
}
