package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Stream  StreamConfig  `yaml:"stream"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// StreamConfig WebSocket 变更推送配置
type StreamConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default 返回默认配置：只监听本机 127.0.0.1:8000。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Stream: StreamConfig{
			BufferSize:   64,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Overrides 是命令行参数给出的覆盖值，空字符串表示未设置。
type Overrides struct {
	Addr     string
	LogLevel string
}

// Load 从文件加载配置，不做覆盖。
func Load(path string) (*Config, error) {
	return Resolve(path, Overrides{})
}

// Resolve 按 默认值 < 文件 < 环境变量 < 命令行 的优先级合并配置，最后统一验证。
// 被命令行覆盖的字段不再读取对应的环境变量。
func Resolve(path string, o Overrides) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(o); err != nil {
		return nil, err
	}

	if o.Addr != "" {
		if err := cfg.SetAddr(o.Addr); err != nil {
			return nil, err
		}
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// 从环境变量覆盖
func (c *Config) applyEnv(o Overrides) error {
	if o.Addr == "" {
		if host := os.Getenv("MSGSTORE_HOST"); host != "" {
			c.Server.Host = host
		}
		if raw := os.Getenv("MSGSTORE_PORT"); raw != "" {
			port, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("parse MSGSTORE_PORT %q: %w", raw, err)
			}
			c.Server.Port = port
		}
	}
	if o.LogLevel == "" {
		if level := os.Getenv("MSGSTORE_LOG_LEVEL"); level != "" {
			c.Logging.Level = level
		}
	}
	return nil
}

// SetAddr 用 host:port 形式的地址覆盖监听配置。
func (c *Config) SetAddr(addr string) error {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parse addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return fmt.Errorf("parse addr %q: %w", addr, err)
	}
	c.Server.Host = host
	c.Server.Port = port
	return nil
}

// Addr 返回监听地址。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging level %q: %w", c.Logging.Level, err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging format %q must be console or json", c.Logging.Format)
	}
	if c.Stream.BufferSize <= 0 {
		return fmt.Errorf("stream buffer_size must be positive")
	}
	if c.Stream.PingInterval <= 0 || c.Stream.WriteTimeout <= 0 {
		return fmt.Errorf("stream timeouts must be positive")
	}
	return nil
}
