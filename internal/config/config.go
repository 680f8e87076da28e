package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode     string         `mapstructure:"mode"`
	LogLevel string         `mapstructure:"log_level"`
	Server   ServerConfig   `mapstructure:"server"`
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Conn     ConnConfig     `mapstructure:"conn"`
	Rooms    RoomsConfig    `mapstructure:"rooms"`
}

// ServerConfig is used by the relay host only.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`
}

// EndpointConfig controls how a bare address is expanded into a ws:// URI.
type EndpointConfig struct {
	Scheme         string `mapstructure:"scheme"`
	Port           int    `mapstructure:"port"`
	Path           string `mapstructure:"path"`
	AllowHostnames bool   `mapstructure:"allow_hostnames"`
}

type ConnConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CloseTimeout   time.Duration `mapstructure:"close_timeout"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	SendQueue      int           `mapstructure:"send_queue"`
	Greeting       string        `mapstructure:"greeting"`
}

type RoomsConfig struct {
	DeleteEmpty    bool          `mapstructure:"delete_empty"`
	EchoToSender   bool          `mapstructure:"echo_to_sender"`
	HistorySize    int           `mapstructure:"history_size"`
	CreateLimit    int           `mapstructure:"create_limit"`
	CreateInterval time.Duration `mapstructure:"create_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.secret", "relay-dev-secret")

	v.SetDefault("endpoint.scheme", "ws")
	v.SetDefault("endpoint.port", 8080)
	v.SetDefault("endpoint.path", "/ws")
	v.SetDefault("endpoint.allow_hostnames", false)

	v.SetDefault("conn.connect_timeout", "10s")
	v.SetDefault("conn.close_timeout", "5s")
	v.SetDefault("conn.write_wait", "5s")
	v.SetDefault("conn.ping_period", "54s")
	v.SetDefault("conn.pong_wait", "60s")
	v.SetDefault("conn.read_limit", 32768)
	v.SetDefault("conn.send_queue", 64)
	v.SetDefault("conn.greeting", "Chatroom says hello!")

	v.SetDefault("rooms.delete_empty", true)
	v.SetDefault("rooms.echo_to_sender", false)
	v.SetDefault("rooms.history_size", 20)
	v.SetDefault("rooms.create_limit", 5)
	v.SetDefault("rooms.create_interval", "10s")
}

// Default returns the configuration with every default applied and no file
// or environment lookups. Tests and library callers start from here.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// defaults are static; a failure here is a programming error
		panic(fmt.Sprintf("config: bad defaults: %v", err))
	}
	return &cfg
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Conn.ConnectTimeout <= 0 {
		return fmt.Errorf("conn.connect_timeout must be positive, got %v", c.Conn.ConnectTimeout)
	}
	if c.Conn.CloseTimeout <= 0 {
		return fmt.Errorf("conn.close_timeout must be positive, got %v", c.Conn.CloseTimeout)
	}
	if c.Conn.PongWait <= c.Conn.PingPeriod {
		return fmt.Errorf("conn.pong_wait (%v) must be greater than conn.ping_period (%v)",
			c.Conn.PongWait, c.Conn.PingPeriod)
	}
	if c.Conn.SendQueue <= 0 {
		return fmt.Errorf("conn.send_queue must be positive, got %d", c.Conn.SendQueue)
	}
	if c.Rooms.HistorySize < 0 {
		return fmt.Errorf("rooms.history_size must not be negative, got %d", c.Rooms.HistorySize)
	}
	switch c.Endpoint.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("endpoint.scheme must be ws or wss, got %q", c.Endpoint.Scheme)
	}
	return nil
}
