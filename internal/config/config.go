package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, loaded from a YAML file and
// overridden by environment variables. Every option recognized by this
// server is a field here; there is no undocumented knob.
type Config struct {
	RPC     RPCConfig     `yaml:"rpc"`
	Media   MediaConfig   `yaml:"media"`
	Turn    TurnConfig    `yaml:"turn"`
	Server  ServerConfig  `yaml:"server"`
	Control ControlConfig `yaml:"control"`
	Log     LogConfig     `yaml:"log"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

type RPCConfig struct {
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
}

type MediaConfig struct {
	MaxHeartbeatInterval time.Duration `yaml:"max_heartbeat_interval"`
}

type TurnConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	DB   TurnDBConfig  `yaml:"db"`
	CLI  TurnCLIConfig `yaml:"cli"`
}

type TurnDBConfig struct {
	Redis TurnRedisConfig `yaml:"redis"`
}

type TurnRedisConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Pass           string        `yaml:"pass"`
	DBNumber       int           `yaml:"db_number"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TurnCLIConfig describes the Coturn telnet admin interface this server
// would, in a full deployment, use to inspect/kick allocations. No client
// for it is wired (see DESIGN.md); the fields are still recognized options
// so a future CLI client has a config home without a shape change.
type TurnCLIConfig struct {
	Host string            `yaml:"host"`
	Port int               `yaml:"port"`
	Pass string            `yaml:"pass"`
	Pool TurnCLIPoolConfig `yaml:"pool"`
}

type TurnCLIPoolConfig struct {
	MaxSize        int           `yaml:"max_size"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RecycleTimeout time.Duration `yaml:"recycle_timeout"`
}

type ServerConfig struct {
	Client  ClientHTTPConfig  `yaml:"client"`
	Control ControlBindConfig `yaml:"control"`
}

type ClientHTTPConfig struct {
	BindIP    string `yaml:"bind_ip"`
	BindPort  int    `yaml:"bind_port"`
	PublicURL string `yaml:"public_url"`
}

type ControlBindConfig struct {
	BindAddr             string `yaml:"bind_addr"`
	CompletedJobsCapacity int   `yaml:"completed_jobs_capacity"`
}

type ControlConfig struct {
	StaticSpecsDir string        `yaml:"static_specs_dir"`
	Timeout        time.Duration `yaml:"timeout"`
	// JWTSecret authenticates operators calling the Control API. This is
	// not a recognized option in the distilled configuration list; it is
	// an ambient addition (see SPEC_FULL.md's DOMAIN STACK section).
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file — continue with env vars + defaults
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func (c *Config) applyEnvOverrides() {
	envDuration("MEDIA_RPC_IDLE_TIMEOUT", &c.RPC.IdleTimeout)
	envDuration("MEDIA_RPC_PING_INTERVAL", &c.RPC.PingInterval)
	envDuration("MEDIA_RPC_RECONNECT_TIMEOUT", &c.RPC.ReconnectTimeout)

	envDuration("MEDIA_MAX_HEARTBEAT_INTERVAL", &c.Media.MaxHeartbeatInterval)

	envString("MEDIA_TURN_HOST", &c.Turn.Host)
	envInt("MEDIA_TURN_PORT", &c.Turn.Port)
	envString("MEDIA_TURN_USER", &c.Turn.User)
	envString("MEDIA_TURN_PASS", &c.Turn.Pass)
	envString("MEDIA_TURN_DB_REDIS_HOST", &c.Turn.DB.Redis.Host)
	envInt("MEDIA_TURN_DB_REDIS_PORT", &c.Turn.DB.Redis.Port)
	envString("MEDIA_TURN_DB_REDIS_PASS", &c.Turn.DB.Redis.Pass)
	envInt("MEDIA_TURN_DB_REDIS_DB_NUMBER", &c.Turn.DB.Redis.DBNumber)
	envDuration("MEDIA_TURN_DB_REDIS_CONNECT_TIMEOUT", &c.Turn.DB.Redis.ConnectTimeout)
	envString("MEDIA_TURN_CLI_HOST", &c.Turn.CLI.Host)
	envInt("MEDIA_TURN_CLI_PORT", &c.Turn.CLI.Port)
	envString("MEDIA_TURN_CLI_PASS", &c.Turn.CLI.Pass)
	envInt("MEDIA_TURN_CLI_POOL_MAX_SIZE", &c.Turn.CLI.Pool.MaxSize)
	envDuration("MEDIA_TURN_CLI_POOL_WAIT_TIMEOUT", &c.Turn.CLI.Pool.WaitTimeout)
	envDuration("MEDIA_TURN_CLI_POOL_CONNECT_TIMEOUT", &c.Turn.CLI.Pool.ConnectTimeout)
	envDuration("MEDIA_TURN_CLI_POOL_RECYCLE_TIMEOUT", &c.Turn.CLI.Pool.RecycleTimeout)

	envString("MEDIA_SERVER_CLIENT_BIND_IP", &c.Server.Client.BindIP)
	envInt("MEDIA_SERVER_CLIENT_BIND_PORT", &c.Server.Client.BindPort)
	envString("MEDIA_SERVER_CLIENT_PUBLIC_URL", &c.Server.Client.PublicURL)
	envString("MEDIA_SERVER_CONTROL_BIND_ADDR", &c.Server.Control.BindAddr)
	envInt("MEDIA_SERVER_CONTROL_COMPLETED_JOBS_CAPACITY", &c.Server.Control.CompletedJobsCapacity)

	envString("MEDIA_CONTROL_STATIC_SPECS_DIR", &c.Control.StaticSpecsDir)
	envDuration("MEDIA_CONTROL_TIMEOUT", &c.Control.Timeout)
	envString("MEDIA_CONTROL_JWT_SECRET", &c.Control.JWTSecret)

	envString("MEDIA_LOG_LEVEL", &c.Log.Level)
	envDuration("MEDIA_SHUTDOWN_TIMEOUT", &c.Shutdown.Timeout)
}

func (c *Config) validate() error {
	if c.RPC.IdleTimeout <= 0 {
		return fmt.Errorf("rpc.idle_timeout must be > 0")
	}
	if c.RPC.PingInterval <= 0 {
		return fmt.Errorf("rpc.ping_interval must be > 0")
	}
	if c.RPC.PingInterval >= c.RPC.IdleTimeout {
		return fmt.Errorf("rpc.ping_interval must be less than rpc.idle_timeout")
	}
	if c.RPC.ReconnectTimeout < 0 {
		return fmt.Errorf("rpc.reconnect_timeout must be >= 0")
	}
	if c.Server.Client.BindPort == 0 {
		return fmt.Errorf("server.client.http.bind_port is required")
	}
	if c.Server.Control.CompletedJobsCapacity < 0 {
		return fmt.Errorf("server.control.completed_jobs_capacity must be >= 0")
	}
	if c.Turn.Host != "" && c.Turn.Pass == "" {
		return fmt.Errorf("turn.pass is required when turn.host is set")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.RPC.IdleTimeout == 0 {
		c.RPC.IdleTimeout = 10 * time.Second
	}
	if c.RPC.PingInterval == 0 {
		c.RPC.PingInterval = 3 * time.Second
	}
	if c.RPC.ReconnectTimeout == 0 {
		c.RPC.ReconnectTimeout = 10 * time.Second
	}
	if c.Media.MaxHeartbeatInterval == 0 {
		c.Media.MaxHeartbeatInterval = 20 * time.Second
	}
	if c.Turn.Port == 0 {
		c.Turn.Port = 3478
	}
	if c.Turn.DB.Redis.Port == 0 {
		c.Turn.DB.Redis.Port = 6379
	}
	if c.Turn.DB.Redis.ConnectTimeout == 0 {
		c.Turn.DB.Redis.ConnectTimeout = 5 * time.Second
	}
	if c.Turn.CLI.Port == 0 {
		c.Turn.CLI.Port = 5766
	}
	if c.Turn.CLI.Pool.MaxSize == 0 {
		c.Turn.CLI.Pool.MaxSize = 16
	}
	if c.Turn.CLI.Pool.WaitTimeout == 0 {
		c.Turn.CLI.Pool.WaitTimeout = 5 * time.Second
	}
	if c.Turn.CLI.Pool.ConnectTimeout == 0 {
		c.Turn.CLI.Pool.ConnectTimeout = 5 * time.Second
	}
	if c.Turn.CLI.Pool.RecycleTimeout == 0 {
		c.Turn.CLI.Pool.RecycleTimeout = 5 * time.Minute
	}
	if c.Server.Client.BindIP == "" {
		c.Server.Client.BindIP = "0.0.0.0"
	}
	if c.Server.Client.BindPort == 0 {
		c.Server.Client.BindPort = 8080
	}
	if c.Server.Client.PublicURL == "" {
		c.Server.Client.PublicURL = fmt.Sprintf("http://localhost:%d", c.Server.Client.BindPort)
	}
	if c.Server.Control.BindAddr == "" {
		c.Server.Control.BindAddr = "0.0.0.0:8000"
	}
	if c.Server.Control.CompletedJobsCapacity == 0 {
		c.Server.Control.CompletedJobsCapacity = 1000
	}
	if c.Control.Timeout == 0 {
		c.Control.Timeout = 5 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = 10 * time.Second
	}
}

// ClientAddr is the address the WebSocket channel listener binds to.
func (c *Config) ClientAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Client.BindIP, c.Server.Client.BindPort)
}
