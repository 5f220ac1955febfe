// Package config provides configuration management for kiln
package config

import (
	"path"
	"strings"
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// Config represents the complete kiln configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Actor system configuration
	Actor ActorConfig `yaml:"actor" json:"actor"`

	// Storage service configuration
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Init service configuration
	Init InitConfig `yaml:"init" json:"init"`

	// Well-known services published before init runs
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`

	// Application description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (console, json)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable colored output for the console format
	Color bool `yaml:"color" json:"color"`

	// Fields to include in log output
	Fields map[string]interface{} `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// ActorConfig contains actor system configuration
type ActorConfig struct {
	// Default unit mailbox size
	DefaultMailboxSize int `yaml:"default_mailbox_size" json:"default_mailbox_size"`

	// Actor timeout settings
	Timeouts ActorTimeoutConfig `yaml:"timeouts" json:"timeouts"`
}

// ActorTimeoutConfig contains actor timeout settings
type ActorTimeoutConfig struct {
	// Time allowed for host services to start
	Startup time.Duration `yaml:"startup" json:"startup"`

	// Time allowed for all units to stop
	Shutdown time.Duration `yaml:"shutdown" json:"shutdown"`
}

// StorageConfig contains storage service settings
type StorageConfig struct {
	// Directory served by the storage service
	Root string `yaml:"root" json:"root"`
}

// InitConfig contains init service settings
type InitConfig struct {
	// Storage directory holding one bundle per service
	SearchDir string `yaml:"search_dir" json:"search_dir"`

	// Bound on each collaborator request; zero waits forever
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Hooks receiving target registries after boot
	Hooks []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig names the service that receives one target registry
type HookConfig struct {
	Target  string `yaml:"target" json:"target"`
	Service string `yaml:"service" json:"service"`
}

// DiscoveryConfig lists builtin programs to run and publish under
// well-known names before init runs
type DiscoveryConfig struct {
	Services map[string]string `yaml:"services,omitempty" json:"services,omitempty"`
}

// MonitorConfig contains monitoring configuration
type MonitorConfig struct {
	// HTTP server for metrics
	HTTP HTTPMonitorConfig `yaml:"http" json:"http"`
}

// HTTPMonitorConfig contains HTTP monitoring server settings
type HTTPMonitorConfig struct {
	// Enable HTTP monitoring server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// HTTP server address
	Address string `yaml:"address" json:"address"`

	// HTTP server port
	Port int `yaml:"port" json:"port"`

	// Metrics endpoint path
	MetricsPath string `yaml:"metrics_path" json:"metrics_path"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "kiln",
			Version:     "0.1.0",
			Environment: EnvDevelopment,
			Debug:       false,
			Description: "kiln service init",
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "console",
			Output: "stderr",
			Color:  true,
		},
		Actor: ActorConfig{
			DefaultMailboxSize: 1000,
			Timeouts: ActorTimeoutConfig{
				Startup:  30 * time.Second,
				Shutdown: 10 * time.Second,
			},
		},
		Storage: StorageConfig{
			Root: ".",
		},
		Init: InitConfig{
			SearchDir:      "services",
			RequestTimeout: 30 * time.Second,
			Hooks: []HookConfig{
				{Target: "server", Service: "kiln.init.Server"},
				{Target: "client", Service: "kiln.init.Client"},
				{Target: "daemon", Service: "kiln.init.Daemon"},
			},
		},
		Monitor: MonitorConfig{
			HTTP: HTTPMonitorConfig{
				Enabled:     false,
				Address:     "127.0.0.1",
				Port:        9090,
				MetricsPath: "/metrics",
			},
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	switch c.Log.Format {
	case "console", "text", "json":
	default:
		return ErrInvalidLogFormat
	}

	// Validate actor config
	if c.Actor.DefaultMailboxSize <= 0 {
		return ErrInvalidMailboxSize
	}

	// Validate storage and init config
	if c.Storage.Root == "" {
		return ErrInvalidStorageRoot
	}
	if c.Init.SearchDir == "" || path.IsAbs(c.Init.SearchDir) || strings.HasPrefix(path.Clean(c.Init.SearchDir), "..") {
		return ErrInvalidSearchDir
	}
	if c.Init.RequestTimeout < 0 {
		return ErrInvalidTimeout
	}
	for _, h := range c.Init.Hooks {
		if h.Target == "" || h.Service == "" {
			return ErrInvalidHook
		}
	}
	for name, program := range c.Discovery.Services {
		if name == "" || program == "" {
			return ErrInvalidDiscovery
		}
	}

	// Validate monitor config
	if c.Monitor.HTTP.Enabled && (c.Monitor.HTTP.Port <= 0 || c.Monitor.HTTP.Port > 65535) {
		return ErrInvalidPort
	}

	return nil
}

// IsDebugEnabled reports whether debug output is wanted, either through
// app.debug or a debug or trace log level
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.Log.Level == LogLevelDebug || c.Log.Level == LogLevelTrace
}
