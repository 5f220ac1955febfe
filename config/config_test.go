package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return file
}

// TestDefaultConfig tests that the defaults are valid
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}
	if config.Init.SearchDir != "services" {
		t.Errorf("Expected search dir 'services', got '%s'", config.Init.SearchDir)
	}
	if config.Init.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", config.Init.RequestTimeout)
	}
	if len(config.Init.Hooks) != 3 {
		t.Fatalf("Expected 3 default hooks, got %d", len(config.Init.Hooks))
	}
	if config.Init.Hooks[0] != (HookConfig{Target: "server", Service: "kiln.init.Server"}) {
		t.Errorf("Unexpected first hook %+v", config.Init.Hooks[0])
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid app name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: ErrInvalidAppName,
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "moon" },
			wantErr: ErrInvalidEnvironment,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: ErrInvalidLogFormat,
		},
		{
			name:    "invalid mailbox size",
			mutate:  func(c *Config) { c.Actor.DefaultMailboxSize = 0 },
			wantErr: ErrInvalidMailboxSize,
		},
		{
			name:    "absolute search dir",
			mutate:  func(c *Config) { c.Init.SearchDir = "/srv/services" },
			wantErr: ErrInvalidSearchDir,
		},
		{
			name:    "escaping search dir",
			mutate:  func(c *Config) { c.Init.SearchDir = "../services" },
			wantErr: ErrInvalidSearchDir,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Init.RequestTimeout = -time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:   "zero timeout waits forever",
			mutate: func(c *Config) { c.Init.RequestTimeout = 0 },
		},
		{
			name:    "hook without service",
			mutate:  func(c *Config) { c.Init.Hooks = append(c.Init.Hooks, HookConfig{Target: "batch"}) },
			wantErr: ErrInvalidHook,
		},
		{
			name:    "discovery without program",
			mutate:  func(c *Config) { c.Discovery.Services = map[string]string{"kiln.init.Server": ""} },
			wantErr: ErrInvalidDiscovery,
		},
		{
			name: "invalid monitor port",
			mutate: func(c *Config) {
				c.Monitor.HTTP.Enabled = true
				c.Monitor.HTTP.Port = -1
			},
			wantErr: ErrInvalidPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoader tests configuration loading
func TestLoader(t *testing.T) {
	yamlFile := writeConfig(t, "kiln.yaml", `
app:
  name: test-app
  environment: staging

log:
  level: debug

storage:
  root: /srv/kiln

init:
  search_dir: bundles
  request_timeout: 5s
  hooks:
    - target: server
      service: my.Server

discovery:
  services:
    my.Server: hook-logger
`)

	config, err := NewLoader().LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if config.App.Name != "test-app" {
		t.Errorf("Expected app name 'test-app', got '%s'", config.App.Name)
	}
	if config.App.Environment != EnvStaging {
		t.Errorf("Expected env staging, got %v", config.App.Environment)
	}
	if config.Storage.Root != "/srv/kiln" {
		t.Errorf("Expected storage root '/srv/kiln', got '%s'", config.Storage.Root)
	}
	if config.Init.SearchDir != "bundles" {
		t.Errorf("Expected search dir 'bundles', got '%s'", config.Init.SearchDir)
	}
	if config.Init.RequestTimeout != 5*time.Second {
		t.Errorf("Expected request timeout 5s, got %v", config.Init.RequestTimeout)
	}
	if len(config.Init.Hooks) != 1 || config.Init.Hooks[0].Service != "my.Server" {
		t.Errorf("Expected hooks to be replaced, got %+v", config.Init.Hooks)
	}
	if config.Discovery.Services["my.Server"] != "hook-logger" {
		t.Errorf("Expected discovery service, got %+v", config.Discovery.Services)
	}

	// Fields absent from the file keep their defaults
	if config.Log.Format != "console" {
		t.Errorf("Expected default log format 'console', got '%s'", config.Log.Format)
	}
	if config.Actor.DefaultMailboxSize != 1000 {
		t.Errorf("Expected default mailbox size 1000, got %d", config.Actor.DefaultMailboxSize)
	}
}

// TestLoaderJSON tests JSON configuration loading
func TestLoaderJSON(t *testing.T) {
	jsonFile := writeConfig(t, "kiln.json", `{
	"app": {"name": "json-test-app", "environment": "production"},
	"log": {"level": "warn", "format": "json"},
	"init": {"request_timeout": 0}
}`)

	config, err := NewLoader().LoadFromFile(jsonFile)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}

	if config.App.Name != "json-test-app" {
		t.Errorf("Expected app name 'json-test-app', got '%s'", config.App.Name)
	}
	if config.App.Environment != EnvProduction {
		t.Errorf("Expected env production, got %v", config.App.Environment)
	}
	if config.Log.Level != LogLevelWarn {
		t.Errorf("Expected log level warn, got %v", config.Log.Level)
	}
	if config.Init.RequestTimeout != 0 {
		t.Errorf("Expected explicit zero timeout, got %v", config.Init.RequestTimeout)
	}
}

// TestLoaderErrors tests loader failure modes
func TestLoaderErrors(t *testing.T) {
	loader := NewLoader()

	if _, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrConfigFileNotFound) {
		t.Errorf("Expected ErrConfigFileNotFound, got %v", err)
	}

	if _, err := loader.LoadFromFile(writeConfig(t, "kiln.toml", "")); err == nil {
		t.Error("Expected unsupported format error")
	}

	if _, err := loader.LoadFromFile(writeConfig(t, "kiln.yaml", "app: [")); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError, got %v", err)
	}

	if _, err := loader.LoadFromFile(writeConfig(t, "kiln.yaml", "log:\n  level: loud\n")); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("Expected ErrInvalidLogLevel, got %v", err)
	}
}

// TestLoadFromReader tests loading from a reader
func TestLoadFromReader(t *testing.T) {
	config, err := NewLoader().LoadFromReader(strings.NewReader("init:\n  search_dir: apps\n"), FormatYAML)
	if err != nil {
		t.Fatalf("Failed to load config from reader: %v", err)
	}
	if config.Init.SearchDir != "apps" {
		t.Errorf("Expected search dir 'apps', got '%s'", config.Init.SearchDir)
	}
}

// TestEnvironmentOverrides tests environment variable overrides
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("KILN_APP_NAME", "env-test-app")
	t.Setenv("KILN_LOG_LEVEL", "ERROR")
	t.Setenv("KILN_STORAGE_ROOT", "/data")
	t.Setenv("KILN_INIT_SEARCH_DIR", "svc")
	t.Setenv("KILN_INIT_REQUEST_TIMEOUT", "250ms")
	t.Setenv("KILN_MONITOR_PORT", "7777")

	yamlFile := writeConfig(t, "kiln.yaml", `
app:
  name: base-app
log:
  level: info
`)

	config, err := NewLoader().LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.Name != "env-test-app" {
		t.Errorf("Expected app name 'env-test-app', got '%s'", config.App.Name)
	}
	if config.Log.Level != LogLevelError {
		t.Errorf("Expected log level error, got %v", config.Log.Level)
	}
	if config.Storage.Root != "/data" {
		t.Errorf("Expected storage root '/data', got '%s'", config.Storage.Root)
	}
	if config.Init.SearchDir != "svc" {
		t.Errorf("Expected search dir 'svc', got '%s'", config.Init.SearchDir)
	}
	if config.Init.RequestTimeout != 250*time.Millisecond {
		t.Errorf("Expected timeout 250ms, got %v", config.Init.RequestTimeout)
	}
	if config.Monitor.HTTP.Port != 7777 {
		t.Errorf("Expected port 7777, got %d", config.Monitor.HTTP.Port)
	}
}

// TestEnvironmentOverrideErrors tests malformed environment values
func TestEnvironmentOverrideErrors(t *testing.T) {
	t.Setenv("KILN_INIT_REQUEST_TIMEOUT", "soon")

	if _, err := NewLoader().Load(""); !errors.Is(err, ErrEnvironmentVarError) {
		t.Errorf("Expected ErrEnvironmentVarError, got %v", err)
	}
}

// TestAutoLoad tests automatic configuration discovery
func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	content := "app:\n  name: auto-load-app\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	loader := NewLoader().SetSearchPaths([]string{filepath.Join(dir, "missing"), dir})
	config, found, err := loader.AutoLoad()
	if err != nil {
		t.Fatalf("Failed to auto-load config: %v", err)
	}
	if config.App.Name != "auto-load-app" {
		t.Errorf("Expected app name 'auto-load-app', got '%s'", config.App.Name)
	}
	if want := filepath.Join(dir, "config.yaml"); found != want {
		t.Errorf("Expected path %s, got %s", want, found)
	}

	// Without any file the defaults are used
	config, found, err = NewLoader().SetSearchPaths([]string{t.TempDir()}).AutoLoad()
	if err != nil {
		t.Fatalf("Failed to auto-load defaults: %v", err)
	}
	if config.App.Name != "kiln" {
		t.Errorf("Expected default app name 'kiln', got '%s'", config.App.Name)
	}
	if found != "" {
		t.Errorf("Expected no path, got %s", found)
	}

	// A broken file is reported, not skipped
	broken := t.TempDir()
	if err := os.WriteFile(filepath.Join(broken, "kiln.yaml"), []byte("app: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewLoader().SetSearchPaths([]string{broken}).AutoLoad(); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError, got %v", err)
	}
}

// TestIsDebugEnabled tests the debug switch used for caller annotations
func TestIsDebugEnabled(t *testing.T) {
	config := DefaultConfig()
	config.Log.Level = LogLevelInfo
	if config.IsDebugEnabled() {
		t.Error("Info level without app.debug should not enable debug")
	}
	config.Log.Level = LogLevelTrace
	if !config.IsDebugEnabled() {
		t.Error("Trace level should enable debug")
	}
	config.Log.Level = LogLevelWarn
	config.App.Debug = true
	if !config.IsDebugEnabled() {
		t.Error("app.debug should enable debug")
	}
}

// TestDefaultsAreNotShared tests that loads do not alias the default config
func TestDefaultsAreNotShared(t *testing.T) {
	loader := NewLoader()
	first, err := loader.Load("")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	first.Init.Hooks[0].Service = "changed"

	second, err := loader.Load("")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if second.Init.Hooks[0].Service != "kiln.init.Server" {
		t.Errorf("Default hooks were modified through a loaded config")
	}
}

// TestWatcher tests configuration file watching
func TestWatcher(t *testing.T) {
	configFile := writeConfig(t, "kiln.yaml", `
log:
  level: info
`)

	watcher, err := NewWatcher(configFile, NewLoader(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if level := watcher.GetConfig().Log.Level; level != LogLevelInfo {
		t.Errorf("Expected initial log level info, got %v", level)
	}

	changeDetected := make(chan LogLevel, 1)
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		if oldConfig.Log.Level != newConfig.Log.Level {
			select {
			case changeDetected <- newConfig.Log.Level:
			default:
			}
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(configFile, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	select {
	case level := <-changeDetected:
		if level != LogLevelDebug {
			t.Errorf("Expected log level debug, got %v", level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Configuration change was not detected within timeout")
	}

	if level := watcher.GetConfig().Log.Level; level != LogLevelDebug {
		t.Errorf("Expected updated log level debug, got %v", level)
	}
}

// TestWatcherReload tests a manual reload
func TestWatcherReload(t *testing.T) {
	configFile := writeConfig(t, "kiln.yaml", "app:\n  name: before\n")

	watcher, err := NewWatcher(configFile, NewLoader(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(configFile, []byte("app:\n  name: after\n"), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}
	if err := watcher.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if name := watcher.GetConfig().App.Name; name != "after" {
		t.Errorf("Expected app name 'after', got '%s'", name)
	}

	// A broken file leaves the current configuration in place
	if err := os.WriteFile(configFile, []byte("app: ["), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}
	if err := watcher.Reload(); err == nil {
		t.Error("Expected reload error for broken file")
	}
	if name := watcher.GetConfig().App.Name; name != "after" {
		t.Errorf("Expected app name to stay 'after', got '%s'", name)
	}
}
