// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidPort        = errors.New("invalid port number")
	ErrInvalidMailboxSize = errors.New("invalid mailbox size")
	ErrInvalidStorageRoot = errors.New("invalid storage root")
	ErrInvalidSearchDir   = errors.New("invalid init search directory")
	ErrInvalidTimeout     = errors.New("invalid request timeout")
	ErrInvalidHook        = errors.New("invalid hook")
	ErrInvalidDiscovery   = errors.New("invalid discovery service")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
