// Package config holds gupload's runtime settings.
//
// Settings come from cobra flags bound into viper, then GUPLOAD_* environment
// variables, then defaults. Credentials are not settings: they are resolved
// by the auth package from flags and .guploadrc files only.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gupload/cli/internal/auth"
	"github.com/gupload/cli/internal/garmin"
)

// EnvPrefix is prepended to every environment variable gupload reads
const EnvPrefix = "GUPLOAD"

// Keys used in viper
const (
	KeyDebug      = "debug"
	KeyConfigName = "config-name"
	KeySSOURL     = "sso-url"
	KeyConnectURL = "connect-url"
	KeyAttempts   = "attempts"
	KeyRetryDelay = "retry-delay"
)

// OutputFormat selects how status information is printed
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// ValidateOutput checks if the given string is a supported output format
func ValidateOutput(format string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(format)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputYAML:
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q: must be 'text', 'json' or 'yaml'", format)
	}
}

// Config is the resolved runtime configuration
type Config struct {
	Debug      bool
	ConfigName string
	SSOURL     string
	ConnectURL string
	Attempts   int
	RetryDelay time.Duration
}

// NewViper returns a viper instance with gupload's defaults and env binding
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyConfigName, auth.DefaultConfigFile)
	v.SetDefault(KeySSOURL, garmin.DefaultSSOURL)
	v.SetDefault(KeyConnectURL, garmin.DefaultConnectURL)
	v.SetDefault(KeyAttempts, auth.DefaultAttempts)
	v.SetDefault(KeyRetryDelay, auth.DefaultRetryDelay.String())
	return v
}

// parseDelay reads a Go duration such as "10s" or "1m30s". A bare integer
// is a number of seconds.
func parseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 10s or a number of seconds, got %q", KeyRetryDelay, s)
	}
	return d, nil
}

// Load reads and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	delay, err := parseDelay(v.GetString(KeyRetryDelay))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Debug:      v.GetBool(KeyDebug),
		ConfigName: v.GetString(KeyConfigName),
		SSOURL:     v.GetString(KeySSOURL),
		ConnectURL: v.GetString(KeyConnectURL),
		Attempts:   v.GetInt(KeyAttempts),
		RetryDelay: delay,
	}

	if cfg.ConfigName == "" {
		return nil, fmt.Errorf("%s must not be empty", KeyConfigName)
	}
	if strings.ContainsAny(cfg.ConfigName, `/\`) {
		return nil, fmt.Errorf("%s must be a file name, got %q", KeyConfigName, cfg.ConfigName)
	}
	if cfg.Attempts < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", KeyAttempts, cfg.Attempts)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("%s must not be negative, got %s", KeyRetryDelay, cfg.RetryDelay)
	}

	return cfg, nil
}
