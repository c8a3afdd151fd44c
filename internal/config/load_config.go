package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cli-auth/internal/logger"
	"cli-auth/internal/npmrc"
)

const (
	DefaultAPIURL   = "https://api.cli-auth.dev"
	DefaultRegistry = npmrc.DefaultRegistry
	DefaultChannel  = "stable"

	appDir = "cli-auth"
)

// Environment variables that override the config file.
const (
	EnvAPIURL   = "CLI_AUTH_API_URL"
	EnvRegistry = "CLI_AUTH_REGISTRY"
	EnvChannel  = "CLI_AUTH_CHANNEL"
	EnvNpmrc    = "CLI_AUTH_NPMRC"
	EnvSkip     = "CLI_AUTH_SKIP"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	cfg := Config{
		APIURL:       DefaultAPIURL,
		Registry:     DefaultRegistry,
		Channel:      DefaultChannel,
		MaxRetries:   3,
		PollInterval: 3 * time.Second,
		PollTimeout:  10 * time.Minute,
		NpmrcPath:    ".npmrc",
		StatePath:    "state.json",
	}
	if path, err := npmrc.DefaultPath(); err == nil {
		cfg.NpmrcPath = path
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.StatePath = filepath.Join(dir, appDir, "state.json")
	}
	return cfg
}

// DefaultPath is where LoadConfig looks when no --config flag is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, appDir, "config.yaml")
}

// LoadConfig resolves the configuration from defaults, the YAML file at path and the
// environment (looked up through getenv). An empty path means DefaultPath(), which
// may be absent; an explicitly given file must exist.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		logger.Debug("[DEBUG] Loaded config from %s\n", path)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		logger.Debug("[DEBUG] No config file at %s, using defaults\n", path)
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	applyEnv(&cfg, getenv)
	return cfg, nil
}

// applyFile overlays the non-empty values of config.yaml.
func applyFile(cfg *Config, raw []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	setString(&cfg.APIURL, fc.APIURL)
	setString(&cfg.Registry, fc.Registry)
	setString(&cfg.Channel, fc.Channel)
	setString(&cfg.NpmrcPath, expandHome(fc.NpmrcPath))
	setString(&cfg.StatePath, expandHome(fc.StatePath))

	if fc.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", fc.MaxRetries)
	}
	if fc.MaxRetries > 0 {
		cfg.MaxRetries = fc.MaxRetries
	}
	if err := setDuration(&cfg.PollInterval, "poll_interval", fc.PollInterval); err != nil {
		return err
	}
	return setDuration(&cfg.PollTimeout, "poll_timeout", fc.PollTimeout)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	setString(&cfg.APIURL, getenv(EnvAPIURL))
	setString(&cfg.Registry, getenv(EnvRegistry))
	setString(&cfg.Channel, getenv(EnvChannel))
	setString(&cfg.NpmrcPath, expandHome(getenv(EnvNpmrc)))
	if v := getenv(EnvSkip); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("[WARN] Ignoring %s=%q: not a boolean\n", EnvSkip, v)
			return
		}
		cfg.SkipInstall = skip
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, v)
	}
	*dst = d
	return nil
}

// expandHome turns a leading "~/" into the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
