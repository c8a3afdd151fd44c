package config

import "time"

// Config is the fully-resolved runtime configuration.
// Values come from defaults, then the YAML file, then the environment; the cmd layer
// applies flags last.
type Config struct {
	APIURL       string        // Base URL of the auth/installer API
	Registry     string        // npm registry the auth token is scoped to
	Channel      string        // Release track: "stable" or "preflight"
	MaxRetries   int           // Auth-start attempts before giving up
	PollInterval time.Duration // Delay between verification polls
	PollTimeout  time.Duration // Overall verification deadline
	NpmrcPath    string        // Credential store written after verification
	StatePath    string        // Install record written after a successful handoff
	SkipInstall  bool          // Authenticate only, do not download or run the installer
}

// fileConfig mirrors config.yaml. Durations are strings such as "3s" or "10m".
type fileConfig struct {
	APIURL       string `yaml:"api_url"`
	Registry     string `yaml:"registry"`
	Channel      string `yaml:"channel"`
	MaxRetries   int    `yaml:"max_retries"`
	PollInterval string `yaml:"poll_interval"`
	PollTimeout  string `yaml:"poll_timeout"`
	NpmrcPath    string `yaml:"npmrc_path"`
	StatePath    string `yaml:"state_path"`
}
