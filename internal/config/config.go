package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
)

// Config is the top-level mdkit configuration, normally loaded from
// mdkit.yaml in the repository root.
type Config struct {
	// PackagesRoot is the directory holding one subdirectory per package.
	PackagesRoot string `yaml:"packages_root"`

	// Packages optionally pins the registry. When empty, the registry is
	// discovered by enumerating PackagesRoot.
	Packages []Package `yaml:"packages,omitempty"`

	Build   BuildConfig   `yaml:"build"`
	Watch   WatchConfig   `yaml:"watch"`
	Preview PreviewConfig `yaml:"preview"`
	History HistoryConfig `yaml:"history"`
	Metrics MetricsConfig `yaml:"metrics"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// Package describes one explicitly configured package.
type Package struct {
	Name string `yaml:"name"`
	// Dir is relative to PackagesRoot; defaults to Name.
	Dir string `yaml:"dir,omitempty"`
	// Command overrides Build.Command for this package.
	Command string `yaml:"command,omitempty"`
}

// BuildConfig controls the opaque per-package compile step.
type BuildConfig struct {
	// Command is run via the shell with the package directory as working
	// directory.
	Command string `yaml:"command"`
}

// WatchConfig controls the watch loop.
type WatchConfig struct {
	// QuietWindow is the debounce window; a burst of edits closer together
	// than this triggers a single rebuild.
	QuietWindow string `yaml:"quiet_window"`
	// RebuildInterval, when set, schedules a periodic full rebuild sweep.
	RebuildInterval string `yaml:"rebuild_interval,omitempty"`
	// StopTimeout bounds how long shutdown waits for in-flight builds.
	StopTimeout string `yaml:"stop_timeout"`
}

// PreviewConfig controls HTML preview rendering after a successful compile.
type PreviewConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	Style    string `yaml:"style"`
	// Dir is the preview output directory, relative to each package dir.
	Dir string `yaml:"dir"`
}

// HistoryConfig controls the sqlite build history. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}

// NotifyConfig controls the NATS build notification publisher. An empty URL
// disables it.
type NotifyConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Load reads, expands and validates the configuration at path.
//
// Environment variables referenced as ${VAR} in the YAML are expanded, with
// .env/.env.local loaded first (existing process env wins).
func Load(path string) (*Config, error) {
	loadDotenv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read configuration file").
			WithContext("path", path).
			Build()
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse configuration file").
			WithContext("path", path).
			Build()
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenv loads .env then .env.local; absence is not an error and
// existing process environment is never overridden.
func loadDotenv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// Validate checks the configuration for problems that must stop startup.
func (c *Config) Validate() error {
	if c.PackagesRoot == "" {
		return ferrors.ConfigError("packages_root must not be empty").Build()
	}
	if _, err := time.ParseDuration(c.Watch.QuietWindow); err != nil {
		return ferrors.ConfigError("watch.quiet_window is not a valid duration").
			WithContext("value", c.Watch.QuietWindow).
			Build()
	}
	if _, err := time.ParseDuration(c.Watch.StopTimeout); err != nil {
		return ferrors.ConfigError("watch.stop_timeout is not a valid duration").
			WithContext("value", c.Watch.StopTimeout).
			Build()
	}
	if c.Watch.RebuildInterval != "" {
		d, err := time.ParseDuration(c.Watch.RebuildInterval)
		if err != nil {
			return ferrors.ConfigError("watch.rebuild_interval is not a valid duration").
				WithContext("value", c.Watch.RebuildInterval).
				Build()
		}
		if d < time.Minute {
			return ferrors.ConfigError("watch.rebuild_interval must be at least 1m").
				WithContext("value", c.Watch.RebuildInterval).
				Build()
		}
	}

	seen := make(map[string]struct{}, len(c.Packages))
	for _, p := range c.Packages {
		if p.Name == "" {
			return ferrors.ConfigError("packages entries must have a name").Build()
		}
		if _, dup := seen[p.Name]; dup {
			return ferrors.ConfigError("duplicate package name").
				WithContext("name", p.Name).
				Build()
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// QuietWindowDuration returns the parsed quiet window. Call only after
// Validate has succeeded.
func (c *Config) QuietWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.Watch.QuietWindow)
	return d
}

// StopTimeoutDuration returns the parsed stop timeout.
func (c *Config) StopTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Watch.StopTimeout)
	return d
}

// RebuildIntervalDuration returns the parsed periodic rebuild interval, or
// zero when disabled.
func (c *Config) RebuildIntervalDuration() time.Duration {
	if c.Watch.RebuildInterval == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Watch.RebuildInterval)
	return d
}
