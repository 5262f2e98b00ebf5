package config

const (
	defaultPackagesRoot = "packages"
	defaultBuildCommand = "go build ./..."
	defaultQuietWindow  = "300ms"
	defaultStopTimeout  = "30s"
	defaultPreviewStyle = "github-dark"
	defaultPreviewDir   = "dist/preview"
	defaultMetricsAddr  = ":9464"
	defaultNatsSubject  = "mdkit.builds"
)

// Default returns a configuration with every default applied, used by tests
// and by `mdkit init`.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.PackagesRoot == "" {
		c.PackagesRoot = defaultPackagesRoot
	}
	if c.Build.Command == "" {
		c.Build.Command = defaultBuildCommand
	}
	if c.Watch.QuietWindow == "" {
		c.Watch.QuietWindow = defaultQuietWindow
	}
	if c.Watch.StopTimeout == "" {
		c.Watch.StopTimeout = defaultStopTimeout
	}
	if c.Preview.Style == "" {
		c.Preview.Style = defaultPreviewStyle
	}
	if c.Preview.Dir == "" {
		c.Preview.Dir = defaultPreviewDir
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = defaultMetricsAddr
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = defaultNatsSubject
	}
	for i := range c.Packages {
		if c.Packages[i].Dir == "" {
			c.Packages[i].Dir = c.Packages[i].Name
		}
	}
}
