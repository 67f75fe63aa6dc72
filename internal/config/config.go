package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Build     Build     `yaml:"build"`
	Preview   Preview   `yaml:"preview"`
	Prerender Prerender `yaml:"prerender"`
	API       API       `yaml:"api"`
	Output    Output    `yaml:"output"`
	Logging   Logging   `yaml:"logging"`
}

type Build struct {
	Command string `yaml:"command"`
	DistDir string `yaml:"dist_dir"`
}

type Preview struct {
	Command       string        `yaml:"command"`
	Port          int           `yaml:"port"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

type Prerender struct {
	Routes          []string      `yaml:"routes"`
	IncludeArticles bool          `yaml:"include_articles"`
	PageTimeout     time.Duration `yaml:"page_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	BrowserBin      string        `yaml:"browser_bin"`
	Serverless      bool          `yaml:"serverless"`
	NoSandbox       bool          `yaml:"no_sandbox"`
	Feed            Feed          `yaml:"feed"`
}

type Feed struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	SiteURL string `yaml:"site_url"`
}

type API struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for visibi.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "visibi")
}

// DataDir returns the XDG data directory for visibi.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "visibi")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/visibi/config.yaml > ./config.yaml.
// An empty path with a nil error means no file exists and built-in
// defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path loads the
// embedded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(DefaultConfigYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Build: Build{
			Command: "npm run build:csr",
			DistDir: "dist",
		},
		Preview: Preview{
			Command:       "npm run preview",
			Port:          5173,
			MaxRetries:    15,
			RetryInterval: 500 * time.Millisecond,
			ProbeTimeout:  time.Second,
			ShutdownGrace: time.Second,
		},
		Prerender: Prerender{
			PageTimeout: 30 * time.Second,
			SettleDelay: 500 * time.Millisecond,
			NoSandbox:   true,
			Feed:        Feed{Path: "insights/feed.xml"},
		},
		API: API{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides config values from the process environment the way the
// hosting platforms and the frontend toolchain expose them.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Preview.Port = port
	}
	if getenv("NODE_ENV") == "production" {
		c.Prerender.Serverless = true
	}
	if v := getenv("CHROME_BIN"); v != "" {
		c.Prerender.BrowserBin = v
	}
	if v := getenv("VITE_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	return nil
}

// Platform reports the hosting platform that disables pre-rendering, or ""
// when running locally. Vercel wins when both are present.
func Platform(getenv func(string) string) string {
	if getenv("VERCEL") != "" || getenv("VERCEL_ENV") != "" {
		return "VERCEL"
	}
	if getenv("RAILWAY_ENVIRONMENT") != "" || getenv("RAILWAY_SERVICE_NAME") != "" {
		return "RAILWAY"
	}
	return ""
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// PreviewURL is the address the readiness probe and the renderer target.
func (c *Config) PreviewURL() string {
	return fmt.Sprintf("http://localhost:%d", c.Preview.Port)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
