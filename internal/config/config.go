package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models writline.yml.
type Config struct {
	Service struct {
		BaseURL string        `yaml:"base_url" json:"base_url"`
		Timeout time.Duration `yaml:"timeout" json:"timeout"`
		Token   string        `yaml:"token" json:"-"`
	} `yaml:"service" json:"service"`
	Cache struct {
		TTL time.Duration `yaml:"ttl" json:"ttl"`
	} `yaml:"cache" json:"cache"`
	Log struct {
		Level string `yaml:"level" json:"level"`
	} `yaml:"log" json:"log"`
	Journal struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
	} `yaml:"journal" json:"journal"`
}

var logLevels = map[string]bool{"development": true, "production": true, "local": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("config.service.base_url is required")
	}
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.service.base_url must be an absolute URL, got %q", c.Service.BaseURL)
	}
	if c.Service.Timeout < 0 {
		return fmt.Errorf("config.service.timeout must not be negative")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config.cache.ttl must be positive")
	}
	if !logLevels[c.Log.Level] {
		return fmt.Errorf("config.log.level must be one of development, production, local; got %q", c.Log.Level)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "writline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with writ config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the config written by GenerateDefault.
func Default() *Config {
	cfg := &Config{}
	cfg.Service.BaseURL = "http://localhost:8080/api/"
	cfg.Service.Timeout = 30 * time.Second
	cfg.Cache.TTL = 5 * time.Minute
	cfg.Log.Level = "production"
	cfg.Journal.Enabled = true
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML pointing at baseURL.
func GenerateDefault(baseURL string) string {
	if baseURL == "" {
		baseURL = Default().Service.BaseURL
	}
	return fmt.Sprintf(defaultTemplate, baseURL)
}

const defaultTemplate = `service:
  base_url: %s
  timeout: 30s
  # token: set WRITLINE_TOKEN instead of storing it here

cache:
  ttl: 5m

log:
  level: production

journal:
  enabled: true
`
