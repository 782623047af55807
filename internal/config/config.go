// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	Database struct {
		Path     string `json:"path" yaml:"path"`
		InMemory bool   `json:"in_memory" yaml:"in_memory"`
	} `json:"database" yaml:"database"`

	Store struct {
		CacheSize       int      `json:"cache_size" yaml:"cache_size"`
		CompressMinSize int      `json:"compress_min_size" yaml:"compress_min_size"`
		CompressLevel   int      `json:"compress_level" yaml:"compress_level"`
		Timeout         Duration `json:"timeout" yaml:"timeout"`
	} `json:"store" yaml:"store"`

	// BaseURI prefixes every minted repository, branch, revision and tag URI.
	BaseURI string `json:"base_uri" yaml:"base_uri"`

	Author struct {
		URI   string `json:"uri" yaml:"uri"`
		Name  string `json:"name" yaml:"name"`
		Email string `json:"email" yaml:"email"`
	} `json:"author" yaml:"author"`

	Environment string `json:"environment" yaml:"environment"` // dev, prod
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error, none
}

// Duration reads "5s"-style strings from JSON and YAML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a config usable without any file.
func Default() *Config {
	var c Config
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 8420
	c.Database.Path = ".circuitvc"
	c.Store.CacheSize = 256
	c.Store.CompressMinSize = 1024
	c.Store.CompressLevel = 2
	c.Store.Timeout = Duration{10 * time.Second}
	c.BaseURI = "urn:circuitvc:"
	c.Author.Name = "anonymous"
	c.Author.URI = "urn:circuitvc:person:anonymous"
	c.Environment = "development"
	c.LogLevel = "info"
	return &c
}

func getConfigPath() string {
	env := os.Getenv("CIRCUITVC_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads path (or the environment's default path when empty) over the
// defaults. JSON and YAML are chosen by extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.BaseURI == "" {
		return fmt.Errorf("base_uri is required")
	}
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database.path is required unless database.in_memory is set")
	}
	if c.Store.CacheSize <= 0 {
		return fmt.Errorf("store.cache_size must be positive")
	}
	if c.Store.Timeout.Duration < 0 {
		return fmt.Errorf("store.timeout cannot be negative")
	}
	return nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
