// Package config provides YAML-based configuration loading for the CRM.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hopewell/crm/internal/configstore"
	"gopkg.in/yaml.v3"
)

// Config is the top-level CRM configuration, loaded from crm.yaml.
type Config struct {
	Owner      string           `yaml:"owner"`
	Database   DatabaseConfig   `yaml:"database"`
	StageStore StageStoreConfig `yaml:"stage_store"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Pipelines  []PipelineConfig `yaml:"pipelines"`
}

// DatabaseConfig holds connection settings for the card database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or mysql
	Path   string `yaml:"path"`   // sqlite file
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	User   string `yaml:"user"`
	Pass   string `yaml:"password"`
	Name   string `yaml:"name"`
}

// StageStoreConfig selects where customised stage sets are kept.
type StageStoreConfig struct {
	Kind      string `yaml:"kind"` // file or redis
	Dir       string `yaml:"dir"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Prefix    string `yaml:"prefix"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig controls logrus level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// PipelineConfig overrides the default stage set of a pipeline.
type PipelineConfig struct {
	ID     string        `yaml:"id"`
	Kind   string        `yaml:"kind"`  // task or seeker
	Ranks  string        `yaml:"ranks"` // priority or risk
	Stages []StageConfig `yaml:"stages"`
}

// StageConfig is one default column of a pipeline.
type StageConfig struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	Color string `yaml:"color"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "crm.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" && c.Owner != "" {
			c.Database.Name = "crm_" + c.Owner
		}
	}
	if c.StageStore.Kind == "" {
		c.StageStore.Kind = "file"
	}
	if c.StageStore.Kind == "file" && c.StageStore.Dir == "" {
		c.StageStore.Dir = ".crm/stages"
	}
	if c.StageStore.Kind == "redis" && c.StageStore.RedisAddr == "" {
		c.StageStore.RedisAddr = "127.0.0.1:6379"
	}
	if c.StageStore.Prefix == "" {
		c.StageStore.Prefix = "crm:"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Pipelines {
		if c.Pipelines[i].Kind == "" {
			c.Pipelines[i].Kind = "task"
		}
		if c.Pipelines[i].Ranks == "" {
			if c.Pipelines[i].Kind == "seeker" {
				c.Pipelines[i].Ranks = "risk"
			} else {
				c.Pipelines[i].Ranks = "priority"
			}
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Owner == "" {
		errs = append(errs, "owner is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" && c.Database.Name == "" {
		errs = append(errs, "database.name is required for mysql")
	}
	switch c.StageStore.Kind {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Sprintf("stage_store.kind %q must be file or redis", c.StageStore.Kind))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	seen := make(map[string]bool)
	for i, p := range c.Pipelines {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("pipelines[%d].id is required", i))
		} else if strings.Contains(p.ID, "/") || !configstore.ValidKey(p.ID) {
			errs = append(errs, fmt.Sprintf("pipelines[%d].id %q may only contain letters, digits, '-' and '_'", i, p.ID))
		} else if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("pipelines[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
		if p.Kind != "task" && p.Kind != "seeker" {
			errs = append(errs, fmt.Sprintf("pipelines[%d].kind %q must be task or seeker", i, p.Kind))
		}
		if p.Ranks != "priority" && p.Ranks != "risk" {
			errs = append(errs, fmt.Sprintf("pipelines[%d].ranks %q must be priority or risk", i, p.Ranks))
		}
		for j, s := range p.Stages {
			if strings.TrimSpace(s.Label) == "" {
				errs = append(errs, fmt.Sprintf("pipelines[%d].stages[%d].label is required", i, j))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
