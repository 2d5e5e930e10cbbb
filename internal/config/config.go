// Package config provides YAML-based configuration loading for Forgelink.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Forgelink configuration, loaded from forgelink.yaml.
type Config struct {
	// URL is the public base URL of this Interface instance, e.g.
	// "https://relay.example.org". Also keys the checkpoint row.
	URL string `yaml:"url"`

	Server    ServerConfig    `yaml:"server"`
	Forge     ForgeConfig     `yaml:"forge"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Git       GitConfig       `yaml:"git"`
	Keys      KeysConfig      `yaml:"keys"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ForgeConfig identifies the upstream forge this instance bridges.
type ForgeConfig struct {
	// Kind selects the adapter: "gitea" or "github".
	Kind string `yaml:"kind"`
	// Host is the forge base URL, e.g. "https://gitea.example.org".
	Host string `yaml:"host"`
	// Username is the account this Interface administers on the forge.
	Username string `yaml:"username"`
	// APIKey authenticates forge API calls.
	APIKey string `yaml:"api_key"`
	// AdminEmail is used as the committer identity for applied patches.
	AdminEmail string `yaml:"admin_email"`
	// Timeout bounds individual forge HTTP calls.
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	// Backend is "sqlite" (default) or "mysql".
	Backend string `yaml:"backend"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
	// Host, Port, Name apply to the mysql backend.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// SchedulerConfig controls the background reconciliation loop.
type SchedulerConfig struct {
	// Interval between polls. Ignored when Cron is set.
	Interval time.Duration `yaml:"interval"`
	// Cron is an optional 5-field cron expression overriding Interval.
	Cron string `yaml:"cron"`
	// Epoch is the checkpoint used on first start, RFC 3339.
	Epoch string `yaml:"epoch"`
}

// GitConfig holds settings for local git working copies.
type GitConfig struct {
	// BaseDir is where managed clones live.
	BaseDir string `yaml:"base_dir"`
}

// KeysConfig locates this instance's signing keypair.
type KeysConfig struct {
	// PrivateKey is the base64-encoded ed25519 private key. Generated by
	// `forgelink keygen` when empty.
	PrivateKey string `yaml:"private_key"`
}

// DefaultEpoch is the checkpoint assumed when no row exists yet.
const DefaultEpoch = "2021-11-10T17:06:02+05:30"

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

// Domain returns the host part of the instance URL, used to match webfinger
// resources against this Interface.
func (c *Config) Domain() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 7000
	}
	if c.Forge.Kind == "" {
		c.Forge.Kind = "gitea"
	}
	if c.Forge.Timeout == 0 {
		c.Forge.Timeout = 30 * time.Second
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "forgelink.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "forgelink"
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 30 * time.Second
	}
	if c.Scheduler.Epoch == "" {
		c.Scheduler.Epoch = DefaultEpoch
	}
	if c.Git.BaseDir == "" {
		c.Git.BaseDir = "/tmp/forgelink"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.URL == "" {
		errs = append(errs, "url is required")
	} else if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, "url must be an http(s) URL")
	}
	if c.Forge.Kind != "gitea" && c.Forge.Kind != "github" {
		errs = append(errs, fmt.Sprintf("forge.kind %q is not supported (gitea, github)", c.Forge.Kind))
	}
	if c.Forge.Host == "" {
		errs = append(errs, "forge.host is required")
	} else if u, err := url.Parse(c.Forge.Host); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, "forge.host must be an http(s) URL")
	}
	if c.Forge.Username == "" {
		errs = append(errs, "forge.username is required")
	}
	if c.Database.Backend != "sqlite" && c.Database.Backend != "mysql" {
		errs = append(errs, fmt.Sprintf("database.backend %q is not supported (sqlite, mysql)", c.Database.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
