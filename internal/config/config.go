// Package config loads the moray YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from "10m" style YAML strings
// as well as plain integer seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	// Server settings
	ListenAddr string `yaml:"listen_addr"`

	// Attack executor
	ExecutorAddr   string        `yaml:"executor_addr"`
	ExecutorSecret string        `yaml:"executor_secret"`
	AttackTimeout  Duration      `yaml:"attack_timeout"`

	// Targets repository
	RepoURL     string `yaml:"repo_url"`
	RepoDir     string `yaml:"repo_dir"`
	GitAuthor   string `yaml:"git_author"`
	GitEmail    string `yaml:"git_email"`
	DefaultIP   string `yaml:"default_ip"`
	RunURLBase  string `yaml:"run_url_base"`
	DataDir     string `yaml:"data_dir"`
	ReconProbes bool   `yaml:"recon_probes"`

	// Challenge platform
	CTFdURL      string `yaml:"ctfd_url"`
	CTFdEmail    string `yaml:"ctfd_email"`
	CTFdPassword string `yaml:"ctfd_password"`
	CTFdAPIKey   string `yaml:"ctfd_api_key"`

	// Notification sink
	NotifyURL string `yaml:"notify_url"`
	HookURL   string `yaml:"hook_url"`

	// Status tracker
	DebounceWindow  Duration `yaml:"debounce_window"`
	RefreshInterval Duration `yaml:"refresh_interval"`

	LogLevel string `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		ListenAddr:      ":8100",
		ExecutorAddr:    "127.0.0.1:8888",
		AttackTimeout:   Duration(10 * time.Minute),
		RepoDir:         "./targets",
		GitAuthor:       "moray bot",
		GitEmail:        "moray@bytemomo.invalid",
		DefaultIP:       "127.0.0.1",
		DataDir:         "./data",
		CTFdURL:         "https://ectf.ctfd.io",
		DebounceWindow:  Duration(3 * time.Second),
		RefreshInterval: Duration(time.Minute),
		LogLevel:        "info",
	}
}

// Load reads the config at path, falling back to defaults when the file does
// not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ExecutorAddr == "" {
		return fmt.Errorf("executor_addr is required")
	}
	if c.RepoDir == "" {
		return fmt.Errorf("repo_dir is required")
	}
	return nil
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "moray.db")
}

func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.RepoDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.DataDir, 0755)
}
