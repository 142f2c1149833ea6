package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

type ServerConfig struct {
	TargetOrigin string `json:"target_origin"`
	ListenPort   int    `json:"listen_port"`
	AdminAddr    string `json:"admin_addr"` // empty disables the admin API
}

type PolicyConfig struct {
	TrustedIPs     []string `json:"trusted_ips"`
	Aggressive     bool     `json:"aggressive"`
	RequestLogging bool     `json:"request_logging"`
}

type UpstreamConfig struct {
	DialTimeoutSeconds     int `json:"dial_timeout_seconds"`
	ResponseTimeoutSeconds int `json:"response_timeout_seconds"`
}

type NotifyConfig struct {
	WebhookURL        string `json:"webhook_url"`
	AuthToken         string `json:"auth_token"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	RetryCount        int    `json:"retry_count"`
	RetryDelaySeconds int    `json:"retry_delay_seconds"`
}

type SystemConfig struct {
	StateDir string `json:"state_dir"`
	LogDir   string `json:"log_dir"`
	LogLevel string `json:"log_level"`
	Debug    bool   `json:"debug"`
}

// Config is resolved once at startup and treated as immutable afterwards.
// Components receive it (or the slice of it they need) by reference.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Policy   PolicyConfig   `json:"policy"`
	Upstream UpstreamConfig `json:"upstream"`
	Notify   NotifyConfig   `json:"notify"`
	System   SystemConfig   `json:"system"`
}

// Load reads an optional JSON config file. A missing or malformed file is
// not fatal: the proxy falls back to defaults with a warning, matching the
// rule that only listener bind failure may abort startup. Flag overrides
// are applied by the caller after loading.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Printf("Warning: cannot read config file %s: %v, using defaults\n", configPath, err)
		return cfg, nil
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		fmt.Printf("Warning: failed to parse config %s: %v, using defaults\n", configPath, err)
		return Defaults(), nil
	}

	expandEnvVars(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks the parts of the configuration that must be sound before
// the listener starts.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.TargetOrigin)
	if err != nil {
		return fmt.Errorf("invalid target origin %q: %w", c.Server.TargetOrigin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target origin %q must use http or https", c.Server.TargetOrigin)
	}
	if u.Host == "" {
		return fmt.Errorf("target origin %q has no host", c.Server.TargetOrigin)
	}
	if c.Server.ListenPort <= 0 || c.Server.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.Server.ListenPort)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variables.
func expandEnvVars(cfg *Config) {
	cfg.Server.TargetOrigin = os.ExpandEnv(cfg.Server.TargetOrigin)
	cfg.System.StateDir = os.ExpandEnv(cfg.System.StateDir)
	cfg.System.LogDir = os.ExpandEnv(cfg.System.LogDir)
}

func Defaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			TargetOrigin: "http://localhost:3000",
			ListenPort:   8000,
		},
		Policy: PolicyConfig{
			TrustedIPs:     []string{},
			Aggressive:     false,
			RequestLogging: true,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.TargetOrigin == "" {
		cfg.Server.TargetOrigin = "http://localhost:3000"
	}
	if cfg.Server.ListenPort == 0 {
		cfg.Server.ListenPort = 8000
	}
	if cfg.Upstream.DialTimeoutSeconds == 0 {
		cfg.Upstream.DialTimeoutSeconds = 10
	}
	if cfg.Upstream.ResponseTimeoutSeconds == 0 {
		cfg.Upstream.ResponseTimeoutSeconds = 30
	}
	if cfg.Notify.TimeoutSeconds == 0 {
		cfg.Notify.TimeoutSeconds = 10
	}
	if cfg.Notify.RetryCount == 0 {
		cfg.Notify.RetryCount = 3
	}
	if cfg.Notify.RetryDelaySeconds == 0 {
		cfg.Notify.RetryDelaySeconds = 5
	}
	if cfg.System.StateDir == "" {
		cfg.System.StateDir = "../state"
	}
	if cfg.System.LogDir == "" {
		cfg.System.LogDir = "./logs"
	}
	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = "info"
	}
}
