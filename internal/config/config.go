// Package config loads instaflow configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all instaflow configuration.
type Config struct {
	// HTTP API settings
	Server ServerConfig `yaml:"server"`

	// Credential and training-data storage
	Database DatabaseConfig `yaml:"database"`

	// Comment generation
	Gemini GeminiConfig `yaml:"gemini"`

	// Browser automation
	Browser BrowserConfig `yaml:"browser"`

	// Per-account proxy tunnels
	Proxy ProxyConfig `yaml:"proxy"`

	// Engagement agent pacing and limits
	Agent AgentConfig `yaml:"agent"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GeminiConfig configures the generation adapter.
type GeminiConfig struct {
	// APIKeys is the ordered credential rotation list.
	APIKeys []string `yaml:"api_keys"`
	Model   string   `yaml:"model"`
}

// BrowserConfig configures Chrome sessions.
type BrowserConfig struct {
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	LoginFieldTimeoutMs int    `yaml:"login_field_timeout_ms"`
	LoginNavTimeoutMs   int    `yaml:"login_nav_timeout_ms"`
	CookieDir           string `yaml:"cookie_dir"`
}

// ProxyConfig bounds the local tunnel port range.
type ProxyConfig struct {
	PortMin int `yaml:"port_min"`
	PortMax int `yaml:"port_max"`
}

// AgentConfig configures the engagement loop and scheduler.
type AgentConfig struct {
	MaxPostsPerAccount int `yaml:"max_posts_per_account"`
	MinActionDelayMs   int `yaml:"min_action_delay_ms"`
	MaxActionDelayMs   int `yaml:"max_action_delay_ms"`
	PassIntervalSec    int `yaml:"pass_interval_sec"`
	ContextFetchLimit  int `yaml:"context_fetch_limit"`
	PromptSnippets     int `yaml:"prompt_snippets"`
	SnippetMaxChars    int `yaml:"snippet_max_chars"`
	CommentMaxChars    int `yaml:"comment_max_chars"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "data/instaflow.db",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
			LoginFieldTimeoutMs: 10000,
			LoginNavTimeoutMs:   15000,
			CookieDir:           "data/cookies",
		},
		Proxy: ProxyConfig{
			PortMin: 8000,
			PortMax: 9000,
		},
		Agent: AgentConfig{
			MaxPostsPerAccount: 5,
			MinActionDelayMs:   8000,
			MaxActionDelayMs:   13000,
			PassIntervalSec:    30,
			ContextFetchLimit:  10,
			PromptSnippets:     3,
			SnippetMaxChars:    200,
			CommentMaxChars:    300,
		},
	}
}

// Load reads a YAML config file, merging it over defaults and applying
// environment overrides. A missing file yields defaults + environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers INSTAFLOW_* environment variables over the
// loaded values. Gemini keys are comma-separated.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INSTAFLOW_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("INSTAFLOW_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("INSTAFLOW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("INSTAFLOW_GEMINI_API_KEYS"); v != "" {
		keys := make([]string, 0, 4)
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Gemini.APIKeys = keys
	}
	if v := os.Getenv("INSTAFLOW_GEMINI_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("INSTAFLOW_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("INSTAFLOW_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("INSTAFLOW_COOKIE_DIR"); v != "" {
		c.Browser.CookieDir = v
	}
	if v := os.Getenv("INSTAFLOW_PASS_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.PassIntervalSec = n
		}
	}
}

// Validate rejects configurations the runtime cannot operate with.
func (c *Config) Validate() error {
	if c.Proxy.PortMin <= 0 || c.Proxy.PortMax <= c.Proxy.PortMin {
		return fmt.Errorf("config: invalid proxy port range [%d, %d)", c.Proxy.PortMin, c.Proxy.PortMax)
	}
	if c.Agent.MaxPostsPerAccount <= 0 {
		return fmt.Errorf("config: max_posts_per_account must be positive")
	}
	if c.Agent.MinActionDelayMs > c.Agent.MaxActionDelayMs {
		return fmt.Errorf("config: min_action_delay_ms exceeds max_action_delay_ms")
	}
	return nil
}

// ValidateServe adds the requirements that only apply when the HTTP API
// is exposed. Tokens must never be signed with an empty key.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("config: server.jwt_secret is required to serve the API")
	}
	return nil
}

// NavigationTimeout returns the page navigation deadline.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// LoginFieldTimeout bounds the wait for the username field.
func (c BrowserConfig) LoginFieldTimeout() time.Duration {
	if c.LoginFieldTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LoginFieldTimeoutMs) * time.Millisecond
}

// LoginNavTimeout bounds the wait for post-login navigation.
func (c BrowserConfig) LoginNavTimeout() time.Duration {
	if c.LoginNavTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.LoginNavTimeoutMs) * time.Millisecond
}

// PassInterval returns the delay between orchestrator passes.
func (c AgentConfig) PassInterval() time.Duration {
	if c.PassIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PassIntervalSec) * time.Second
}

// MinActionDelay returns the lower bound of the post-action pause.
func (c AgentConfig) MinActionDelay() time.Duration {
	return time.Duration(c.MinActionDelayMs) * time.Millisecond
}

// MaxActionDelay returns the upper bound of the post-action pause.
func (c AgentConfig) MaxActionDelay() time.Duration {
	return time.Duration(c.MaxActionDelayMs) * time.Millisecond
}
