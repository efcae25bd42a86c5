// Package config implements the Configuration surface of spec.md §6: the
// recognised environment variables, their defaults, and the validation
// rules applied to source URLs before a Strategy is ever constructed.
// Grounded on the domain-stack choice of github.com/caarlos0/env/v11 (the
// only corpus repo, yanhool-picoclaw, using a struct-tag env parser).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full set of recognised configuration options.
type Config struct {
	PromptRepoURL          string `env:"PROMPT_REPO_URL"`
	PromptRepoURLs         string `env:"PROMPT_REPO_URLS"`
	SystemRepoURL          string `env:"SYSTEM_REPO_URL"`
	StorageDir             string `env:"STORAGE_DIR" envDefault:"./.prompts_cache"`
	MCPGroups              string `env:"MCP_GROUPS"`
	GitBranch              string `env:"GIT_BRANCH" envDefault:"main"`
	GitMaxRetries          int    `env:"GIT_MAX_RETRIES" envDefault:"3"`
	// GitPollingIntervalMs and CacheCleanupIntervalMs are milliseconds, not
	// Go duration strings: spec.md §6 documents both as bare integers
	// (e.g. "GIT_POLLING_INTERVAL=300000"), not "300000ms"/"5m0s".
	GitPollingIntervalMs   int    `env:"GIT_POLLING_INTERVAL" envDefault:"300000"`
	WatchMode              bool   `env:"WATCH_MODE"`
	CacheCleanupIntervalMs int    `env:"CACHE_CLEANUP_INTERVAL" envDefault:"0"`
	TransportType          string `env:"TRANSPORT_TYPE" envDefault:"stdio"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile                string `env:"LOG_FILE"`
	MCPLanguage            string `env:"MCP_LANGUAGE" envDefault:"en"`
}

// ConfigError wraps a fatal misconfiguration (spec.md §7).
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Msg) }

// Load parses environment variables into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, &ConfigError{Field: "env", Msg: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RepoURLs returns the ordered, priority-ranked list of user source URLs:
// PROMPT_REPO_URLS (comma-separated) if set, else the single
// PROMPT_REPO_URL.
func (c *Config) RepoURLs() []string {
	if strings.TrimSpace(c.PromptRepoURLs) != "" {
		return splitTrim(c.PromptRepoURLs)
	}
	if strings.TrimSpace(c.PromptRepoURL) != "" {
		return []string{strings.TrimSpace(c.PromptRepoURL)}
	}
	return nil
}

// Groups returns the parsed MCP_GROUPS set.
func (c *Config) Groups() []string {
	return splitTrim(c.MCPGroups)
}

// GitPollingInterval converts GIT_POLLING_INTERVAL, documented as a bare
// millisecond integer (default 300000), into a time.Duration.
func (c *Config) GitPollingInterval() time.Duration {
	return time.Duration(c.GitPollingIntervalMs) * time.Millisecond
}

// CacheCleanupInterval converts CACHE_CLEANUP_INTERVAL, documented as a bare
// millisecond integer (default 0, meaning disabled), into a time.Duration.
func (c *Config) CacheCleanupInterval() time.Duration {
	return time.Duration(c.CacheCleanupIntervalMs) * time.Millisecond
}

// defaultHTTPAddr is used for the http/sse transports. spec.md §6 does not
// enumerate a port variable; the core treats transport framing as an
// external collaborator (spec.md §1), so a fixed loopback address mirrors
// internal/mcp/expose/http_server.go's "127.0.0.1:<port>" convention
// without inventing a new recognised option.
const defaultHTTPAddr = "127.0.0.1:8080"

// HTTPAddr returns the address the http/sse transport listens on.
func (c *Config) HTTPAddr() string { return defaultHTTPAddr }

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate applies spec.md §6's URL validation rules (reject `..`/NUL; local
// paths must be absolute) plus TRANSPORT_TYPE/MCP_LANGUAGE enum checks, and
// requires at least one user source URL.
func (c *Config) Validate() error {
	urls := c.RepoURLs()
	if len(urls) == 0 {
		return &ConfigError{Field: "PROMPT_REPO_URL(S)", Msg: "at least one source URL is required"}
	}
	for _, u := range urls {
		if err := validateURL(u); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.SystemRepoURL) != "" {
		if err := validateURL(c.SystemRepoURL); err != nil {
			return err
		}
	}
	switch c.TransportType {
	case "stdio", "http", "sse":
	default:
		return &ConfigError{Field: "TRANSPORT_TYPE", Msg: fmt.Sprintf("must be one of stdio|http|sse, got %q", c.TransportType)}
	}
	switch c.MCPLanguage {
	case "en", "zh":
	default:
		return &ConfigError{Field: "MCP_LANGUAGE", Msg: fmt.Sprintf("must be one of en|zh, got %q", c.MCPLanguage)}
	}
	return nil
}

// ValidateURL applies the same rules as Validate to a single URL/path,
// exported for switch_source (spec.md §6: "switch_source(url, branch?)")
// which must reject the same malformed values as startup configuration.
func ValidateURL(u string) error { return validateURL(u) }

func validateURL(u string) error {
	if strings.Contains(u, "..") || strings.ContainsRune(u, 0) {
		return &ConfigError{Field: "repo url", Msg: fmt.Sprintf("%q contains .. or NUL", u)}
	}
	if isGitURL(u) {
		return nil
	}
	if !strings.HasPrefix(u, "/") {
		return &ConfigError{Field: "repo url", Msg: fmt.Sprintf("local path %q must be absolute", u)}
	}
	return nil
}

func isGitURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "git@")
}
