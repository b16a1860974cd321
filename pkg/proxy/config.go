// Package proxy serves the HTTP façade: an OpenAI-compatible surface under
// /v1 and the native search API under /api.
package proxy

import (
	"os"
	"strconv"
	"strings"

	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 9522
)

// Config controls the HTTP server. Upstream is the embedded client config.
type Config struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	SpacesPath string   `yaml:"spaces_path"`
	Sources    []string `yaml:"default_sources"`
	Incognito  bool     `yaml:"incognito"`

	Upstream *perplexity.Config `yaml:"upstream"`
}

func (c *Config) WithDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	if strings.TrimSpace(c.Host) == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if len(c.Sources) == 0 {
		c.Sources = []string{perplexity.SourceWeb}
	}
	c.Upstream = c.Upstream.WithDefaults()
	return c
}

// ApplyEnvDefaults overlays environment variables onto unset fields. Explicit
// config always wins over the environment.
func (c *Config) ApplyEnvDefaults() {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = envOr("PERPLEXITY_BRIDGE_HOST", "")
	}
	if c.Port <= 0 {
		if port, err := strconv.Atoi(envOr("PERPLEXITY_BRIDGE_PORT", "")); err == nil && port > 0 {
			c.Port = port
		}
	}
	if strings.TrimSpace(c.SpacesPath) == "" {
		c.SpacesPath = envOr("PERPLEXITY_SPACES_PATH", "")
	}
	if c.Upstream == nil {
		c.Upstream = &perplexity.Config{}
	}
	if strings.TrimSpace(c.Upstream.CookiePath) == "" {
		c.Upstream.CookiePath = envOr("PERPLEXITY_COOKIE_PATH", "")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		c.Upstream.BaseURL = envOr("PERPLEXITY_BASE_URL", "")
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
