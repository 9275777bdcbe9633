// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"paneldeploy/internal/apperrors"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Config holds the inputs of a deploy run. Inputs use the INPUT_* names a
// CI runner sets for action inputs.
type Config struct {
	APIURL      string `env:"INPUT_APIURL"`      // Base URL of the panel API
	APIKey      string `env:"INPUT_APIKEY"`      // Client API key, sent as a bearer token
	ServerID    string `env:"INPUT_SERVERID"`    // Server identifier in the API path
	UploadPath  string `env:"INPUT_UPLOADPATH"`  // Remote directory to manage
	Artifact    string `env:"INPUT_ARTIFACT"`    // Glob selecting local files
	OldArtifact string `env:"INPUT_OLDARTIFACT"` // Optional staleness regex override
	WorkDir     string `env:"INPUT_WORKDIR"`     // Directory relative globs resolve against
	MetricsFile string `env:"INPUT_METRICSFILE"` // Optional Prometheus textfile output

	Workspace string `env:"GITHUB_WORKSPACE"`
	Debug     bool   `env:"RUNNER_DEBUG"`
}

// Load reads configuration through l. Production callers pass
// envconfig.OsLookuper().
func Load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, apperrors.Configuration("", fmt.Sprintf("failed to load configuration: %v", err))
	}
	cfg.trim()
	return &cfg, nil
}

// trim drops surrounding whitespace from inputs the way action runners do.
// The artifact pattern keeps inner newlines since it may span lines.
func (c *Config) trim() {
	c.APIURL = strings.TrimSpace(c.APIURL)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ServerID = strings.TrimSpace(c.ServerID)
	c.UploadPath = strings.TrimSpace(c.UploadPath)
	c.Artifact = strings.TrimSpace(c.Artifact)
	c.OldArtifact = strings.TrimSpace(c.OldArtifact)
	c.WorkDir = strings.TrimSpace(c.WorkDir)
	c.MetricsFile = strings.TrimSpace(c.MetricsFile)
}

// Validate reports the first missing required input, then checks the API URL.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"apiUrl", c.APIURL},
		{"apiKey", c.APIKey},
		{"serverId", c.ServerID},
		{"uploadPath", c.UploadPath},
		{"artifact", c.Artifact},
	}
	for _, r := range required {
		if r.value == "" {
			return apperrors.Configuration(r.name, "input required and not supplied: "+r.name)
		}
	}

	if err := validateURL(c.APIURL); err != nil {
		return apperrors.Configuration("apiUrl", fmt.Sprintf("invalid apiUrl: %v", err))
	}
	return nil
}

// ResolveWorkDir returns the absolute directory relative artifact globs are
// resolved against: the workDir input, then the runner workspace, then the
// process working directory.
func (c *Config) ResolveWorkDir() (string, error) {
	dir := c.WorkDir
	if dir == "" {
		dir = c.Workspace
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return abs, nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
