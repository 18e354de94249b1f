// Package config loads the runtime settings for the governance core from
// environment variables. Everything has a working default: an empty
// environment yields a usable local setup rooted in the current repository.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process-wide runtime configuration.
type Config struct {
	// RepoDir is the repository the commands operate on.
	RepoDir string `env:"ACHO_REPO_DIR" envDefault:"."`
	// StateDir holds the decision store, audit log, and derived caches.
	// Empty means <RepoDir>/.acho.
	StateDir string `env:"ACHO_STATE_DIR"`
	// ManifestPath overrides the repository-layer policy manifest.
	ManifestPath string `env:"ACHO_MANIFEST"`
	// TeamManifest and OrgManifest are the shared policy layers, typically
	// mounted or synced paths. Missing files are healthy empty layers.
	TeamManifest string `env:"ACHO_TEAM_MANIFEST"`
	OrgManifest  string `env:"ACHO_ORG_MANIFEST"`

	// Unattended answers every sensitive prompt with approval. Gates and
	// branch protection still apply.
	Unattended  bool          `env:"ACHO_UNATTENDED" envDefault:"false"`
	ToolTimeout time.Duration `env:"ACHO_TOOL_TIMEOUT" envDefault:"2m"`
	LogLevel    string        `env:"ACHO_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and fills in derived paths.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.RepoDir, ".acho")
	}
	return cfg, nil
}

// DecisionPath is the decision store file inside the state dir.
func (c *Config) DecisionPath() string { return filepath.Join(c.StateDir, "decisions.json") }

// AuditPath is the append-only audit log inside the state dir.
func (c *Config) AuditPath() string { return filepath.Join(c.StateDir, "audit.jsonl") }

// CachePath is the derived-standards cache database inside the state dir.
func (c *Config) CachePath() string { return filepath.Join(c.StateDir, "cache.db") }

// LocalManifest is the per-machine policy layer inside the state dir.
func (c *Config) LocalManifest() string { return filepath.Join(c.StateDir, "local.yaml") }

// RepoManifest is the repository policy layer, honoring ACHO_MANIFEST.
func (c *Config) RepoManifest() string {
	if c.ManifestPath != "" {
		return c.ManifestPath
	}
	return filepath.Join(c.RepoDir, ".acho.yaml")
}
