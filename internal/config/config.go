// Package config loads recall's JSON5 configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/recall/internal/tagger"
)

// Environment overrides, applied after the file is read.
const (
	EnvConfig      = "RECALL_CONFIG"
	EnvDB          = "RECALL_DB"
	EnvTranscripts = "RECALL_TRANSCRIPTS"
	EnvMarkers     = "RECALL_MARKERS"
	EnvLogLevel    = "RECALL_LOG_LEVEL"
)

// Config is the root configuration.
type Config struct {
	// DBPath is the SQLite index file.
	DBPath string `json:"db_path"`
	// TranscriptsDir is the root scanned for *.jsonl transcripts.
	TranscriptsDir string `json:"transcripts_dir"`
	// Exclude lists glob patterns, relative to TranscriptsDir, for paths
	// the scanner skips.
	Exclude []string `json:"exclude,omitempty"`
	// MarkersDir holds <session_id>.json session marker files. Empty disables markers.
	MarkersDir string `json:"markers_dir"`

	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text or json

	// Tokenizer is a tiktoken encoding name, or "heuristic" to skip
	// loading encoding tables.
	Tokenizer string `json:"tokenizer"`

	Tagging   TaggingConfig   `json:"tagging"`
	MCP       MCPConfig       `json:"mcp"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// TaggingConfig holds user-defined tag rules.
type TaggingConfig struct {
	Rules []tagger.Rule `json:"rules,omitempty"`
}

// MCPConfig tunes the MCP server.
type MCPConfig struct {
	// ReindexPerMinute bounds full reindex requests. 0 disables the limit.
	ReindexPerMinute int `json:"reindex_per_minute"`
	// IndexOnStart runs an incremental scan before serving.
	IndexOnStart bool `json:"index_on_start"`
	// IndexSchedule is a cron expression for periodic incremental scans
	// while serving, e.g. "*/10 * * * *". Empty disables it.
	IndexSchedule string `json:"index_schedule,omitempty"`
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"` // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DBPath:         filepath.Join(dataHome(), "recall", "index.db"),
		TranscriptsDir: "~/.claude/projects",
		MarkersDir:     filepath.Join(configHome(), "context-flow", "session-markers"),
		LogLevel:       "info",
		LogFormat:      "text",
		Tokenizer:      "cl100k_base",
		MCP: MCPConfig{
			ReindexPerMinute: 2,
			IndexOnStart:     true,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "recall",
		},
	}
}

// DefaultPath returns the config file location: $RECALL_CONFIG, else
// $XDG_CONFIG_HOME/recall/config.json5.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return ExpandHome(p)
	}
	return filepath.Join(configHome(), "recall", "config.json5")
}

// Load reads the config at path over the defaults. A missing file is not
// an error. Environment overrides win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvTranscripts); v != "" {
		c.TranscriptsDir = v
	}
	if v, ok := os.LookupEnv(EnvMarkers); ok {
		c.MarkersDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) normalize() error {
	c.DBPath = ExpandHome(c.DBPath)
	c.TranscriptsDir = ExpandHome(c.TranscriptsDir)
	c.MarkersDir = ExpandHome(c.MarkersDir)

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log_format %q (want text or json)", c.LogFormat)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.MCP.ReindexPerMinute < 0 {
		return fmt.Errorf("mcp.reindex_per_minute must not be negative")
	}
	c.MCP.IndexSchedule = strings.TrimSpace(c.MCP.IndexSchedule)
	if c.MCP.IndexSchedule != "" && !gronx.New().IsValid(c.MCP.IndexSchedule) {
		return fmt.Errorf("invalid mcp.index_schedule cron expression: %s", c.MCP.IndexSchedule)
	}

	rules, err := NormalizeRules(c.Tagging.Rules)
	if err != nil {
		return err
	}
	c.Tagging.Rules = rules
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func dataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return ExpandHome("~/.local/share")
}

func configHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return ExpandHome("~/.config")
}
