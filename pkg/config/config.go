// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the weft configuration: the YAML file, WEFT_*
// environment variables, keyring-held secrets, and the data-directory
// resolution shared by every binary. It also turns the declarative
// sections (default channels, agent subscriptions, project links) into
// inputs for the reconciler.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"golang.org/x/mod/semver"

	"github.com/teradata-labs/weft/pkg/semantic"
	"github.com/teradata-labs/weft/pkg/types"
)

const (
	// ServiceName for keyring storage.
	ServiceName = "weft"
	// DefaultConfigFileName is the config file name without extension.
	DefaultConfigFileName = "weft"
	// CurrentSchemaVersion is the config schema this build writes and
	// the newest major it accepts.
	CurrentSchemaVersion = "v1.0.0"
)

// Config holds all configuration for the weft substrate.
// Priority: config file > WEFT_* environment variables > defaults.
type Config struct {
	// DataDir is the weft data directory, resolved from
	// CLAUDE_CONFIG_DIR, WEFT_DATA_DIR, or ~/.weft. It is set during
	// load and never read from the config file.
	DataDir string `mapstructure:"-"`

	// SchemaVersion is the semver of the config schema the file was
	// written for. Files from a newer major are rejected.
	SchemaVersion string `mapstructure:"schema_version"`

	// Store configuration.
	Store StoreSettings `mapstructure:"store"`

	// DefaultChannels are auto-created on first use, globally and per
	// project.
	DefaultChannels ChannelDefaults `mapstructure:"default_channels"`

	// DefaultAgentSubscriptions are channel names every agent in the
	// scope is joined to by reconciliation.
	DefaultAgentSubscriptions SubscriptionDefaults `mapstructure:"default_agent_subscriptions"`

	// Agents declares per-agent state the reconciler converges on.
	Agents []AgentSeed `mapstructure:"agents"`

	// ProjectLinks declares cross-project visibility links.
	ProjectLinks []ProjectLink `mapstructure:"project_links"`

	// DedupWindowMinutes bounds how long an identical tool call is
	// treated as a duplicate.
	DedupWindowMinutes int `mapstructure:"dedup_window_minutes"`

	// SessionRetentionHours bounds how long inactive sessions are kept.
	SessionRetentionHours int `mapstructure:"session_retention_hours"`

	// Semantic search configuration.
	Semantic SemanticSettings `mapstructure:"semantic"`

	// Maintenance configures the retention scheduler.
	Maintenance MaintenanceSettings `mapstructure:"maintenance"`

	// Logging configuration.
	Logging LoggingSettings `mapstructure:"logging"`
}

// StoreSettings holds database configuration.
type StoreSettings struct {
	// Path to the SQLite database file. Defaults to <data dir>/weft.db.
	Path string `mapstructure:"path"`

	// Encrypt enables SQLCipher encryption at rest (cgo builds only).
	Encrypt bool `mapstructure:"encrypt"`

	// EncryptionKey comes from the keyring or WEFT_DB_KEY, never from
	// the config file.
	EncryptionKey string `mapstructure:"-"`
}

// ChannelSeed declares one channel to auto-create.
type ChannelSeed struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// ChannelDefaults lists channel seeds per scope kind.
type ChannelDefaults struct {
	Global  []ChannelSeed `mapstructure:"global"`
	Project []ChannelSeed `mapstructure:"project"`
}

// SubscriptionDefaults lists channel names agents auto-join per scope
// kind. Bare names resolve against the agent's own scope.
type SubscriptionDefaults struct {
	Global  []string `mapstructure:"global"`
	Project []string `mapstructure:"project"`
}

// AgentSeed declares one agent the reconciler keeps registered.
type AgentSeed struct {
	Name string `mapstructure:"name"`

	// Project is the agent's scope: a project id, a project path, or
	// empty for a global agent.
	Project string `mapstructure:"project"`

	Description     string `mapstructure:"description"`
	DMPolicy        string `mapstructure:"dm_policy"`
	Discoverability string `mapstructure:"discoverability"`

	// Subscriptions are channel names or handles joined on reconcile,
	// in addition to the scope's default subscriptions.
	Subscriptions []string `mapstructure:"subscriptions"`

	// AutoSubscribePatterns are globs matched against joinable open
	// channel names.
	AutoSubscribePatterns []string `mapstructure:"auto_subscribe_patterns"`
}

// ProjectLink declares a link between two projects, each a project id
// or path. A disabled link is removed on apply.
type ProjectLink struct {
	Source  string `mapstructure:"source"`
	Target  string `mapstructure:"target"`
	Type    string `mapstructure:"type"`
	Enabled *bool  `mapstructure:"enabled"`
}

// IsEnabled reports whether the link should exist. Links are enabled
// unless the config says otherwise.
func (l ProjectLink) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// SemanticSettings configures the vector index.
type SemanticSettings struct {
	Enabled bool `mapstructure:"enabled"`

	// DefaultProfile names the ranking profile used when a search
	// names none.
	DefaultProfile string `mapstructure:"default_profile"`

	// HalfLifeHoursOverride replaces every profile's recency half-life
	// when positive.
	HalfLifeHoursOverride float64 `mapstructure:"half_life_hours_override"`

	// IndexDir is where the vector collection persists. Defaults to
	// <data dir>/index.
	IndexDir string `mapstructure:"index_dir"`

	// Embedder selects a remote embedding endpoint. When BaseURL is
	// empty the built-in offline embedder is used.
	Embedder EmbedderSettings `mapstructure:"embedder"`
}

// EmbedderSettings configures an OpenAI-compatible embeddings endpoint.
type EmbedderSettings struct {
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`

	// APIKey comes from the keyring, never from the config file.
	APIKey string `mapstructure:"-"`
}

// MaintenanceSettings configures the retention scheduler.
type MaintenanceSettings struct {
	Enabled bool `mapstructure:"enabled"`

	// Schedule is a cron expression; @hourly by default.
	Schedule string `mapstructure:"schedule"`

	// SyncHistoryKeep is how many reconcile runs to keep per agent and
	// source.
	SyncHistoryKeep int `mapstructure:"sync_history_keep"`

	// TraceRetentionHours bounds how long trace spans and metrics are
	// kept.
	TraceRetentionHours int `mapstructure:"trace_retention_hours"`

	// RebuildIndex rebuilds the vector index on each sweep, dropping
	// vectors whose backing message was deleted. Off by default: a
	// rebuild re-embeds everything, which is only cheap with the
	// built-in hashing embedder.
	RebuildIndex bool `mapstructure:"rebuild_index"`
}

// LoggingSettings configures zap output.
type LoggingSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// File receives log output when set. The MCP binary always logs to
	// a file or stderr since stdout carries JSON-RPC frames.
	File string `mapstructure:"file"`
}

// DedupWindow returns the tool-call dedup window as a duration.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMinutes) * time.Minute
}

// SessionRetention returns the session retention as a duration.
func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionHours) * time.Hour
}

// TraceRetention returns the trace retention as a duration.
func (c *Config) TraceRetention() time.Duration {
	return time.Duration(c.Maintenance.TraceRetentionHours) * time.Hour
}

// LoadConfig loads configuration from the given file, or from weft.yaml
// searched in the data directory, the current directory, and /etc/weft/
// when no file is given. A missing file is not an error; defaults and
// environment variables still apply.
func LoadConfig(cfgFile string) (*Config, error) {
	// A fresh viper instance per load keeps repeated loads independent.
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetWeftDataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/weft/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
		// Config file not found; defaults and env vars apply.
	}

	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DataDir is environment-driven, not file-driven.
	config.DataDir = GetWeftDataDir()

	if err := checkSchemaVersion(config.SchemaVersion); err != nil {
		return nil, err
	}

	// Non-fatal: the keyring may be unavailable; secrets can also come
	// from the environment.
	_ = loadSecretsFromKeyring(&config)

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	dataDir := GetWeftDataDir()

	v.SetDefault("schema_version", CurrentSchemaVersion)

	v.SetDefault("store.path", filepath.Join(dataDir, "weft.db"))
	v.SetDefault("store.encrypt", false)

	v.SetDefault("default_channels.global", []map[string]interface{}{
		{"name": "general", "description": "Host-wide coordination"},
	})
	v.SetDefault("default_agent_subscriptions.global", []string{"general"})

	v.SetDefault("dedup_window_minutes", 10)
	v.SetDefault("session_retention_hours", 24)

	v.SetDefault("semantic.enabled", true)
	v.SetDefault("semantic.default_profile", semantic.DefaultProfile)
	v.SetDefault("semantic.index_dir", filepath.Join(dataDir, "index"))

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.sync_history_keep", 50)
	v.SetDefault("maintenance.trace_retention_hours", 72)
	v.SetDefault("maintenance.rebuild_index", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// checkSchemaVersion rejects config files written for a newer schema
// major than this build understands.
func checkSchemaVersion(version string) error {
	if version == "" {
		return nil
	}
	canonical := version
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return fmt.Errorf("invalid schema_version %q (want a semver like %s)", version, CurrentSchemaVersion)
	}
	if semver.Compare(semver.Major(canonical), semver.Major(CurrentSchemaVersion)) > 0 {
		return fmt.Errorf("config schema %s is newer than supported %s; upgrade weft or lower schema_version", version, CurrentSchemaVersion)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.DedupWindowMinutes < 0 {
		return fmt.Errorf("dedup_window_minutes must not be negative, got %d", c.DedupWindowMinutes)
	}
	if c.SessionRetentionHours < 0 {
		return fmt.Errorf("session_retention_hours must not be negative, got %d", c.SessionRetentionHours)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging.level: %s (must be: debug, info, warn, error)", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format: %s (must be: text, json)", c.Logging.Format)
	}

	if _, err := semantic.ProfileByName(c.Semantic.DefaultProfile); err != nil {
		return fmt.Errorf("invalid semantic.default_profile: %w", err)
	}
	if c.Semantic.HalfLifeHoursOverride < 0 {
		return fmt.Errorf("semantic.half_life_hours_override must not be negative")
	}

	if c.Maintenance.Enabled && c.Maintenance.Schedule != "" {
		if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
			return fmt.Errorf("invalid maintenance.schedule %q: %w", c.Maintenance.Schedule, err)
		}
	}

	for _, seed := range append(append([]ChannelSeed{}, c.DefaultChannels.Global...), c.DefaultChannels.Project...) {
		if !types.ValidChannelName(seed.Name) {
			return fmt.Errorf("invalid default channel name %q (must be lowercase letters, digits, hyphens)", seed.Name)
		}
	}

	for _, seed := range c.Agents {
		if !types.ValidAgentName(seed.Name) {
			return fmt.Errorf("invalid agent name %q in agents", seed.Name)
		}
		switch types.DMPolicy(seed.DMPolicy) {
		case "", types.DMOpen, types.DMRestricted, types.DMClosed:
		default:
			return fmt.Errorf("invalid dm_policy %q for agent %s (must be: open, restricted, closed)", seed.DMPolicy, seed.Name)
		}
		switch types.Discoverability(seed.Discoverability) {
		case "", types.DiscoverPublic, types.DiscoverProject, types.DiscoverPrivate:
		default:
			return fmt.Errorf("invalid discoverability %q for agent %s (must be: public, project, private)", seed.Discoverability, seed.Name)
		}
	}

	for i, link := range c.ProjectLinks {
		if link.Source == "" || link.Target == "" {
			return fmt.Errorf("project_links[%d] needs both source and target", i)
		}
		switch types.ProjectLinkType(link.Type) {
		case "", types.LinkBidirectional, types.LinkAToB, types.LinkBToA:
		default:
			return fmt.Errorf("invalid project link type %q (must be: bidirectional, a_to_b, b_to_a)", link.Type)
		}
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file.
func GenerateExampleConfig() string {
	return `# weft configuration
# Searched as weft.yaml in the data directory, the current directory,
# then /etc/weft/. Environment variables use the WEFT_ prefix with
# underscores, e.g. WEFT_DEDUP_WINDOW_MINUTES=5.
#
# The data directory itself comes from CLAUDE_CONFIG_DIR, WEFT_DATA_DIR,
# or defaults to ~/.weft.

schema_version: v1.0.0

store:
  # path: ~/.weft/weft.db
  # Encryption at rest needs a cgo build and a key in the keyring:
  #   weft config set-secret store_encryption_key
  encrypt: false

# Channels created on first use. Project entries are seeded into every
# project scope on session start.
default_channels:
  global:
    - name: general
      description: Host-wide coordination
  project:
    - name: dev
      description: Project development chat

# Channel names every agent is subscribed to, by scope kind.
default_agent_subscriptions:
  global:
    - general
  project:
    - dev

# Agents the reconciler keeps registered. project is a project path or
# id; omit it for a global agent.
agents: []
#  - name: reviewer
#    description: Reviews incoming changes
#    dm_policy: open
#    discoverability: public
#    subscriptions: [general]
#    auto_subscribe_patterns: ["dev-*"]

# Declared cross-project links. Disabled links are removed on apply.
project_links: []
#  - source: ~/work/api
#    target: ~/work/frontend
#    type: bidirectional
#    enabled: true

dedup_window_minutes: 10
session_retention_hours: 24

semantic:
  enabled: true
  # Ranking profiles: balanced, quality, recent, similarity.
  default_profile: balanced
  # half_life_hours_override: 0
  # index_dir: ~/.weft/index
  # A remote OpenAI-compatible embedder; leave base_url empty for the
  # built-in offline embedder. The API key lives in the keyring:
  #   weft config set-secret embedding_api_key
  embedder:
    base_url: ""
    model: ""
    dimension: 0

maintenance:
  enabled: true
  schedule: "@hourly"
  sync_history_keep: 50
  trace_retention_hours: 72
  # rebuild_index re-embeds everything on each sweep; leave off unless
  # the hashing embedder is in use.
  rebuild_index: false

logging:
  level: info  # debug, info, warn, error
  format: text # text, json
  # file: ~/.weft/weft.log
`
}
