// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package config provides the configuration model for the toolgate server.
//
// All settings are read from environment variables (prefix TOOLGATE_) via
// viper. Load performs full validation; an invalid configuration fails
// startup with a message naming the offending field.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MCPSource describes one upstream MCP server that discovery reconciles
// tools from. Category and Tags are defaults applied to tools that do not
// carry their own.
type MCPSource struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// IsEnabled reports whether the source participates in sync runs.
// Sources are enabled unless explicitly disabled.
func (s *MCPSource) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Config is the full toolgate server configuration.
type Config struct {
	// Server
	Host           string
	Port           int
	MCPPort        int
	Debug          bool
	MaxRequestBody int64
	CORSOrigins    []string
	AdminAPIKey    string

	// Database
	DatabaseURL       string
	DBPoolSize        int32
	DBPoolMinConns    int32
	DBAcquireTimeout  time.Duration
	DBConnMaxLifetime time.Duration

	// Embedding service
	EmbeddingEndpoint  string
	EmbeddingAPIKey    string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingTimeout   time.Duration
	EmbeddingCacheSize int
	EmbeddingCacheOn   bool

	// LLM gateway
	GatewayURL     string
	GatewayAPIKey  string
	GatewayModel   string
	GatewayTimeout time.Duration

	// Retrieval
	SearchThreshold float64
	SearchLimit     int
	HybridSearch    bool
	HybridAlpha     float64
	FindToolTimeout time.Duration

	// Execution
	CallToolTimeout    time.Duration
	CallToolMaxTimeout time.Duration
	GoExecutorEnabled  bool
	GoExecutorAllow    []string

	// Summarization
	SummarizeEnabled       bool
	SummarizeModel         string
	SummarizeMaxTokens     int
	SummarizeTimeout       time.Duration
	SummarizeMaxInputChars int

	// Discovery
	MCPSources       []MCPSource
	DiscoveryAutoRun bool
	DiscoveryTimeout time.Duration

	// Profile: "production" tightens validation (e.g. CORS wildcard rejected).
	Profile string
}

// envDefaults maps viper keys to their default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("mcp_port", 8061)
	v.SetDefault("debug", false)
	v.SetDefault("max_request_body", 1<<20)
	v.SetDefault("cors_origins", "http://localhost:3000,http://localhost:8080")
	v.SetDefault("db_pool_size", 5)
	v.SetDefault("db_pool_min_conns", 1)
	v.SetDefault("db_acquire_timeout", "30s")
	v.SetDefault("db_conn_max_lifetime", "30m")
	v.SetDefault("embedding_model", "text-embedding-nomic-embed-text-v1.5")
	v.SetDefault("embedding_dimension", 1536)
	v.SetDefault("embedding_timeout", "30s")
	v.SetDefault("embedding_cache_size", 1024)
	v.SetDefault("embedding_cache_enabled", true)
	v.SetDefault("gateway_timeout", "60s")
	v.SetDefault("search_threshold", 0.7)
	v.SetDefault("search_limit", 5)
	v.SetDefault("hybrid_search", true)
	v.SetDefault("hybrid_alpha", 0.7)
	v.SetDefault("find_tool_timeout", "10s")
	v.SetDefault("call_tool_timeout", "30s")
	v.SetDefault("call_tool_max_timeout", "300s")
	v.SetDefault("go_executor_enabled", true)
	v.SetDefault("go_executor_allow", "")
	v.SetDefault("summarize_enabled", true)
	v.SetDefault("summarize_model", "gpt-4o-mini")
	v.SetDefault("summarize_max_tokens", 1000)
	v.SetDefault("summarize_timeout", "60s")
	v.SetDefault("summarize_max_input_chars", 32000)
	v.SetDefault("mcp_sources", "")
	v.SetDefault("discovery_auto_run", false)
	v.SetDefault("discovery_timeout", "30s")
	v.SetDefault("profile", "development")
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOOLGATE")
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		MCPPort:        v.GetInt("mcp_port"),
		Debug:          v.GetBool("debug"),
		MaxRequestBody: v.GetInt64("max_request_body"),
		CORSOrigins:    splitList(v.GetString("cors_origins")),
		AdminAPIKey:    v.GetString("admin_api_key"),

		DatabaseURL:       v.GetString("database_url"),
		DBPoolSize:        v.GetInt32("db_pool_size"),
		DBPoolMinConns:    v.GetInt32("db_pool_min_conns"),
		DBAcquireTimeout:  v.GetDuration("db_acquire_timeout"),
		DBConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),

		EmbeddingEndpoint:  v.GetString("embedding_endpoint"),
		EmbeddingAPIKey:    v.GetString("embedding_api_key"),
		EmbeddingModel:     v.GetString("embedding_model"),
		EmbeddingDimension: v.GetInt("embedding_dimension"),
		EmbeddingTimeout:   v.GetDuration("embedding_timeout"),
		EmbeddingCacheSize: v.GetInt("embedding_cache_size"),
		EmbeddingCacheOn:   v.GetBool("embedding_cache_enabled"),

		GatewayURL:     v.GetString("gateway_url"),
		GatewayAPIKey:  v.GetString("gateway_api_key"),
		GatewayModel:   v.GetString("gateway_model"),
		GatewayTimeout: v.GetDuration("gateway_timeout"),

		SearchThreshold: v.GetFloat64("search_threshold"),
		SearchLimit:     v.GetInt("search_limit"),
		HybridSearch:    v.GetBool("hybrid_search"),
		HybridAlpha:     v.GetFloat64("hybrid_alpha"),
		FindToolTimeout: v.GetDuration("find_tool_timeout"),

		CallToolTimeout:    v.GetDuration("call_tool_timeout"),
		CallToolMaxTimeout: v.GetDuration("call_tool_max_timeout"),
		GoExecutorEnabled:  v.GetBool("go_executor_enabled"),
		GoExecutorAllow:    splitList(v.GetString("go_executor_allow")),

		SummarizeEnabled:       v.GetBool("summarize_enabled"),
		SummarizeModel:         v.GetString("summarize_model"),
		SummarizeMaxTokens:     v.GetInt("summarize_max_tokens"),
		SummarizeTimeout:       v.GetDuration("summarize_timeout"),
		SummarizeMaxInputChars: v.GetInt("summarize_max_input_chars"),

		DiscoveryAutoRun: v.GetBool("discovery_auto_run"),
		DiscoveryTimeout: v.GetDuration("discovery_timeout"),

		Profile: v.GetString("profile"),
	}

	if raw := v.GetString("mcp_sources"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.MCPSources); err != nil {
			return nil, fmt.Errorf("TOOLGATE_MCP_SOURCES is not valid JSON: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MCPPort < 1 || c.MCPPort > 65535 {
		return fmt.Errorf("mcp port must be between 1 and 65535, got %d", c.MCPPort)
	}
	if c.MCPPort == c.Port {
		return fmt.Errorf("mcp port %d must differ from the HTTP port", c.MCPPort)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("TOOLGATE_DATABASE_URL is required")
	}
	if c.EmbeddingEndpoint == "" {
		return fmt.Errorf("TOOLGATE_EMBEDDING_ENDPOINT is required")
	}
	if err := validateURL("embedding endpoint", c.EmbeddingEndpoint); err != nil {
		return err
	}
	if c.GatewayURL != "" {
		if err := validateURL("gateway URL", c.GatewayURL); err != nil {
			return err
		}
	}
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 16000 {
		return fmt.Errorf("embedding dimension must be between 1 and 16000, got %d", c.EmbeddingDimension)
	}
	if c.SearchThreshold < 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("search threshold must be between 0.0 and 1.0, got %g", c.SearchThreshold)
	}
	if c.HybridAlpha < 0 || c.HybridAlpha > 1 {
		return fmt.Errorf("hybrid alpha must be between 0.0 and 1.0, got %g", c.HybridAlpha)
	}
	if c.SearchLimit < 1 || c.SearchLimit > 100 {
		return fmt.Errorf("search limit must be between 1 and 100, got %d", c.SearchLimit)
	}
	if c.DBPoolSize < 1 {
		return fmt.Errorf("db pool size must be at least 1, got %d", c.DBPoolSize)
	}
	if c.CallToolMaxTimeout < c.CallToolTimeout {
		return fmt.Errorf("call tool max timeout %s is below the default timeout %s",
			c.CallToolMaxTimeout, c.CallToolTimeout)
	}
	for i, src := range c.MCPSources {
		if src.Name == "" {
			return fmt.Errorf("mcp source %d has no name", i)
		}
		if strings.Contains(src.Name, ":") {
			return fmt.Errorf("mcp source name %q must not contain ':'", src.Name)
		}
		if err := validateURL(fmt.Sprintf("mcp source %q URL", src.Name), src.URL); err != nil {
			return err
		}
	}
	for _, origin := range c.CORSOrigins {
		if origin == "*" && c.Profile == "production" {
			return fmt.Errorf("wildcard CORS origin is not allowed in the production profile")
		}
	}
	return nil
}

// CORSAllowCredentials reports whether credentialed CORS is safe for the
// configured origins. Credentials are always stripped under a wildcard.
func (c *Config) CORSAllowCredentials() bool {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return false
		}
	}
	return true
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s %q is not a valid URL", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s %q must use http or https", field, raw)
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
