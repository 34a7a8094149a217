// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the ilscope configuration file.
//
// Defaults are embedded; a user file only needs the keys it changes. A
// missing file is not an error.
package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/analysis"
	"github.com/AleutianAI/ilscope/services/inspect/telemetry"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultsYAML []byte

const (
	// FileName is the configuration file looked up in the working directory.
	FileName = "ilscope.yaml"

	// MaxYAMLFileSize bounds the configuration file size.
	MaxYAMLFileSize = 1 << 20

	// PasswordEnv overrides the Neo4j password, which is never read from
	// the file.
	PasswordEnv = "ILSCOPE_NEO4J_PASSWORD"

	tracerName = "config"
)

// ErrInvalidConfig is returned when the file parses but fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the full ilscope configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	Query    QueryConfig    `yaml:"query"`
	Log      LogConfig      `yaml:"log"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Watch    WatchConfig    `yaml:"watch"`
}

// QueryConfig holds the default analysis bounds. Values above the analysis
// limits are rejected.
type QueryConfig struct {
	MaxResults int `yaml:"max_results" validate:"gte=1,lte=10000"`
	MaxDepth   int `yaml:"max_depth" validate:"gte=1,lte=50"`
	MaxNodes   int `yaml:"max_nodes" validate:"gte=1,lte=5000"`
}

// LogConfig selects the slog level.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// SnapshotConfig locates the Badger snapshot store.
type SnapshotConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// Neo4jConfig is the call graph export target. An empty URI disables
// export.
type Neo4jConfig struct {
	URI      string `yaml:"uri" validate:"omitempty,uri"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Database string `yaml:"database"`
}

// MetricsConfig is the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// WatchConfig tunes document hot reload.
type WatchConfig struct {
	// Debounce coalesces bursts of file events for the same path.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

var configValidate = validator.New()

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load(context.Background(), nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load parses YAML over the embedded defaults and validates the result.
//
// Description:
//
//	Decodes the defaults, then decodes data into the same value so keys
//	absent from data keep their default. Unknown keys are rejected. The
//	Neo4j password is taken from ILSCOPE_NEO4J_PASSWORD.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML. Empty means defaults only.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Parse errors, or ErrInvalidConfig on validation failure.
func Load(ctx context.Context, data []byte) (*Config, error) {
	_, span := telemetry.StartSpan(ctx, tracerName, "config.Load")
	defer span.End()

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing defaults: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("config: parsing YAML: %w", err)
	}
	cfg.Neo4j.Password = os.Getenv(PasswordEnv)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))

	if err := configValidate.Struct(&cfg); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	span.SetAttributes(
		attribute.Int("max_results", cfg.Query.MaxResults),
		attribute.Bool("neo4j_enabled", cfg.Neo4j.URI != ""),
		attribute.Bool("metrics_enabled", cfg.Metrics.Addr != ""),
	)
	return &cfg, nil
}

// LoadFile reads the configuration at path.
//
// Description:
//
//	An empty path or a missing file yields the defaults with no error.
//	Only a file that exists but cannot be read, parsed or validated is an
//	error.
//
// Thread Safety: Safe for concurrent use (stateless function).
func LoadFile(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Load(ctx, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", slog.String("path", path))
			return Load(ctx, nil)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Load(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// QueryOptions converts the query section into analyzer defaults.
func (c *Config) QueryOptions() analysis.QueryOptions {
	return analysis.QueryOptions{
		MaxResults: c.Query.MaxResults,
		MaxDepth:   c.Query.MaxDepth,
		MaxNodes:   c.Query.MaxNodes,
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
