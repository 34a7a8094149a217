// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/analysis"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load failed on embedded defaults: %v", err)
	}

	if cfg.Query.MaxResults != analysis.DefaultMaxResults {
		t.Errorf("expected max_results = %d, got %d", analysis.DefaultMaxResults, cfg.Query.MaxResults)
	}
	if cfg.Query.MaxDepth != analysis.DefaultMaxDepth {
		t.Errorf("expected max_depth = %d, got %d", analysis.DefaultMaxDepth, cfg.Query.MaxDepth)
	}
	if cfg.Query.MaxNodes != analysis.DefaultMaxNodes {
		t.Errorf("expected max_nodes = %d, got %d", analysis.DefaultMaxNodes, cfg.Query.MaxNodes)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %q", cfg.Log.Level)
	}
	if cfg.Snapshot.Dir == "" {
		t.Error("expected a default snapshot dir")
	}
	if cfg.Neo4j.URI != "" {
		t.Error("expected neo4j export disabled by default")
	}
	if cfg.Metrics.Addr != "" {
		t.Error("expected metrics listener disabled by default")
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("expected debounce 250ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.QueryOptions() != analysis.DefaultQueryOptions() {
		t.Errorf("expected query options to match analyzer defaults, got %+v", cfg.QueryOptions())
	}
}

func TestLoad_Overrides(t *testing.T) {
	data := []byte(`
query:
  max_results: 25
log:
  level: DEBUG
neo4j:
  uri: bolt://localhost:7687
metrics:
  addr: localhost:9464
watch:
  debounce: 1s
`)
	t.Setenv(PasswordEnv, "s3cret")

	cfg, err := Load(context.Background(), data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Query.MaxResults != 25 {
		t.Errorf("expected max_results = 25, got %d", cfg.Query.MaxResults)
	}
	if cfg.Query.MaxDepth != analysis.DefaultMaxDepth {
		t.Errorf("absent keys should keep defaults, got max_depth = %d", cfg.Query.MaxDepth)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.SlogLevel())
	}
	if cfg.Neo4j.User != "neo4j" {
		t.Errorf("expected default neo4j user, got %q", cfg.Neo4j.User)
	}
	if cfg.Neo4j.Password != "s3cret" {
		t.Error("expected password from environment")
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
}

func TestLoad_CommentOnly(t *testing.T) {
	cfg, err := Load(context.Background(), []byte("# nothing to override\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Query.MaxResults != analysis.DefaultMaxResults {
		t.Errorf("expected defaults, got %+v", cfg.Query)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantValid bool
	}{
		{"unknown key", "query:\n  max_result: 5\n", false},
		{"results above limit", "query:\n  max_results: 20000\n", true},
		{"zero depth", "query:\n  max_depth: 0\n", true},
		{"bad level", "log:\n  level: verbose\n", true},
		{"bad uri", "neo4j:\n  uri: not a uri\n", true},
		{"bad metrics addr", "metrics:\n  addr: nowhere\n", true},
		{"negative debounce", "watch:\n  debounce: -1s\n", true},
		{"malformed", "query: [\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), []byte(tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrInvalidConfig); got != tt.wantValid {
				t.Errorf("errors.Is(ErrInvalidConfig) = %v, want %v (%v)", got, tt.wantValid, err)
			}
		})
	}
}

func TestLoad_SizeLimit(t *testing.T) {
	data := []byte(strings.Repeat("#", MaxYAMLFileSize+1))
	if _, err := Load(context.Background(), data); err == nil {
		t.Error("expected size limit error")
	}
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadFile(ctx, filepath.Join(t.TempDir(), FileName))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Query.MaxResults != analysis.DefaultMaxResults {
			t.Errorf("expected defaults, got %+v", cfg.Query)
		}
	})

	t.Run("empty path uses defaults", func(t *testing.T) {
		if _, err := LoadFile(ctx, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, []byte("snapshot:\n  dir: /var/lib/ilscope\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadFile(ctx, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Snapshot.Dir != "/var/lib/ilscope" {
			t.Errorf("expected snapshot dir override, got %q", cfg.Snapshot.Dir)
		}
	})

	t.Run("invalid file names the path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := LoadFile(ctx, path)
		if err == nil || !strings.Contains(err.Error(), path) {
			t.Errorf("expected error naming %s, got %v", path, err)
		}
	})
}

func TestDefault(t *testing.T) {
	if Default().Snapshot.Dir == "" {
		t.Error("expected defaults")
	}
}
