// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/analysis"
	"github.com/AleutianAI/ilscope/services/inspect/config"
	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/AleutianAI/ilscope/services/inspect/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// globalFlags are the root persistent flags.
type globalFlags struct {
	docs       []string
	configPath string
	json       bool
	module     string
	maxResults int
	logLevel   string
}

// session is the loaded state shared by every command of one process. The
// shell keeps one session across lines.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	ws       *metadata.Workspace
	analyzer *analysis.Analyzer

	// docs are the document paths the workspace was loaded from.
	docs []string

	// loaded maps a document path to the modules it provided.
	loaded map[string][]*metadata.Module

	// interactive is set inside the shell.
	interactive bool

	metricsServer *http.Server
}

// app is one command-line invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	flags  globalFlags
	sess   *session
}

// execute runs one command line and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	err := a.run(ctx, args)
	if a.sess != nil {
		a.sess.close()
	}
	if err != nil {
		a.printError(err)
		return 1
	}
	return 0
}

func (a *app) run(ctx context.Context, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.ExecuteContext(ctx)
}

// printError writes "error (kind): message".
func (a *app) printError(err error) {
	kind := "error"
	if k := analysis.KindOf(err); k != 0 {
		kind = k.String()
	}
	fmt.Fprintf(a.stderr, "error (%s): %v\n", kind, err)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ilscope",
		Short: "Structural analysis of decoded assembly metadata",
		Long: `ilscope loads decoded module metadata documents (YAML or JSON) and answers
structural questions: usages, callers and callees, opcode patterns, call
graphs, type hierarchies and dependencies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringArrayVarP(&a.flags.docs, "doc", "d", nil, "metadata document to load (repeatable)")
	pf.StringVar(&a.flags.configPath, "config", config.FileName, "configuration file")
	pf.BoolVar(&a.flags.json, "json", false, "write results as JSON")
	pf.StringVarP(&a.flags.module, "module", "m", "", "restrict scans to modules whose name contains this text")
	pf.IntVarP(&a.flags.maxResults, "max-results", "n", 0, "maximum results (0 uses the configured default)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newResolveCmd(a),
		newUsagesCmd(a),
		newCallersCmd(a),
		newCalleesCmd(a),
		newFieldRefsCmd(a),
		newStringsCmd(a),
		newNumbersCmd(a),
		newPatternCmd(a),
		newDisasmCmd(a),
		newCallGraphCmd(a),
		newHierarchyCmd(a),
		newDerivedCmd(a),
		newImplementationsCmd(a),
		newMemberImplsCmd(a),
		newDepsCmd(a),
		newAsmDepsCmd(a),
		newSnapshotCmd(a),
		newShellCmd(a),
		newMetricsDumpCmd(a),
	)
	return root
}

// =============================================================================
// Session Setup
// =============================================================================

// ensureSession loads configuration and documents once.
func (a *app) ensureSession(ctx context.Context) (*session, error) {
	if a.sess != nil {
		return a.sess, nil
	}

	cfg, err := config.LoadFile(ctx, a.flags.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.SlogLevel()
	if a.flags.logLevel != "" {
		if err := level.UnmarshalText([]byte(a.flags.logLevel)); err != nil {
			return nil, fmt.Errorf("%w: log level %q", analysis.ErrInvalidArgument, a.flags.logLevel)
		}
	}
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	ws := metadata.NewWorkspace(metadata.WithLogger(logger))
	docs := uniquePaths(a.flags.docs)
	loaded, err := loadDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}
	for _, path := range docs {
		if err := ws.Load(loaded[path]...); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	a.sess = &session{
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		analyzer: analysis.NewAnalyzer(ws,
			analysis.WithLogger(logger),
			analysis.WithDefaults(cfg.QueryOptions()),
		),
		docs:   docs,
		loaded: loaded,
	}
	if cfg.Metrics.Addr != "" {
		if err := a.sess.startMetrics(cfg.Metrics.Addr); err != nil {
			return nil, err
		}
	}
	return a.sess, nil
}

// requireDocs rejects an empty workspace for query commands.
func (a *app) requireDocs(ctx context.Context) (*session, error) {
	sess, err := a.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	if len(sess.ws.ModuleNames()) == 0 {
		return nil, fmt.Errorf("%w: no metadata loaded; pass --doc", analysis.ErrInvalidArgument)
	}
	return sess, nil
}

// uniquePaths drops repeated document paths, keeping the first spelling of
// each file.
func uniquePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		key := filepath.Clean(path)
		if abs, err := filepath.Abs(path); err == nil {
			key = abs
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, path)
	}
	return out
}

// loadDocuments decodes documents in parallel, keyed by path. The first
// failure cancels decodes that have not started.
func loadDocuments(ctx context.Context, paths []string) (map[string][]*metadata.Module, error) {
	results := make([][]*metadata.Module, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			modules, err := metadata.LoadDocumentFile(path)
			if err != nil {
				return err
			}
			results[i] = modules
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]*metadata.Module, len(paths))
	for i, path := range paths {
		out[path] = results[i]
	}
	return out, nil
}

// workspaceName names the document set for snapshot grouping.
func (s *session) workspaceName() string {
	if len(s.docs) == 0 {
		return "default"
	}
	names := make([]string, len(s.docs))
	for i, d := range s.docs {
		names[i] = strings.TrimSuffix(filepath.Base(d), filepath.Ext(d))
	}
	return strings.Join(names, "+")
}

func (s *session) startMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	s.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", slog.Any("error", err))
		}
	}()
	s.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

func (s *session) close() {
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.metricsServer.Shutdown(ctx)
	}
}

// queryOptions converts the global flags to analysis options.
func (a *app) queryOptions() []analysis.QueryOption {
	var opts []analysis.QueryOption
	if a.flags.module != "" {
		opts = append(opts, analysis.WithModule(a.flags.module))
	}
	if a.flags.maxResults > 0 {
		opts = append(opts, analysis.WithMaxResults(a.flags.maxResults))
	}
	return opts
}
