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
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/ilscope/services/inspect/watch"
	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const shellPrompt = "ilscope> "

// lineReader is the subset of *readline.Instance the shell uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// newLineReader is replaced in tests.
var newLineReader = func(historyFile string) (lineReader, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func newShellCmd(a *app) *cobra.Command {
	var (
		history string
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive query shell over the loaded workspace",
		Long: `Starts a read-eval loop. Each line is an ilscope command without the
program name, e.g. "callers App.Program Log". Documents given with --doc are
reloaded when they change on disk.

Meta-commands: .modules, .help, .exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			sess.interactive = true

			if !noWatch && len(sess.docs) > 0 {
				reloader, err := watch.NewReloader(sess.ws, sess.docs,
					watch.WithDebounce(sess.cfg.Watch.Debounce),
					watch.WithLogger(sess.logger),
				)
				if err != nil {
					return err
				}
				for _, path := range sess.docs {
					reloader.Track(path, sess.loaded[path])
				}
				reloader.Start(cmd.Context())
				defer reloader.Stop()
			}

			if history == "" {
				history = defaultHistoryFile()
			}
			rl, err := newLineReader(history)
			if err != nil {
				return fmt.Errorf("failed to initialize readline: %w", err)
			}
			defer rl.Close()

			return runShell(cmd.Context(), a, rl)
		},
	}
	cmd.Flags().StringVar(&history, "history", "", "history file (default ~/.ilscope/history)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload documents when they change")
	return cmd
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".ilscope")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

// runShell reads lines until EOF or .exit and runs each as a command
// against the shared session.
func runShell(ctx context.Context, a *app, rl lineReader) error {
	sessionID := uuid.NewString()
	logger := a.sess.logger.With(slog.String("shell_session", sessionID))
	logger.Debug("shell started")

	fmt.Fprintf(a.stdout, "ilscope shell %s: %d module(s) loaded. Type .help for help, .exit to quit.\n",
		sessionID[:8], len(a.sess.ws.ModuleNames()))

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(a.stdout)
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, ".") || line == "exit" || line == "quit" {
			if done := a.metaCommand(line); done {
				logger.Debug("shell exited")
				return nil
			}
			continue
		}

		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintf(a.stderr, "error (invalid_argument): %v\n", err)
			continue
		}
		if len(args) > 0 && args[0] == "shell" {
			fmt.Fprintln(a.stderr, "already in a shell")
			continue
		}

		lineApp := &app{stdout: a.stdout, stderr: a.stderr, sess: a.sess}
		if err := lineApp.run(ctx, args); err != nil {
			lineApp.printError(err)
		}
	}
}

// metaCommand handles a dot command and reports whether the shell should
// exit.
func (a *app) metaCommand(line string) bool {
	switch strings.Fields(line)[0] {
	case ".exit", ".quit", "exit", "quit":
		return true
	case ".modules":
		for _, name := range a.sess.ws.ModuleNames() {
			fmt.Fprintf(a.stdout, "  %s\n", name)
		}
	case ".help":
		fmt.Fprintln(a.stdout, "Commands are ilscope subcommands, e.g.:")
		fmt.Fprintln(a.stdout, "  callers App.Program Log")
		fmt.Fprintln(a.stdout, "  --json deps App.Circle --direction out")
		fmt.Fprintln(a.stdout, "  snapshot load <id>")
		fmt.Fprintln(a.stdout, "Meta-commands:")
		fmt.Fprintln(a.stdout, "  .modules  list loaded modules")
		fmt.Fprintln(a.stdout, "  .help     show this help")
		fmt.Fprintln(a.stdout, "  .exit     quit (also Ctrl+D)")
	default:
		fmt.Fprintf(a.stderr, "unknown meta-command %s\n", line)
	}
	return false
}

// splitArgs splits a shell line into arguments with POSIX shell quoting
// and backslash escapes. Operators such as ';' are ordinary characters, so
// unquoted opcode patterns keep their separators.
func splitArgs(line string) ([]string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", line, err)
	}
	return args, nil
}
