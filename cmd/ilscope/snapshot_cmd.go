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
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/AleutianAI/ilscope/services/inspect/snapshot"
	"github.com/spf13/cobra"
)

// loadedSnapshot is the result of "snapshot load".
type loadedSnapshot struct {
	Metadata    *snapshot.Metadata `json:"metadata"`
	ModuleNames []string           `json:"modules"`
	Restored    bool               `json:"restored"`

	Modules []*metadata.Module `json:"-"`
}

// withStore opens the snapshot store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(sess *session, m *snapshot.Manager) error) error {
	sess, err := a.ensureSession(ctx)
	if err != nil {
		return err
	}
	dir := sess.cfg.Snapshot.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	db, err := snapshot.Open(dir)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := snapshot.NewManager(db, sess.logger)
	if err != nil {
		return err
	}
	return fn(sess, m)
}

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, restore and compare workspace snapshots",
	}
	cmd.AddCommand(
		newSnapshotSaveCmd(a),
		newSnapshotLoadCmd(a),
		newSnapshotListCmd(a),
		newSnapshotDeleteCmd(a),
		newSnapshotDiffCmd(a),
	)
	return cmd
}

func newSnapshotSaveCmd(a *app) *cobra.Command {
	var name, label string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save the loaded workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.requireDocs(cmd.Context()); err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(sess *session, m *snapshot.Manager) error {
				if name == "" {
					name = sess.workspaceName()
				}
				meta, err := m.Save(cmd.Context(), sess.ws, name, label)
				if err != nil {
					return err
				}
				return a.printer().print(meta)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name (default: derived from --doc paths)")
	cmd.Flags().StringVar(&label, "label", "", "human-readable label")
	return cmd
}

func newSnapshotLoadCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "load <snapshot-id>",
		Short: "Restore a snapshot; in the shell it replaces the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(sess *session, m *snapshot.Manager) error {
				modules, meta, err := m.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				result := &loadedSnapshot{Metadata: meta, Modules: modules}
				for _, mod := range modules {
					result.ModuleNames = append(result.ModuleNames, mod.Name)
				}
				if out != "" {
					data, err := metadata.NewDocument(modules).EncodeYAML()
					if err != nil {
						return err
					}
					if err := os.WriteFile(filepath.Clean(out), data, 0o644); err != nil {
						return fmt.Errorf("writing %s: %w", out, err)
					}
				}
				if sess.interactive {
					if err := replaceModules(sess.ws, modules); err != nil {
						return err
					}
					result.Restored = true
				}
				return a.printer().print(result)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the snapshot as a metadata document")
	return cmd
}

// replaceModules swaps the workspace contents for modules.
func replaceModules(ws *metadata.Workspace, modules []*metadata.Module) error {
	for _, name := range ws.ModuleNames() {
		if err := ws.Unload(name); err != nil {
			return err
		}
	}
	return ws.Load(modules...)
}

func newSnapshotListCmd(a *app) *cobra.Command {
	var all bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots of the current workspace, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(sess *session, m *snapshot.Manager) error {
				hash := ""
				if !all {
					hash = snapshot.WorkspaceHash(sess.workspaceName())
				}
				list, err := m.List(cmd.Context(), hash, limit)
				if err != nil {
					return err
				}
				return a.printer().print(list)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list snapshots of every workspace")
	cmd.Flags().IntVar(&limit, "limit", snapshot.DefaultListLimit, "maximum snapshots to list")
	return cmd
}

func newSnapshotDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(_ *session, m *snapshot.Manager) error {
				if err := m.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				if !a.flags.json {
					fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
				}
				return nil
			})
		},
	}
}

func newSnapshotDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <base-id> [target-id]",
		Short: "Compare a snapshot with another snapshot or with the loaded workspace",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(sess *session, m *snapshot.Manager) error {
				base, _, err := m.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				var target []*metadata.Module
				targetID := ""
				if len(args) == 2 {
					targetID = args[1]
					if target, _, err = m.Load(cmd.Context(), targetID); err != nil {
						return err
					}
				} else {
					snap, release := sess.ws.Acquire()
					target = snap.Modules()
					defer release()
				}
				return a.printer().print(snapshot.DiffModules(base, target, args[0], targetID))
			})
		},
	}
}
