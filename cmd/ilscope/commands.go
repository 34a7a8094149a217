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
	"strconv"
	"strings"

	"github.com/AleutianAI/ilscope/services/inspect/analysis"
	"github.com/AleutianAI/ilscope/services/inspect/export"
	"github.com/spf13/cobra"
)

// queryFunc runs one analysis and returns the value to print.
type queryFunc func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error)

// queryCmd builds a command that loads the workspace, runs fn and prints
// the result.
func queryCmd(a *app, use, short string, args cobra.PositionalArgs, fn queryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			sess, err := a.requireDocs(cmd.Context())
			if err != nil {
				return err
			}
			result, err := fn(cmd.Context(), sess.analyzer, argv)
			if err != nil {
				return err
			}
			return a.printer().print(result)
		},
	}
}

// optional returns args[i] or "".
func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func newResolveCmd(a *app) *cobra.Command {
	return queryCmd(a, "resolve <type> [method] [signature]", "Resolve a type or method by name",
		cobra.RangeArgs(1, 3),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			if len(args) == 1 {
				return an.ResolveType(ctx, args[0])
			}
			return an.ResolveMethod(ctx, args[0], args[1], optional(args, 2))
		})
}

func newUsagesCmd(a *app) *cobra.Command {
	return queryCmd(a, "usages <type> [member]", "Find instructions that use a type or one of its members",
		cobra.RangeArgs(1, 2),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindUsages(ctx, args[0], optional(args, 1), a.queryOptions()...)
		})
}

func newCallersCmd(a *app) *cobra.Command {
	return queryCmd(a, "callers <type> <method>", "Find call sites of a method",
		cobra.ExactArgs(2),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindCallers(ctx, args[0], args[1], a.queryOptions()...)
		})
}

func newCalleesCmd(a *app) *cobra.Command {
	return queryCmd(a, "callees <type> <method> [signature]", "List the calls made by a method",
		cobra.RangeArgs(2, 3),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindCallees(ctx, args[0], args[1], optional(args, 2), a.queryOptions()...)
		})
}

func newFieldRefsCmd(a *app) *cobra.Command {
	return queryCmd(a, "field-refs <type> <field>", "Find reads, writes and address-of uses of a field",
		cobra.ExactArgs(2),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindFieldReferences(ctx, args[0], args[1], a.queryOptions()...)
		})
}

func newStringsCmd(a *app) *cobra.Command {
	return queryCmd(a, "strings <text>", "Find string literals equal to text",
		cobra.ExactArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindStringUsages(ctx, args[0], a.queryOptions()...)
		})
}

func newNumbersCmd(a *app) *cobra.Command {
	return queryCmd(a, "numbers <value>", "Find integer constants equal to value",
		cobra.ExactArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			v, err := strconv.ParseInt(args[0], 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: not an integer: %q", analysis.ErrInvalidArgument, args[0])
			}
			return an.FindNumberUsages(ctx, v, a.queryOptions()...)
		})
}

func newPatternCmd(a *app) *cobra.Command {
	return queryCmd(a, "pattern <opcodes>", `Find instruction windows matching an opcode pattern, e.g. "ldarg.0; ldfld; call*"`,
		cobra.MinimumNArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindOpcodePattern(ctx, strings.Join(args, " "), a.queryOptions()...)
		})
}

func newDisasmCmd(a *app) *cobra.Command {
	return queryCmd(a, "disasm <type> <method> [signature]", "Print a method body",
		cobra.RangeArgs(2, 3),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.DisassembleMethod(ctx, args[0], args[1], optional(args, 2))
		})
}

func newCallGraphCmd(a *app) *cobra.Command {
	var (
		maxDepth int
		maxNodes int
		toNeo4j  bool
	)
	cmd := queryCmd(a, "callgraph <type> <method> [signature]", "Build a bounded call graph rooted at a method",
		cobra.RangeArgs(2, 3),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			opts := a.queryOptions()
			if maxDepth > 0 {
				opts = append(opts, analysis.WithMaxDepth(maxDepth))
			}
			if maxNodes > 0 {
				opts = append(opts, analysis.WithMaxNodes(maxNodes))
			}
			graph, err := an.BuildCallGraph(ctx, args[0], args[1], optional(args, 2), opts...)
			if err != nil {
				return nil, err
			}
			if toNeo4j {
				if err := a.exportGraph(ctx, graph); err != nil {
					return nil, err
				}
			}
			return graph, nil
		})
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum call depth (0 uses the configured default)")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "maximum graph nodes (0 uses the configured default)")
	cmd.Flags().BoolVar(&toNeo4j, "neo4j", false, "also write the graph to the configured Neo4j database")
	return cmd
}

// exportGraph writes graph to the configured Neo4j database.
func (a *app) exportGraph(ctx context.Context, graph *analysis.CallGraph) error {
	cfg := a.sess.cfg.Neo4j
	if cfg.URI == "" {
		return fmt.Errorf("%w: --neo4j needs neo4j.uri in %s", analysis.ErrInvalidArgument, a.flags.configPath)
	}
	exporter, err := export.NewNeo4jExporter(ctx, cfg.URI, cfg.User, cfg.Password, cfg.Database,
		export.WithLogger(a.sess.logger))
	if err != nil {
		return err
	}
	defer exporter.Close(ctx)
	return exporter.ExportCallGraph(ctx, graph)
}

func newHierarchyCmd(a *app) *cobra.Command {
	return queryCmd(a, "hierarchy <type>", "Show a type's base chain and interface closure",
		cobra.ExactArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.GetTypeHierarchy(ctx, args[0])
		})
}

func newDerivedCmd(a *app) *cobra.Command {
	return queryCmd(a, "derived <type>", "Find types whose base chain reaches a type",
		cobra.ExactArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindDerivedTypes(ctx, args[0], a.queryOptions()...)
		})
}

func newImplementationsCmd(a *app) *cobra.Command {
	return queryCmd(a, "implementations <interface>", "Find types implementing an interface",
		cobra.ExactArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindImplementations(ctx, args[0], a.queryOptions()...)
		})
}

func newMemberImplsCmd(a *app) *cobra.Command {
	return queryCmd(a, "member-impls <interface> <member>", "Find methods and properties implementing an interface member",
		cobra.ExactArgs(2),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.FindMemberImplementations(ctx, args[0], args[1], a.queryOptions()...)
		})
}

func newDepsCmd(a *app) *cobra.Command {
	var direction string
	cmd := queryCmd(a, "deps <type>", "Show what a type depends on and what depends on it",
		cobra.ExactArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			dir, err := analysis.ParseDirection(direction)
			if err != nil {
				return nil, err
			}
			return an.AnalyzeDependencies(ctx, args[0], dir, a.queryOptions()...)
		})
	cmd.Flags().StringVar(&direction, "direction", "both", "both, in or out")
	return cmd
}

func newAsmDepsCmd(a *app) *cobra.Command {
	return queryCmd(a, "asm-deps <assembly>", "Show referenced and referencing assemblies",
		cobra.ExactArgs(1),
		func(ctx context.Context, an *analysis.Analyzer, args []string) (any, error) {
			return an.AnalyzeAssemblyDependencies(ctx, args[0])
		})
}
