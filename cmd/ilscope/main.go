// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ilscope answers structural questions about decoded assembly
// metadata: who calls a method, what a type depends on, which types
// implement an interface, what a method's call graph looks like.
//
// Usage:
//
//	ilscope --doc app.yaml callers App.Program Log
//	ilscope --doc app.yaml --json deps App.Circle --direction out
//	ilscope --doc app.yaml callgraph App.Program Main --max-depth 3
//	ilscope --doc app.yaml snapshot save --label baseline
//	ilscope --doc app.yaml shell
//
// Configuration is read from ilscope.yaml in the working directory, or the
// file named by --config. The Neo4j password comes from
// ILSCOPE_NEO4J_PASSWORD.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
