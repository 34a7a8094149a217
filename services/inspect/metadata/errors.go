// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metadata provides the decoded structural metadata of loaded
// assemblies: modules, types, members, method bodies and type signatures.
//
// # Ownership Model
//
// A Workspace owns the modules loaded into it. Modules are linked on load
// (back-pointers from members to their declaring types are set) and MUST NOT
// be mutated outside Workspace.Mutate.
//
// # Thread Safety
//
// Workspace is safe for concurrent use. Readers call Acquire to obtain a
// Snapshot and release it when done; Load, Unload and Mutate block until
// every outstanding snapshot has been released.
//
// # Resolution
//
// References (TypeSig, MethodRef, FieldRef) carry names only. A Snapshot
// resolves them against the loaded module set by exact full name. A reference
// into an assembly that is not loaded does not resolve, which is not an error.
package metadata

import (
	"errors"
	"fmt"
)

// Sentinel errors for metadata operations.
var (
	// ErrDuplicateModule is returned when loading a module whose name is
	// already loaded in the workspace.
	ErrDuplicateModule = errors.New("module already loaded")

	// ErrModuleNotLoaded is returned when unloading or replacing a module
	// that is not part of the workspace.
	ErrModuleNotLoaded = errors.New("module not loaded")

	// ErrInvalidModule is returned when a module fails structural validation.
	ErrInvalidModule = errors.New("invalid module")

	// ErrUnknownOpCode is returned when a document names an opcode that is
	// not in the opcode table.
	ErrUnknownOpCode = errors.New("unknown opcode")

	// ErrInvalidDocument is returned when a metadata document cannot be
	// decoded or fails validation.
	ErrInvalidDocument = errors.New("invalid metadata document")
)

// SigParseError describes a malformed type signature string.
type SigParseError struct {
	// Input is the full signature string being parsed.
	Input string

	// Pos is the 0-indexed byte offset where parsing failed.
	Pos int

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *SigParseError) Error() string {
	return fmt.Sprintf("signature %q at %d: %s", e.Input, e.Pos, e.Message)
}
