// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides a multi-key lookup index over type definitions.
//
// The index maps full names, simple names, namespaces and module names to
// the entries that carry them. Entries are kept in insertion order, which is
// the module order then declaration order of the workspace that fills it, so
// every lookup is deterministic.
package index

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for index operations.
var (
	// ErrInvalidEntry is returned when an entry is nil or has no full name.
	ErrInvalidEntry = errors.New("invalid index entry")

	// ErrDuplicateType is returned when an entry with the same module and
	// full name is already indexed.
	ErrDuplicateType = errors.New("duplicate type")

	// ErrMaxEntriesExceeded is returned when adding would exceed capacity.
	ErrMaxEntriesExceeded = errors.New("maximum index entries exceeded")
)

// BatchError collects every problem found while validating a batch.
type BatchError struct {
	Errors []error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap returns the collected errors for errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return e.Errors
}
