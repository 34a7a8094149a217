// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis answers structural questions over loaded metadata.
//
// The Analyzer resolves targets by name, scans method bodies for references,
// walks type hierarchies, builds bounded call graphs and aggregates type and
// assembly dependencies.
//
// # Consistency
//
// Every public operation acquires one workspace snapshot at entry and releases
// it on return. Concurrent workspace mutations wait for the operation to
// finish, so a single result never mixes two versions of the graph.
//
// # Bounds
//
// Result, depth and node bounds are the only cancellation mechanism inside a
// traversal. Hitting a bound is reported through a Truncated flag and is
// never an error. A cancelled context ends a scan at the next module boundary
// with the prefix found so far.
//
// # Errors
//
// Operations return *Error values classified by ErrorKind. Use errors.Is with
// ErrNotFound, ErrNoBody or ErrInvalidArgument to test the kind.
package analysis

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analysis failures.
type ErrorKind int

const (
	// KindNotFound means a type, method, field, property or module could
	// not be resolved by name.
	KindNotFound ErrorKind = iota + 1

	// KindNoBody means a body-dependent analysis was requested on a method
	// without instructions (abstract, extern or interface methods).
	KindNoBody

	// KindInvalidArgument means the input was malformed, such as an
	// unparseable opcode pattern or an unknown direction.
	KindInvalidArgument
)

// String returns the snake_case kind name used in metrics and CLI output.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNoBody:
		return "no_body"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is a classified analysis failure carrying one human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements error.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is reports whether target is a kind sentinel matching this error's kind.
//
// A target with a non-empty Message only matches an identical error, so
// errors.Is(err, ErrNotFound) tests the kind while two distinct messages
// never compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Kind sentinels for errors.Is.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrNoBody          = &Error{Kind: KindNoBody}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
)

// KindOf returns the kind of err, or 0 if err is not an analysis error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func notFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func noBodyf(format string, args ...any) *Error {
	return &Error{Kind: KindNoBody, Message: fmt.Sprintf(format, args...)}
}

func invalidArgf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}
