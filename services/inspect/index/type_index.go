// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Default configuration values.
const (
	// DefaultMaxEntries is the default maximum number of entries.
	DefaultMaxEntries = 1_000_000

	// searchCheckInterval is how often Search checks for cancellation.
	searchCheckInterval = 1000
)

// Entry is anything the index can hold.
type Entry interface {
	// FullName is the unique-within-module name ("App.Outer/Inner").
	FullName() string

	// SimpleName is the unqualified name ("Inner").
	SimpleName() string

	// NamespaceName is the namespace of the outermost declaring type.
	NamespaceName() string

	// ModuleName is the defining module.
	ModuleName() string
}

// Options configures TypeIndex limits.
type Options struct {
	// MaxEntries is the capacity. Adding past it returns ErrMaxEntriesExceeded.
	MaxEntries int
}

// Option is a functional option for configuring TypeIndex.
type Option func(*Options)

// WithMaxEntries sets the index capacity.
func WithMaxEntries(max int) Option {
	return func(o *Options) {
		o.MaxEntries = max
	}
}

// Stats summarises index contents.
type Stats struct {
	TotalEntries int
	ByModule     map[string]int
	Namespaces   int
	MaxEntries   int
}

// TypeIndex provides O(1) lookups of entries by several keys.
//
// The index maintains:
//   - all: every entry in insertion order
//   - byFullName: full name to entries (one per module defining that name)
//   - byNamespace, byModule: grouping keys reported by Stats
//
// Thread Safety:
//
//	TypeIndex is safe for concurrent use.
//
// Ownership:
//
//	The index stores entries but does NOT own them. Entries MUST NOT be
//	mutated after being added.
type TypeIndex[T Entry] struct {
	mu sync.RWMutex

	all         []T
	keys        map[string]struct{}
	byFullName  map[string][]T
	byNamespace map[string][]T
	byModule    map[string][]T

	options Options
}

// New creates an empty index.
//
// Example:
//
//	idx := index.New[*metadata.TypeDef]()
func New[T Entry](opts ...Option) *TypeIndex[T] {
	options := Options{MaxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(&options)
	}
	return &TypeIndex[T]{
		keys:        make(map[string]struct{}),
		byFullName:  make(map[string][]T),
		byNamespace: make(map[string][]T),
		byModule:    make(map[string][]T),
		options:     options,
	}
}

func entryKey(e Entry) string {
	return e.ModuleName() + "|" + e.FullName()
}

func validateEntry(e Entry) error {
	if isNil(e) {
		return fmt.Errorf("%w: entry is nil", ErrInvalidEntry)
	}
	if e.FullName() == "" {
		return fmt.Errorf("%w: empty full name", ErrInvalidEntry)
	}
	return nil
}

// Add adds a single entry.
//
// Errors:
//
//	ErrInvalidEntry - entry has no full name
//	ErrDuplicateType - module already has an entry with that full name
//	ErrMaxEntriesExceeded - index is at capacity
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *TypeIndex[T]) Add(e T) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.all) >= idx.options.MaxEntries {
		return ErrMaxEntriesExceeded
	}
	key := entryKey(e)
	if _, exists := idx.keys[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, key)
	}
	idx.addLocked(e, key)
	return nil
}

// AddBatch adds entries all-or-nothing.
//
// Description:
//
//	Validates every entry, checks duplicates within the batch and against
//	the index, then adds them in order. If anything fails, nothing is added.
//
// Outputs:
//
//	error - *BatchError with every problem found, or ErrMaxEntriesExceeded.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *TypeIndex[T]) AddBatch(entries []T) error {
	if len(entries) == 0 {
		return nil
	}

	var errs []error
	seen := make(map[string]int, len(entries))
	keys := make([]string, len(entries))
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			errs = append(errs, fmt.Errorf("entry[%d]: %w", i, err))
			continue
		}
		key := entryKey(e)
		keys[i] = key
		if first, exists := seen[key]; exists {
			errs = append(errs, fmt.Errorf("entry[%d]: %w: %s (same as entry[%d])", i, ErrDuplicateType, key, first))
			continue
		}
		seen[key] = i
	}
	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.all)+len(entries) > idx.options.MaxEntries {
		return ErrMaxEntriesExceeded
	}
	for i, key := range keys {
		if _, exists := idx.keys[key]; exists {
			errs = append(errs, fmt.Errorf("entry[%d]: %w: %s", i, ErrDuplicateType, key))
		}
	}
	if len(errs) > 0 {
		return &BatchError{Errors: errs}
	}

	for i, e := range entries {
		idx.addLocked(e, keys[i])
	}
	return nil
}

// addLocked adds to every map. Caller must hold idx.mu.Lock().
func (idx *TypeIndex[T]) addLocked(e T, key string) {
	full := e.FullName()
	idx.all = append(idx.all, e)
	idx.keys[key] = struct{}{}
	idx.byFullName[full] = append(idx.byFullName[full], e)
	idx.byNamespace[e.NamespaceName()] = append(idx.byNamespace[e.NamespaceName()], e)
	idx.byModule[e.ModuleName()] = append(idx.byModule[e.ModuleName()], e)
}

// Len returns the number of entries.
func (idx *TypeIndex[T]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.all)
}

// All returns every entry in insertion order as a new slice.
func (idx *TypeIndex[T]) All() []T {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copySlice(idx.all)
}

// FirstByFullName returns the first entry with the exact full name.
func (idx *TypeIndex[T]) FirstByFullName(name string) (T, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var zero T
	matches := idx.byFullName[name]
	if len(matches) == 0 {
		return zero, false
	}
	return matches[0], true
}

// FirstWithSuffixFold returns the first entry, in insertion order, whose
// full name ends with suffix under case folding.
//
// Description:
//
//	This is the loose fallback lookup: "Item" finds "App.Models.Item" and
//	also "App.Models.OrderItem". Callers wanting precision use
//	FirstByFullName first.
func (idx *TypeIndex[T]) FirstWithSuffixFold(suffix string) (T, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var zero T
	if suffix == "" {
		return zero, false
	}
	lower := strings.ToLower(suffix)
	for _, e := range idx.all {
		if strings.HasSuffix(strings.ToLower(e.FullName()), lower) {
			return e, true
		}
	}
	return zero, false
}

// Stats returns index statistics.
func (idx *TypeIndex[T]) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	byModule := make(map[string]int, len(idx.byModule))
	for module, entries := range idx.byModule {
		byModule[module] = len(entries)
	}
	return Stats{
		TotalEntries: len(idx.all),
		ByModule:     byModule,
		Namespaces:   len(idx.byNamespace),
		MaxEntries:   idx.options.MaxEntries,
	}
}

// Search ranks entries whose simple or full name matches query.
//
// Description:
//
//	Case-insensitive. Results are ordered by match quality: exact simple
//	name, prefix, substring of the full name, then near misses
//	(Levenshtein distance within a third of the query length). Ties keep
//	insertion order. Used to suggest names when a lookup fails.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	query - Search string.
//	limit - Maximum results (0 = no limit).
//
// Outputs:
//
//	[]T - Matching entries.
//	error - Non-nil if ctx was cancelled.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (idx *TypeIndex[T]) Search(ctx context.Context, query string, limit int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}
	queryLower := strings.ToLower(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		entry T
		score int
		order int
	}
	var results []scored
	for i, e := range idx.all {
		if i%searchCheckInterval == 0 && i > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if score := matchScore(queryLower, strings.ToLower(e.SimpleName()), strings.ToLower(e.FullName())); score >= 0 {
			results = append(results, scored{entry: e, score: score, order: i})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score < results[j].score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]T, len(results))
	for i, r := range results {
		out[i] = r.entry
	}
	return out, nil
}

// matchScore returns a score (lower is better), -1 for no match.
//
//	0 = exact simple name or full name
//	1 = simple name prefix
//	2 = substring of the full name
//	3 = near miss on the simple name
func matchScore(query, simple, full string) int {
	switch {
	case simple == query || full == query:
		return 0
	case strings.HasPrefix(simple, query):
		return 1
	case strings.Contains(full, query):
		return 2
	}
	threshold := max(2, len(query)/3)
	if levenshteinDistance(simple, query) <= threshold {
		return 3
	}
	return -1
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func isNil(e Entry) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func copySlice[T any](src []T) []T {
	if len(src) == 0 {
		return nil
	}
	out := make([]T, len(src))
	copy(out, src)
	return out
}
