// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists workspace contents in BadgerDB and compares
// saved snapshots.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/AleutianAI/ilscope/services/inspect/telemetry"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BadgerDB key prefixes for workspace snapshots.
const (
	keyPrefixSnap      = "ilscope:snap:"
	keyPrefixSnapIndex = "ilscope:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// SchemaVersion is the payload schema written by Save.
const SchemaVersion = "1"

// DefaultListLimit applies when List is called with limit <= 0.
const DefaultListLimit = 100

const tracerName = "snapshot"

// Sentinel errors.
var (
	// ErrSnapshotNotFound is returned when no snapshot has the given ID, or
	// a workspace has no latest snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrIntegrity is returned when a stored payload does not match its
	// recorded hash.
	ErrIntegrity = errors.New("snapshot integrity check failed")
)

// Metadata describes a saved snapshot.
type Metadata struct {
	// SnapshotID is SHA256(Workspace + ":" + random UUID)[:16].
	SnapshotID string `json:"snapshot_id"`

	// Workspace names the snapshotted workspace, usually its document set.
	Workspace string `json:"workspace"`

	// WorkspaceHash is SHA256(Workspace)[:16] for key grouping.
	WorkspaceHash string `json:"workspace_hash"`

	Label string `json:"label,omitempty"`

	// CreatedAtMilli is Unix milliseconds UTC.
	CreatedAtMilli int64 `json:"created_at_milli"`

	// WorkspaceVersion is the mutation counter the snapshot was taken at.
	WorkspaceVersion uint64 `json:"workspace_version"`

	ModuleCount int `json:"module_count"`
	TypeCount   int `json:"type_count"`
	MethodCount int `json:"method_count"`

	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 of the gzip payload.
	ContentHash string `json:"content_hash"`
}

// Manager saves and loads workspace snapshots in BadgerDB.
//
// Description:
//
//	Each snapshot stores the workspace's modules as a gzip-compressed JSON
//	metadata document plus a metadata record for listing.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type Manager struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager over an opened BadgerDB.
//
// Inputs:
//
//	db - An opened BadgerDB instance, closed by the caller. Must not be nil.
//	logger - Logger for diagnostic output. Must not be nil.
//
// Outputs:
//
//	*Manager - The configured manager.
//	error - Non-nil if db or logger is nil.
func NewManager(db *badger.DB, logger *slog.Logger) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Manager{db: db, logger: logger, now: time.Now}, nil
}

// Open opens an on-disk BadgerDB at dir with badger's own logging off.
func Open(dir string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store %s: %w", dir, err)
	}
	return db, nil
}

// Save persists the current contents of a workspace.
//
// Description:
//
//	Acquires a workspace snapshot, encodes its modules as a metadata
//	document, gzip-compresses the JSON and writes data, metadata, the
//	workspace's latest pointer and the reverse index in one transaction.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	ws - The workspace to persist. Must not be nil.
//	name - Workspace name used to group snapshots. Must not be empty.
//	label - Optional human-readable label.
//
// Outputs:
//
//	*Metadata - The saved snapshot's metadata.
//	error - Non-nil if encoding or storage fails.
//
// Key Schema:
//
//	ilscope:snap:{workspaceHash}:{snapshotID}:data → gzip(JSON(Document))
//	ilscope:snap:{workspaceHash}:{snapshotID}:meta → JSON(Metadata)
//	ilscope:snap:{workspaceHash}:latest            → snapshotID
//	ilscope:snap:index:{snapshotID}                → workspaceHash
func (m *Manager) Save(ctx context.Context, ws *metadata.Workspace, name, label string) (meta *Metadata, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if ws == nil {
		return nil, fmt.Errorf("workspace must not be nil")
	}
	if name == "" {
		return nil, fmt.Errorf("workspace name must not be empty")
	}
	_, span := telemetry.StartSpan(ctx, tracerName, "Manager.Save",
		trace.WithAttributes(attribute.String("workspace", name)),
	)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	snap, release := ws.Acquire()
	modules := snap.Modules()
	doc := metadata.NewDocument(modules)
	version := snap.Version()
	typeCount, methodCount := countMembers(modules)
	release()

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling document: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing document: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	workspaceHash := WorkspaceHash(name)
	snapshotID := hashString(name + ":" + uuid.NewString())[:16]

	meta = &Metadata{
		SnapshotID:       snapshotID,
		Workspace:        name,
		WorkspaceHash:    workspaceHash,
		Label:            label,
		CreatedAtMilli:   m.now().UnixMilli(),
		WorkspaceVersion: version,
		ModuleCount:      len(modules),
		TypeCount:        typeCount,
		MethodCount:      methodCount,
		SchemaVersion:    SchemaVersion,
		CompressedSize:   int64(len(compressedData)),
		ContentHash:      hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(workspaceHash, snapshotID), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set(metaKey(workspaceHash, snapshotID), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set(latestKey(workspaceHash), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set(indexKey(snapshotID), []byte(workspaceHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	span.SetAttributes(
		attribute.String("snapshot_id", snapshotID),
		attribute.Int("modules", meta.ModuleCount),
		attribute.Int64("compressed_size", meta.CompressedSize),
	)
	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("workspace", name),
		slog.Int("module_count", meta.ModuleCount),
		slog.Int("type_count", meta.TypeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a snapshot's modules by ID.
//
// Outputs:
//
//	[]*metadata.Module - Decoded modules, ready for Workspace.Load.
//	*Metadata - The snapshot metadata.
//	error - ErrSnapshotNotFound, ErrIntegrity, or a decode error.
func (m *Manager) Load(ctx context.Context, snapshotID string) ([]*metadata.Module, *Metadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}
	_, span := telemetry.StartSpan(ctx, tracerName, "Manager.Load",
		trace.WithAttributes(attribute.String("snapshot_id", snapshotID)),
	)
	defer span.End()

	workspaceHash, err := m.readString(indexKey(snapshotID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	modules, meta, err := m.loadByKeys(workspaceHash, snapshotID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}
	return modules, meta, nil
}

// LoadLatest loads the most recent snapshot of a workspace.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	workspaceHash - WorkspaceHash(name). Must not be empty.
func (m *Manager) LoadLatest(ctx context.Context, workspaceHash string) ([]*metadata.Module, *Metadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if workspaceHash == "" {
		return nil, nil, fmt.Errorf("workspace hash must not be empty")
	}

	snapshotID, err := m.readString(latestKey(workspaceHash))
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", workspaceHash, err)
	}
	return m.loadByKeys(workspaceHash, snapshotID)
}

// List returns snapshot metadata, newest first.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	workspaceHash - Optional filter. Empty lists every workspace.
//	limit - Maximum number of results; <= 0 means DefaultListLimit.
func (m *Manager) List(ctx context.Context, workspaceHash string, limit int) ([]*Metadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	prefix := keyPrefixSnap
	if workspaceHash != "" {
		prefix = keyPrefixSnap + workspaceHash + ":"
	}

	results := make([]*Metadata, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}
			var meta Metadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				m.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CreatedAtMilli != results[j].CreatedAtMilli {
			return results[i].CreatedAtMilli > results[j].CreatedAtMilli
		}
		return results[i].SnapshotID < results[j].SnapshotID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot and, if it was the latest of its workspace,
// the latest pointer.
func (m *Manager) Delete(ctx context.Context, snapshotID string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}

	workspaceHash, err := m.readString(indexKey(snapshotID))
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{
			dataKey(workspaceHash, snapshotID),
			metaKey(workspaceHash, snapshotID),
			indexKey(snapshotID),
		} {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}

		item, err := txn.Get(latestKey(workspaceHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading latest pointer: %w", err)
		}
		var current string
		if err := item.Value(func(val []byte) error {
			current = string(val)
			return nil
		}); err != nil {
			return fmt.Errorf("reading latest pointer: %w", err)
		}
		if current == snapshotID {
			if err := txn.Delete(latestKey(workspaceHash)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

func (m *Manager) loadByKeys(workspaceHash, snapshotID string) ([]*metadata.Module, *Metadata, error) {
	var compressedData, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get(dataKey(workspaceHash, snapshotID))
		if err != nil {
			return notFound(err)
		}
		if compressedData, err = dataItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data: %w", err)
		}
		metaItem, err := txn.Get(metaKey(workspaceHash, snapshotID))
		if err != nil {
			return notFound(err)
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot %s: %w", snapshotID, err)
	}

	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("%w: %s: expected hash %s, got %s", ErrIntegrity, snapshotID, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	var doc metadata.Document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling document for %s: %w", snapshotID, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	modules, err := doc.ToModules()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	return modules, &meta, nil
}

func (m *Manager) readString(key []byte) (string, error) {
	var out string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return notFound(err)
		}
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	return out, err
}

// notFound maps badger's missing-key error to ErrSnapshotNotFound.
func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSnapshotNotFound
	}
	return err
}

func countMembers(modules []*metadata.Module) (types, methods int) {
	for _, mod := range modules {
		for _, t := range mod.AllTypes() {
			types++
			methods += len(t.Methods)
		}
	}
	return types, methods
}

// WorkspaceHash returns SHA256(name)[:16], the key prefix for a workspace.
func WorkspaceHash(name string) string {
	return hashString(name)[:16]
}

func dataKey(workspaceHash, id string) []byte {
	return []byte(keyPrefixSnap + workspaceHash + ":" + id + keySuffixData)
}

func metaKey(workspaceHash, id string) []byte {
	return []byte(keyPrefixSnap + workspaceHash + ":" + id + keySuffixMeta)
}

func latestKey(workspaceHash string) []byte {
	return []byte(keyPrefixSnap + workspaceHash + keySuffixLatest)
}

func indexKey(id string) []byte {
	return []byte(keyPrefixSnapIndex + id)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}
