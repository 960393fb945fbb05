// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state persists the two single-slot records the router core shares
// between invocations: the last mutation preview and the user preferences.
// Both sit behind a small key-value Store abstraction so the filesystem
// layout can be swapped for any persistent store in tests.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store is a minimal persisted key-value record store. One key holds one
// JSON object. Absence of a key is not an error: Load reports found=false.
//
// # Thread Safety
//
// The process model is single-writer-at-a-time (one process, one
// invocation); implementations only need atomic whole-record overwrite on
// Save, not locking.
type Store interface {
	// Load decodes the record at key into v. Returns found=false when the
	// key has never been saved; that is a normal condition, not an error.
	Load(ctx context.Context, key string, v any) (found bool, err error)

	// Save encodes v and overwrites the record at key unconditionally.
	Save(ctx context.Context, key string, v any) error
}

// =============================================================================
// FileStore
// =============================================================================

// FileStore keeps each record as one JSON file at a fixed, well-known path:
// {dir}/{key}.json. Save writes to a temp file in the same directory and
// renames it over the target, so a crash never leaves a torn record.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// lazily on first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads and decodes {dir}/{key}.json. A missing file means found=false.
func (s *FileStore) Load(_ context.Context, key string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Save atomically overwrites {dir}/{key}.json.
func (s *FileStore) Save(_ context.Context, key string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// BadgerStore
// =============================================================================

// badgerKeyPrefix versions the key layout so a future format change cannot
// collide with existing records.
const badgerKeyPrefix = "state/v1/"

// BadgerStore implements Store on an embedded BadgerDB instance. Used when
// several tools share one state directory and file-per-record is too loose;
// the on-disk format changes but the Store contract is identical.
//
// The DB is owned by the caller (opened in main, closed on exit); the store
// never closes it.
type BadgerStore struct {
	db *dgbadger.DB
}

// NewBadgerStore wraps an opened BadgerDB.
func NewBadgerStore(db *dgbadger.DB) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	return &BadgerStore{db: db}
}

// Load reads and decodes the record at key. A missing key means found=false.
func (s *BadgerStore) Load(_ context.Context, key string, v any) (bool, error) {
	var data []byte
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// OpenBadger opens the embedded database at dir with its logging routed
// through slog. Badger's own logger is too chatty at default levels, so
// only warnings and errors come through.
func OpenBadger(dir string, logger *slog.Logger) (*dgbadger.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := dgbadger.DefaultOptions(dir).
		WithLogger(badgerSlogAdapter{logger: logger})
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening state db at %s: %w", dir, err)
	}
	return db, nil
}

// badgerSlogAdapter bridges badger.Logger to slog. Info and debug output
// is dropped.
type badgerSlogAdapter struct {
	logger *slog.Logger
}

func (a badgerSlogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (a badgerSlogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(strings.TrimSpace(format), args...))
}

func (badgerSlogAdapter) Infof(string, ...any)  {}
func (badgerSlogAdapter) Debugf(string, ...any) {}

// Save overwrites the record at key in one transaction.
func (s *BadgerStore) Save(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	err = s.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
