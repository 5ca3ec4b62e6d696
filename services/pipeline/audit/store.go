// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout:
//
//	audit/<audit_id>                     -> JSON Record
//	artifact/<artifact_id>/<audit_id>    -> empty (index)
const (
	recordPrefix = "audit/"
	indexPrefix  = "artifact/"
)

var (
	// ErrNotFound indicates no record for the requested id.
	ErrNotFound = errors.New("audit: record not found")

	// ErrEmptyActor indicates a record with no actor attribution.
	ErrEmptyActor = errors.New("audit: actor is empty")
)

// Config holds store configuration.
type Config struct {
	// Path is the directory for the store's files. Ignored when
	// InMemory is true.
	Path string

	// InMemory keeps the store off disk. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// DefaultConfig returns the production configuration for the given
// directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is the append-only audit store. Records are never updated or
// deleted.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens the store. The caller must Close it.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("audit: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: open store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append assigns an audit id and timestamp, then writes the record and
// its artifact index entries in one transaction.
func (s *Store) Append(rec Record) (Record, error) {
	if rec.Actor == "" {
		return Record{}, ErrEmptyActor
	}
	rec.AuditID = uuid.NewString()
	rec.Timestamp = s.now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("audit: encode record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(recordPrefix+rec.AuditID), data); err != nil {
			return err
		}
		for _, artifactID := range rec.Outputs.ArtifactIDs {
			key := fmt.Sprintf("%s%s/%s", indexPrefix, artifactID, rec.AuditID)
			if err := txn.Set([]byte(key), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("audit: append record: %w", err)
	}
	return rec, nil
}

// Get returns the record for an audit id.
func (s *Store) Get(auditID string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + auditID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, auditID)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetByArtifact returns every record whose run produced the artifact,
// oldest first.
func (s *Store) GetByArtifact(artifactID string) ([]Record, error) {
	var auditIDs []string
	prefix := []byte(indexPrefix + artifactID + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			auditIDs = append(auditIDs, key[len(prefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan artifact index: %w", err)
	}

	records := make([]Record, 0, len(auditIDs))
	for _, id := range auditIDs {
		rec, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sortByTimestamp(records)
	return records, nil
}

// List returns every record, oldest first.
func (s *Store) List() ([]Record, error) {
	var records []Record
	prefix := []byte(recordPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan records: %w", err)
	}
	sortByTimestamp(records)
	return records, nil
}

func sortByTimestamp(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
