// Ponto Core
// Copyright (c) 2026 The Ponto Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Ponto Core.
//
// Ponto Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Ponto Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Ponto Core.  If not, see <http://www.gnu.org/licenses/>.

// Package punchdb is the durable local store for the two pieces of state that
// must survive restarts: the last known clock delta and the pending punch
// queue. bbolt's exclusive file lock doubles as the single-owner guard
// against a second process instance draining the same queue.
package punchdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PontoProject/ponto-core/pkg/api/models"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketState   = "state"
	bucketPending = "pending"

	keyClockDelta = "clock_delta_ms"
)

// Pending is a queued punch record together with the durable sequence key it
// is stored under.
type Pending struct {
	Record models.PunchRecord
	Seq    uint64
}

// DB wraps the bbolt database file.
type DB struct {
	bdb *bolt.DB
}

// Open opens (or creates) the store at path. It fails when another process
// holds the file lock.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = bdb.Update(func(txn *bolt.Tx) error {
		for _, name := range []string{bucketState, bucketPending} {
			if _, err := txn.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return &DB{bdb: bdb}, nil
}

func (d *DB) Close() error {
	if err := d.bdb.Close(); err != nil {
		return fmt.Errorf("failed to close bolt database: %w", err)
	}
	return nil
}

// SaveClockDelta persists the clock delta in milliseconds.
func (d *DB) SaveClockDelta(deltaMS int64) error {
	err := d.bdb.Update(func(txn *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(deltaMS)) //nolint:gosec // two's complement round trip
		return txn.Bucket([]byte(bucketState)).Put([]byte(keyClockDelta), buf)
	})
	if err != nil {
		return fmt.Errorf("failed to save clock delta: %w", err)
	}
	return nil
}

// LoadClockDelta returns the persisted clock delta and whether one exists.
func (d *DB) LoadClockDelta() (deltaMS int64, ok bool, err error) {
	err = d.bdb.View(func(txn *bolt.Tx) error {
		v := txn.Bucket([]byte(bucketState)).Get([]byte(keyClockDelta))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("invalid clock delta value length: %d", len(v))
		}
		deltaMS = int64(binary.BigEndian.Uint64(v)) //nolint:gosec // two's complement round trip
		ok = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to load clock delta: %w", err)
	}
	return deltaMS, ok, nil
}

// EnqueuePending appends a record to the durable queue and returns its
// sequence key. Sequence keys are monotonic, so iteration order is insertion
// order.
func (d *DB) EnqueuePending(rec *models.PunchRecord) (uint64, error) {
	var seq uint64
	err := d.bdb.Update(func(txn *bolt.Tx) error {
		b := txn.Bucket([]byte(bucketPending))

		s, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		seq = s

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal pending record: %w", err)
		}

		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue pending record: %w", err)
	}
	return seq, nil
}

// ListPending returns all queued records in insertion order.
func (d *DB) ListPending() ([]Pending, error) {
	var out []Pending
	err := d.bdb.View(func(txn *bolt.Tx) error {
		c := txn.Bucket([]byte(bucketPending)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 8 {
				return fmt.Errorf("invalid pending key length: %d", len(k))
			}

			var rec models.PunchRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal pending record: %w", err)
			}

			out = append(out, Pending{
				Seq:    binary.BigEndian.Uint64(k),
				Record: rec,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	return out, nil
}

// RemovePending deletes a single queued record by its sequence key. Removing
// a key that no longer exists is a no-op.
func (d *DB) RemovePending(seq uint64) error {
	err := d.bdb.Update(func(txn *bolt.Tx) error {
		return txn.Bucket([]byte(bucketPending)).Delete(seqKey(seq))
	})
	if err != nil {
		return fmt.Errorf("failed to remove pending record: %w", err)
	}
	return nil
}

// PendingCount returns the number of queued records.
func (d *DB) PendingCount() (int, error) {
	var n int
	err := d.bdb.View(func(txn *bolt.Tx) error {
		n = txn.Bucket([]byte(bucketPending)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return n, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
