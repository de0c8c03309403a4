// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package fstmmap is an embedded, append-only, ordered key/value store.
// A table is a directory holding two files: fst, an immutable
// finite-state transducer mapping each key to the location of its value,
// and data, a growable memory-mapped file holding the values.  Both are
// mapped rather than read, so opening a table is cheap regardless of its
// size.
package fstmmap

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/bpowers/fstmmap/internal/datafile"
	"github.com/bpowers/fstmmap/internal/index"
	"github.com/bpowers/fstmmap/internal/unsafestring"
)

// Table is a read-only view of a table directory.  It is safe for
// concurrent use by multiple goroutines; Close waits for in-flight
// lookups to finish.
type Table struct {
	dir    string
	data   *datafile.Store
	idx    *index.Table
	logger *slog.Logger

	// mu guards the mappings: lookups hold it for reading, Close for
	// writing.
	mu     sync.RWMutex
	closed bool
}

// Open maps the table stored in dir.
func Open(dir string, opts ...TableOption) (*Table, error) {
	options := newTableOptions(opts)

	idx, err := index.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, fmt.Errorf("index.Open: %w", err)
	}
	data, err := datafile.Open(filepath.Join(dir, dataFileName))
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("datafile.Open: %w", err)
	}
	t := &Table{
		dir:    dir,
		data:   data,
		idx:    idx,
		logger: options.logger,
	}
	if options.verify {
		if err := t.Verify(); err != nil {
			_ = t.Close()
			return nil, err
		}
	}
	return t, nil
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0
	}
	return int(t.idx.Len())
}

func (t *Table) value(key []byte, off datafile.PackedOffset) ([]byte, bool) {
	v, err := t.data.Resolve(off)
	if err != nil {
		t.logger.Error("bad value offset", "dir", t.dir, "key", key, "err", err)
		return nil, false
	}
	return v, true
}

// Get returns the value stored for key.  The returned slice points into
// the mapped data file: it must not be modified and is only valid until
// Close.
func (t *Table) Get(key []byte) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, false
	}
	off, ok, err := t.idx.Get(key)
	if err != nil {
		t.logger.Error("index lookup failed", "dir", t.dir, "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return t.value(key, off)
}

// GetString is like Get, but avoids copying key.
func (t *Table) GetString(key string) ([]byte, bool) {
	return t.Get(unsafestring.ToBytes(key))
}

// Floor returns the greatest key in the table that is less than or
// equal to key, along with its value.  ok is false if every key in the
// table is greater than key.
func (t *Table) Floor(key []byte) (floorKey, value []byte, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, nil, false
	}
	floorKey, off, ok, err := t.idx.Floor(key)
	if err != nil {
		t.logger.Error("floor lookup failed", "dir", t.dir, "key", key, "err", err)
		return nil, nil, false
	}
	if !ok {
		return nil, nil, false
	}
	value, ok = t.value(floorKey, off)
	if !ok {
		return nil, nil, false
	}
	return floorKey, value, true
}

// FloorString is like Floor, but avoids copying key.
func (t *Table) FloorString(key string) (floorKey, value []byte, ok bool) {
	return t.Floor(unsafestring.ToBytes(key))
}

// All returns an iterator over every key/value pair in increasing key
// order.  The key slice is reused between iterations.  The table can't
// be closed until iteration stops, so the loop body must not call Close.
func (t *Table) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		if t.closed {
			return
		}
		err := t.idx.Walk(func(key []byte, off datafile.PackedOffset) bool {
			v, ok := t.value(key, off)
			if !ok {
				return false
			}
			return yield(key, v)
		})
		if err != nil {
			t.logger.Error("iteration failed", "dir", t.dir, "err", err)
		}
	}
}

// Verify checks the index checksum and that every value offset stored
// in the index lies within the data file.
func (t *Table) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.idx.Verify(); err != nil {
		return fmt.Errorf("idx.Verify: %w", err)
	}
	var badErr error
	err := t.idx.Walk(func(key []byte, off datafile.PackedOffset) bool {
		if _, err := t.data.Resolve(off); err != nil {
			badErr = fmt.Errorf("value of %q: %w", key, err)
			return false
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("idx.Walk: %w", err)
	}
	return badErr
}

// Close unmaps the table.  Slices previously returned by lookups must
// not be used afterwards.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return errors.Join(t.idx.Close(), t.data.Close())
}
