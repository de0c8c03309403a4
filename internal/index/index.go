// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package index

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/bpowers/fstmmap/internal/datafile"
	"github.com/bpowers/fstmmap/internal/fst"
)

// ErrClosed is returned by lookups on a closed Table.
var ErrClosed = errors.New("index: table is closed")

// Table is an ordered index from keys to datafile offsets, backed by an
// mmap'd fst file.
type Table struct {
	f      *os.File
	m      mmap.MMap
	fst    *fst.FST
	closed atomic.Bool
}

// Open maps the fst file at path read-only.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	if stat.Size() == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("empty index file %s: %w", path, fst.ErrCorrupt)
	}
	m, err := mmap.MapRegion(f, int(stat.Size()), mmap.RDONLY, 0, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap.MapRegion(%s): %w", path, err)
	}
	if err := unix.Madvise(m, syscall.MADV_RANDOM); err != nil {
		_ = m.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("madvise: %w", err)
	}
	idx, err := fst.Load(m)
	if err != nil {
		_ = m.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("fst.Load(%s): %w", path, err)
	}
	return &Table{
		f:   f,
		m:   m,
		fst: idx,
	}, nil
}

// Len returns the number of keys in the index.
func (t *Table) Len() uint64 {
	if t.closed.Load() {
		return 0
	}
	return t.fst.Len()
}

// Get returns the offset stored for key.
func (t *Table) Get(key []byte) (datafile.PackedOffset, bool, error) {
	if t.closed.Load() {
		return 0, false, ErrClosed
	}
	out, ok, err := t.fst.Get(key)
	return datafile.PackedOffset(out), ok, err
}

// Floor returns the greatest key less than or equal to key, and its
// offset.
func (t *Table) Floor(key []byte) ([]byte, datafile.PackedOffset, bool, error) {
	if t.closed.Load() {
		return nil, 0, false, ErrClosed
	}
	m, ok, err := Floor(t.fst, key)
	return m.Key, datafile.PackedOffset(m.Output), ok, err
}

// Walk calls fn for every key in increasing order until fn returns
// false.  The key slice is reused between calls.
func (t *Table) Walk(fn func(key []byte, off datafile.PackedOffset) bool) error {
	if t.closed.Load() {
		return ErrClosed
	}
	return t.fst.Walk(func(key []byte, out uint64) bool {
		return fn(key, datafile.PackedOffset(out))
	})
}

// Verify checks the structure and checksum of the whole index.
func (t *Table) Verify() error {
	if t.closed.Load() {
		return ErrClosed
	}
	return t.fst.Verify()
}

// Close unmaps the index.  Lookups afterwards fail with ErrClosed; it
// must not be called concurrently with them.
func (t *Table) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.fst = nil
	var err error
	if unmapErr := t.m.Unmap(); unmapErr != nil {
		err = fmt.Errorf("m.Unmap: %w", unmapErr)
	}
	if closeErr := t.f.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("f.Close: %w", closeErr)
	}
	return err
}
