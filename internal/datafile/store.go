// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

const (
	// HeaderSize is the width of the little-endian uint32 logical length
	// that starts every data file.  The recorded length includes it.
	HeaderSize = 4

	maxStoreLen = math.MaxUint32
)

var (
	ErrClosed      = errors.New("datafile: store is closed")
	ErrCorrupt     = errors.New("datafile: corrupt data file")
	ErrOutOfBounds = errors.New("datafile: range out of bounds")
	ErrStoreFull   = errors.New("datafile: store would exceed 4 GiB")
)

// Store is an append-only byte region backed by a memory-mapped file.
// Values are appended with Push and addressed by the PackedOffset it
// returns.
//
// Push may grow the file and remap it, which moves the mapping.  Slices
// returned by Bytes and Resolve point into the mapping and must not be
// used after the next call to Push or Close; use Read for a copy.
type Store struct {
	path   string
	f      *os.File
	m      mmap.MMap
	closed atomic.Bool
}

// Create creates (or truncates) the file at path, sizes it to hold at
// least initialCapacity bytes and maps it read-write.  The new store is
// empty: its logical length is HeaderSize.
func Create(path string, initialCapacity int) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	size := max(HeaderSize, initialCapacity)
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Truncate(%d): %w", size, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap.Map(%s): %w", path, err)
	}
	s := &Store{
		path: path,
		f:    f,
		m:    m,
	}
	s.setLen(HeaderSize)
	return s, nil
}

// Open maps an existing data file read-write without touching its
// contents.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	if stat.Size() < HeaderSize {
		_ = f.Close()
		return nil, fmt.Errorf("data file too short: %d < %d: %w", stat.Size(), HeaderSize, ErrCorrupt)
	}
	if stat.Size() > maxStoreLen {
		_ = f.Close()
		return nil, fmt.Errorf("data file too long: %d: %w", stat.Size(), ErrCorrupt)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap.Map(%s): %w", path, err)
	}
	if err := unix.Madvise(m, syscall.MADV_RANDOM); err != nil {
		_ = m.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("madvise: %w", err)
	}
	s := &Store{
		path: path,
		f:    f,
		m:    m,
	}
	if n := s.Len(); n < HeaderSize || n > len(m) {
		_ = s.Close()
		return nil, fmt.Errorf("recorded length %d outside [%d, %d]: %w", n, HeaderSize, len(m), ErrCorrupt)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Len returns the logical length of the store, header included.
func (s *Store) Len() int {
	if len(s.m) < HeaderSize {
		return 0
	}
	return int(binary.LittleEndian.Uint32(s.m[:HeaderSize]))
}

func (s *Store) setLen(n int) {
	binary.LittleEndian.PutUint32(s.m[:HeaderSize], uint32(n))
}

// Cap returns the size of the current mapping.
func (s *Store) Cap() int {
	return len(s.m)
}

// Bytes returns the n bytes at off.  It only checks the range against
// the size of the mapping, not against the logical length: callers
// addressing values should use Resolve.
func (s *Store) Bytes(off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(s.m) || n > len(s.m)-off {
		return nil, false
	}
	return s.m[off : off+n : off+n], true
}

// Resolve returns the value addressed by po without copying.
func (s *Store) Resolve(po PackedOffset) ([]byte, error) {
	start, end := po.Unpack()
	if start < HeaderSize || end < start || int(end) > s.Len() {
		return nil, fmt.Errorf("[%d, %d) with length %d: %w", start, end, s.Len(), ErrOutOfBounds)
	}
	return s.m[start:end:end], nil
}

// Read returns a copy of the value addressed by po that stays valid
// across later calls to Push.
func (s *Store) Read(po PackedOffset) ([]byte, error) {
	v, err := s.Resolve(po)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

// Push appends b to the store and returns the range it was written to.
// The mapping is flushed asynchronously; call Flush for durability.
func (s *Store) Push(b []byte) (PackedOffset, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	start := s.Len()
	end := start + len(b)
	if uint64(end) > maxStoreLen {
		return 0, ErrStoreFull
	}
	if end > len(s.m) {
		if err := s.grow(end); err != nil {
			return 0, err
		}
	}
	copy(s.m[start:end], b)
	s.setLen(end)
	if err := unix.Msync(s.m, unix.MS_ASYNC); err != nil {
		return 0, fmt.Errorf("msync: %w", err)
	}
	return NewPackedOffset(uint32(start), uint32(end)), nil
}

// grow extends the backing file to at least minSize bytes and remaps it.
// Capacity at least doubles so a run of pushes remaps O(log n) times.
func (s *Store) grow(minSize int) error {
	newSize := min(max(minSize, 2*len(s.m)), maxStoreLen)
	if err := s.f.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("f.Truncate(%d): %w", newSize, err)
	}
	m, err := mmap.Map(s.f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("mmap.Map(%s): %w", s.path, err)
	}
	old := s.m
	s.m = m
	if err := old.Unmap(); err != nil {
		return fmt.Errorf("m.Unmap: %w", err)
	}
	return nil
}

// Flush synchronously writes the mapping back to the file.
func (s *Store) Flush() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.m.Flush(); err != nil {
		return fmt.Errorf("m.Flush: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	if err := s.m.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("m.Flush: %w", err))
	}
	if err := s.m.Unmap(); err != nil {
		errs = append(errs, fmt.Errorf("m.Unmap: %w", err))
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("f.Close: %w", err))
	}
	return errors.Join(errs...)
}
