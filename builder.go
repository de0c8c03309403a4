// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fstmmap

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bpowers/fstmmap/internal/datafile"
	"github.com/bpowers/fstmmap/internal/index"
)

const (
	dataFileName  = "data"
	indexFileName = "fst"
)

var (
	// ErrExist is returned when building into a directory that already exists.
	ErrExist = errors.New("fstmmap: directory already exists")
	// ErrClosed is returned when using a Builder after Finalize or Abort,
	// or verifying a Table after Close.
	ErrClosed = errors.New("fstmmap: closed")
)

// Builder is used to construct an immutable table from key/value pairs.
// Everything is staged in a temporary directory next to the destination,
// which is renamed into place by Finalize.
type Builder struct {
	resultPath string
	stagePath  string
	data       *datafile.Store
	entries    []index.Entry
	logger     *slog.Logger
}

// NewBuilder creates a Builder that will write a table to dir.  dir must
// not exist yet, and its parent directory must be writable.
func NewBuilder(dir string, opts ...BuilderOption) (*Builder, error) {
	options := newBuilderOptions(opts)

	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	if err := checkAbsent(dir); err != nil {
		return nil, err
	}
	parent := filepath.Dir(dir)
	stagePath, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".fstmmap-build.*")
	if err != nil {
		return nil, fmt.Errorf("MkdirTemp failed (may need permissions for dir %q): %w", parent, err)
	}
	data, err := datafile.Create(filepath.Join(stagePath, dataFileName), options.initialCapacity)
	if err != nil {
		_ = os.RemoveAll(stagePath)
		return nil, fmt.Errorf("datafile.Create: %w", err)
	}
	options.logger.Debug("staging table", "dir", dir, "stage", stagePath)
	return &Builder{
		resultPath: dir,
		stagePath:  stagePath,
		data:       data,
		logger:     options.logger,
	}, nil
}

func checkAbsent(dir string) error {
	if _, err := os.Lstat(dir); err == nil {
		return fmt.Errorf("%s: %w", dir, ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("os.Lstat: %w", err)
	}
	return nil
}

// Put adds a key/value pair to the table.  If a key is put more than
// once, the first value wins.
func (b *Builder) Put(k, v []byte) error {
	if b.data == nil {
		return ErrClosed
	}
	off, err := b.data.Push(v)
	if err != nil {
		return fmt.Errorf("data.Push: %w", err)
	}
	// copy the key, because it could point into e.g. a bufio buffer
	b.entries = append(b.entries, index.Entry{Key: bytes.Clone(k), Offset: off})
	return nil
}

// Finalize writes the index, moves the staged table to its destination
// and opens it.  On failure nothing is left behind at the destination.
func (b *Builder) Finalize() (*Table, error) {
	if b.data == nil {
		return nil, ErrClosed
	}
	if err := b.finalize(); err != nil {
		_ = b.Abort()
		return nil, err
	}
	return Open(b.resultPath, WithTableLogger(b.logger))
}

func (b *Builder) finalize() error {
	data := b.data
	b.data = nil
	if err := data.Close(); err != nil {
		return fmt.Errorf("data.Close: %w", err)
	}

	indexPath := filepath.Join(b.stagePath, indexFileName)
	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("os.Create: %w", err)
	}
	n, err := index.Build(f, b.entries, b.logger)
	// we're done with these -- nil them so they can be GC'd earlier
	b.entries = nil
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("index.Build: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("f.Sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("f.Close: %w", err)
	}
	// make the index read-only
	if err := os.Chmod(indexPath, 0444); err != nil {
		return fmt.Errorf("os.Chmod(0444): %w", err)
	}

	// rename(2) happily replaces an empty directory, so check again
	if err := checkAbsent(b.resultPath); err != nil {
		return err
	}
	if err := os.Rename(b.stagePath, b.resultPath); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	b.stagePath = ""
	b.logger.Info("table committed", "dir", b.resultPath, "keys", n)
	return nil
}

// Abort discards everything staged so far.  It is safe to call after
// Finalize, in which case it does nothing.
func (b *Builder) Abort() error {
	var errs []error
	if b.data != nil {
		if err := b.data.Close(); err != nil {
			errs = append(errs, fmt.Errorf("data.Close: %w", err))
		}
		b.data = nil
	}
	b.entries = nil
	if b.stagePath != "" {
		if err := os.RemoveAll(b.stagePath); err != nil {
			errs = append(errs, fmt.Errorf("os.RemoveAll: %w", err))
		}
		b.stagePath = ""
	}
	return errors.Join(errs...)
}

// Create builds a table in dir from pairs and opens it.
func Create(dir string, pairs iter.Seq2[[]byte, []byte], opts ...BuilderOption) (*Table, error) {
	b, err := NewBuilder(dir, opts...)
	if err != nil {
		return nil, err
	}
	for k, v := range pairs {
		if err := b.Put(k, v); err != nil {
			_ = b.Abort()
			return nil, err
		}
	}
	return b.Finalize()
}
