// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fstmmap

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/bpowers/fstmmap/internal/fst"
	"github.com/bpowers/fstmmap/internal/index"
)

// ErrDuplicateKey is returned by NewMemMap when a key appears more than once.
var ErrDuplicateKey = errors.New("fstmmap: duplicate key")

// Pair is a key and its associated value.
type Pair[T any] struct {
	Key   []byte
	Value T
}

// MemMap is an immutable ordered map held entirely in memory.  Keys are
// stored in an fst whose outputs index into a slice of values.
type MemMap[T any] struct {
	fst   *fst.FST
	items []T
}

// NewMemMap builds a MemMap from pairs, which may be in any order.
func NewMemMap[T any](pairs []Pair[T]) (*MemMap[T], error) {
	sorted := slices.Clone(pairs)
	slices.SortFunc(sorted, func(a, b Pair[T]) int {
		return bytes.Compare(a.Key, b.Key)
	})

	var buf fst.Buffer
	b, err := fst.NewBuilder(&buf)
	if err != nil {
		return nil, fmt.Errorf("fst.NewBuilder: %w", err)
	}
	items := make([]T, 0, len(sorted))
	for i, p := range sorted {
		if i > 0 && bytes.Equal(sorted[i-1].Key, p.Key) {
			return nil, fmt.Errorf("%q: %w", p.Key, ErrDuplicateKey)
		}
		if err := b.Insert(p.Key, uint64(len(items))); err != nil {
			return nil, fmt.Errorf("fst.Insert: %w", err)
		}
		items = append(items, p.Value)
	}
	if err := b.Finish(); err != nil {
		return nil, fmt.Errorf("fst.Finish: %w", err)
	}
	f, err := fst.Load(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("fst.Load: %w", err)
	}
	return &MemMap[T]{
		fst:   f,
		items: items,
	}, nil
}

// Len returns the number of keys in the map.
func (m *MemMap[T]) Len() int {
	return len(m.items)
}

func (m *MemMap[T]) item(out uint64) (T, bool) {
	if out >= uint64(len(m.items)) {
		var zero T
		return zero, false
	}
	return m.items[out], true
}

// Get returns the value stored for key.
func (m *MemMap[T]) Get(key []byte) (T, bool) {
	out, ok, err := m.fst.Get(key)
	if err != nil || !ok {
		var zero T
		return zero, false
	}
	return m.item(out)
}

// Floor returns the greatest key less than or equal to key and its value.
func (m *MemMap[T]) Floor(key []byte) (floorKey []byte, value T, ok bool) {
	match, ok, err := index.Floor(m.fst, key)
	if err != nil || !ok {
		return nil, value, false
	}
	if value, ok = m.item(match.Output); !ok {
		return nil, value, false
	}
	return match.Key, value, true
}
