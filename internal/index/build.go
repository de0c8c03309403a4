// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package index

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/bpowers/fstmmap/internal/datafile"
	"github.com/bpowers/fstmmap/internal/fst"
)

// Entry maps a key to the location of its value in a datafile.
type Entry struct {
	Key    []byte
	Offset datafile.PackedOffset
}

func compareEntries(a, b Entry) int {
	return bytes.Compare(a.Key, b.Key)
}

// dedup drops every entry whose key matches the entry before it.
// entries must be sorted; for each key the first entry wins.
func dedup(entries []Entry) []Entry {
	return slices.CompactFunc(entries, func(a, b Entry) bool {
		return bytes.Equal(a.Key, b.Key)
	})
}

// Build writes an fst index of entries to w and returns the number of
// distinct keys in it.  entries is sorted in place.  The sort is stable,
// so when a key appears more than once the entry that came first in
// entries is the one that is kept.
func Build(w fst.FileWriter, entries []Entry, logger *slog.Logger) (uint64, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	logger.Debug("sorting index entries", "count", len(entries))
	slices.SortStableFunc(entries, compareEntries)
	deduped := dedup(entries)
	if dropped := len(entries) - len(deduped); dropped > 0 {
		logger.Info("dropped duplicate keys", "count", dropped)
	}

	b, err := fst.NewBuilder(w)
	if err != nil {
		return 0, fmt.Errorf("fst.NewBuilder: %w", err)
	}
	logger.Debug("writing fst", "keys", len(deduped))
	for _, e := range deduped {
		if err := b.Insert(e.Key, uint64(e.Offset)); err != nil {
			return 0, fmt.Errorf("fst.Insert: %w", err)
		}
	}
	if err := b.Finish(); err != nil {
		return 0, fmt.Errorf("fst.Finish: %w", err)
	}
	return b.Len(), nil
}
