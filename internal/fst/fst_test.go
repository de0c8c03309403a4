// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fst

import (
	"bytes"
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	Key string
	Out uint64
}

func buildTestFST(t testing.TB, entries []testEntry) *FST {
	t.Helper()
	var buf Buffer
	b, err := NewBuilder(&buf)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, b.Insert([]byte(e.Key), e.Out))
	}
	require.NoError(t, b.Finish())
	f, err := Load(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, f.Verify())
	return f
}

func sortedEntries(keys []string, out func(i int) uint64) []testEntry {
	sort.Strings(keys)
	entries := make([]testEntry, 0, len(keys))
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		entries = append(entries, testEntry{Key: k, Out: out(len(entries))})
	}
	return entries
}

func checkEntries(t *testing.T, f *FST, entries []testEntry) {
	t.Helper()
	require.Equal(t, uint64(len(entries)), f.Len())
	for _, e := range entries {
		out, ok, err := f.Get([]byte(e.Key))
		require.NoError(t, err)
		require.True(t, ok, "key %q", e.Key)
		require.Equal(t, e.Out, out, "key %q", e.Key)
	}

	var walked []testEntry
	require.NoError(t, f.Walk(func(key []byte, out uint64) bool {
		walked = append(walked, testEntry{Key: string(key), Out: out})
		return true
	}))
	if len(entries) == 0 {
		require.Empty(t, walked)
	} else {
		require.Equal(t, entries, walked)
	}
}

func TestBuilder_Empty(t *testing.T) {
	f := buildTestFST(t, nil)
	checkEntries(t, f, nil)

	for _, key := range []string{"", "a", "\x00"} {
		_, ok, err := f.Get([]byte(key))
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestBuilder_Simple(t *testing.T) {
	entries := []testEntry{
		{"", 7},
		{"a", 1},
		{"ab", 0},
		{"abc", 1 << 40},
		{"abd", 3},
		{"b", 9},
		{"bar", 2},
		{"baz", 2},
		{"foo", 4},
		{"foo2", 4},
	}
	f := buildTestFST(t, entries)
	checkEntries(t, f, entries)

	for _, negative := range []string{"abe", "c", "fo", "foo3", "ba", "\xff"} {
		_, ok, err := f.Get([]byte(negative))
		require.NoError(t, err)
		assert.False(t, ok, "key %q", negative)
	}
}

func TestBuilder_OutputPushing(t *testing.T) {
	// the shared prefix's output has to shrink as smaller outputs arrive
	entries := []testEntry{
		{"a", 100},
		{"aa", 50},
		{"aaa", 75},
		{"aab", 10},
		{"ab", 1000},
	}
	f := buildTestFST(t, entries)
	checkEntries(t, f, entries)
}

func TestBuilder_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var keys []string
	for i := 0; i < 5000; i++ {
		n := rng.Intn(6)
		k := make([]byte, n)
		for j := range k {
			k[j] = "ab\x00\xff"[rng.Intn(4)]
		}
		keys = append(keys, string(k))
	}
	entries := sortedEntries(keys, func(int) uint64 { return rng.Uint64() >> 1 })
	f := buildTestFST(t, entries)
	checkEntries(t, f, entries)
}

func TestBuilder_Stress(t *testing.T) {
	var keys []string
	for i := 0; i < 20000; i++ {
		keys = append(keys, strconv.Itoa(i))
	}
	entries := sortedEntries(keys, func(i int) uint64 {
		// packed [start, end) ranges, like the real index stores
		start := uint64(4 + 8*i)
		return start<<32 | (start + 8)
	})
	f := buildTestFST(t, entries)
	checkEntries(t, f, entries)
}

func TestBuilder_SharesSuffixes(t *testing.T) {
	suffix := strings.Repeat("-suffix", 30)
	var keys []string
	for _, prefix := range []string{"alpha", "bravo", "charlie", "delta", "echo"} {
		keys = append(keys, prefix+suffix)
	}

	var buf Buffer
	b, err := NewBuilder(&buf)
	require.NoError(t, err)
	for _, k := range keys {
		require.NoError(t, b.Insert([]byte(k), 0))
	}
	require.NoError(t, b.Finish())

	f, err := Load(buf.Bytes())
	require.NoError(t, err)
	for _, k := range keys {
		_, ok, err := f.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// without sharing, every suffix byte needs its own node of at
	// least 5 bytes
	unshared := len(keys) * len(suffix) * 5
	assert.Less(t, len(buf.Bytes())-fileHeaderSize, unshared/2)
}

func TestBuilder_Errors(t *testing.T) {
	var buf Buffer
	b, err := NewBuilder(&buf)
	require.NoError(t, err)

	require.NoError(t, b.Insert([]byte("b"), 1))
	err = b.Insert([]byte("b"), 2)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	err = b.Insert([]byte("a"), 2)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	err = b.Insert(nil, 2)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	require.NoError(t, b.Insert([]byte("c"), 3))
	assert.Equal(t, uint64(2), b.Len())

	require.NoError(t, b.Finish())
	// multiple finishes should be fine
	require.NoError(t, b.Finish())
	assert.ErrorIs(t, b.Insert([]byte("d"), 4), ErrFinished)

	f, err := Load(buf.Bytes())
	require.NoError(t, err)
	checkEntries(t, f, []testEntry{{"b", 1}, {"c", 3}})
}

type failingWriter struct {
	Buffer
	fail bool
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.fail {
		return 0, errors.New("write failed")
	}
	return w.Buffer.Write(p)
}

func TestNewBuilder_Errors(t *testing.T) {
	_, err := NewBuilder(&failingWriter{fail: true})
	assert.Error(t, err)
}

func TestWalk_Stop(t *testing.T) {
	f := buildTestFST(t, []testEntry{{"a", 1}, {"b", 2}, {"c", 3}})
	var seen []string
	require.NoError(t, f.Walk(func(key []byte, _ uint64) bool {
		seen = append(seen, string(key))
		return len(seen) < 2
	}))
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestLoad_Errors(t *testing.T) {
	var buf Buffer
	b, err := NewBuilder(&buf)
	require.NoError(t, err)
	require.NoError(t, b.Insert([]byte("key"), 42))
	require.NoError(t, b.Finish())
	good := buf.Bytes()

	_, err = Load(nil)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = Load(good[:fileHeaderSize-1])
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = Load(good[:len(good)-1])
	assert.ErrorIs(t, err, ErrCorrupt)

	badMagic := bytes.Clone(good)
	badMagic[0] ^= 0xff
	_, err = Load(badMagic)
	assert.ErrorIs(t, err, ErrCorrupt)

	badVersion := bytes.Clone(good)
	badVersion[4] = 9
	_, err = Load(badVersion)
	assert.Error(t, err)

	badRoot := bytes.Clone(good)
	badRoot[16] = 0
	badRoot[17] = 0
	_, err = Load(badRoot)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestVerify_DetectsCorruption(t *testing.T) {
	var buf Buffer
	b, err := NewBuilder(&buf)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Insert([]byte(strconv.Itoa(1000+i)), uint64(i)))
	}
	require.NoError(t, b.Finish())

	good := buf.Bytes()
	f, err := Load(good)
	require.NoError(t, err)
	require.NoError(t, f.Verify())

	for off := fileHeaderSize; off < len(good); off++ {
		corrupt := bytes.Clone(good)
		corrupt[off] ^= 0x5a
		f, err := Load(corrupt)
		require.NoError(t, err)
		require.Error(t, f.Verify(), "flipped byte at %d", off)
		// lookups on a corrupt fst may fail, but must not panic
		_, _, _ = f.Get([]byte("1050"))
		_ = f.Walk(func([]byte, uint64) bool { return true })
	}
}

func TestDecodeNode_Errors(t *testing.T) {
	data := make([]byte, fileHeaderSize+8)
	for _, testcase := range []struct {
		name string
		node []byte
		addr uint64
	}{
		{"header", nil, 0},
		{"past end", nil, uint64(len(data))},
		{"flags", []byte{0x80, 0, 0}, fileHeaderSize},
		{"truncated", []byte{0}, fileHeaderSize},
		{"widths", []byte{0, 1, 0x90, 'a'}, fileHeaderSize},
		{"zero addr width", []byte{0, 1, 0x10, 'a', 1}, fileHeaderSize},
		{"overrun", []byte{0, 3, 0x11, 'a', 'b', 'c'}, fileHeaderSize},
	} {
		t.Run(testcase.name, func(t *testing.T) {
			buf := bytes.Clone(data)
			if testcase.node != nil {
				buf = append(buf[:fileHeaderSize], testcase.node...)
			}
			_, err := decodeNode(buf, testcase.addr)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestNode_FindLess(t *testing.T) {
	n := builderNode{trans: []builderTransition{
		{label: 'b', addr: 200},
		{label: 'd', addr: 201},
		{label: 'f', addr: 202},
	}}
	data := make([]byte, 256)
	data = append(data[:fileHeaderSize], n.encode(nil)...)
	node, err := decodeNode(data, fileHeaderSize)
	require.NoError(t, err)
	require.Equal(t, 3, node.Len())

	for _, testcase := range []struct {
		input byte
		index int
		ok    bool
	}{
		{'a', 0, false},
		{'b', 0, false},
		{'c', 0, true},
		{'d', 0, true},
		{'e', 1, true},
		{'f', 1, true},
		{'z', 2, true},
	} {
		i, ok := node.FindLess(testcase.input)
		require.Equal(t, testcase.ok, ok, "FindLess(%q)", testcase.input)
		if ok {
			require.Equal(t, testcase.index, i, "FindLess(%q)", testcase.input)
		}
	}

	i, ok := node.FindInput('d')
	require.True(t, ok)
	require.Equal(t, 1, i)
	assert.Equal(t, Transition{Label: 'd', Addr: 201}, node.Transition(i))
	_, ok = node.FindInput('e')
	assert.False(t, ok)
}

func BenchmarkGet(b *testing.B) {
	var keys []string
	for i := 0; i < 100000; i++ {
		keys = append(keys, strconv.Itoa(i))
	}
	entries := sortedEntries(keys, func(i int) uint64 { return uint64(i) })
	f := buildTestFST(b, entries)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := entries[i%len(entries)]
		if _, ok, err := f.Get([]byte(e.Key)); !ok || err != nil {
			b.Fatal("bad lookup")
		}
	}
}
