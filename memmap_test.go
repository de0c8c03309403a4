// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fstmmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemMap(t *testing.T) {
	m, err := NewMemMap([]Pair[int]{
		{Key: []byte("cherry"), Value: 3},
		{Key: []byte("apple"), Value: 1},
		{Key: []byte("banana"), Value: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	for key, expected := range map[string]int{"apple": 1, "banana": 2, "cherry": 3} {
		v, ok := m.Get([]byte(key))
		require.True(t, ok)
		require.Equal(t, expected, v)
	}
	v, ok := m.Get([]byte("apricot"))
	assert.False(t, ok)
	assert.Zero(t, v)

	k, v, ok := m.Floor([]byte("carrot"))
	require.True(t, ok)
	assert.Equal(t, "banana", string(k))
	assert.Equal(t, 2, v)

	k, v, ok = m.Floor([]byte("cherry"))
	require.True(t, ok)
	assert.Equal(t, "cherry", string(k))
	assert.Equal(t, 3, v)

	_, _, ok = m.Floor([]byte("a"))
	assert.False(t, ok)
}

func TestMemMap_DuplicateKey(t *testing.T) {
	_, err := NewMemMap([]Pair[string]{
		{Key: []byte("a"), Value: "1"},
		{Key: []byte("b"), Value: "2"},
		{Key: []byte("a"), Value: "3"},
	})
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestMemMap_Empty(t *testing.T) {
	m, err := NewMemMap[struct{}](nil)
	require.NoError(t, err)
	require.Equal(t, 0, m.Len())
	_, ok := m.Get(nil)
	assert.False(t, ok)
	_, _, ok = m.Floor([]byte("x"))
	assert.False(t, ok)
}

func TestMemMap_DoesNotReorderInput(t *testing.T) {
	pairs := []Pair[int]{
		{Key: []byte("b"), Value: 2},
		{Key: []byte(""), Value: 0},
		{Key: []byte("a"), Value: 1},
	}
	m, err := NewMemMap(pairs)
	require.NoError(t, err)
	assert.Equal(t, "b", string(pairs[0].Key))

	k, v, ok := m.Floor([]byte("\x00"))
	require.True(t, ok)
	assert.Equal(t, "", string(k))
	assert.Equal(t, 0, v)
}
