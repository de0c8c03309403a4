// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackedOffset(t *testing.T) {
	for _, testcase := range []struct {
		start, end uint32
	}{
		{0, 0},
		{4, 4},
		{4, 9},
		{1 << 31, 1<<31 + 17},
		{math.MaxUint32, math.MaxUint32},
	} {
		po := NewPackedOffset(testcase.start, testcase.end)
		start, end := po.Unpack()
		require.Equal(t, testcase.start, start)
		require.Equal(t, testcase.end, end)
		require.Equal(t, testcase.end-testcase.start, po.Len())
	}
}

func TestPackedOffset_Layout(t *testing.T) {
	po := NewPackedOffset(1, 2)
	require.Equal(t, uint64(1<<32|2), uint64(po))
}

func TestPackedOffset_InvertedLen(t *testing.T) {
	require.Zero(t, NewPackedOffset(10, 3).Len())
}
