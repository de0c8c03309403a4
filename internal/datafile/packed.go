// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

// PackedOffset packs the [start, end) byte range of a value in a data
// file into a single 64-bit value: start in the high 32 bits, end in the
// low 32 bits.
type PackedOffset uint64

func NewPackedOffset(start, end uint32) PackedOffset {
	return PackedOffset(uint64(start)<<32 | uint64(end))
}

func (po PackedOffset) Unpack() (start, end uint32) {
	packed := uint64(po)
	start = uint32(packed >> 32)
	end = uint32(packed & 0xffffffff)
	return start, end
}

// Len is the length of the value in bytes, or 0 if the range is inverted.
func (po PackedOffset) Len() uint32 {
	start, end := po.Unpack()
	if end < start {
		return 0
	}
	return end - start
}
