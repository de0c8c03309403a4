// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package datafile implements the value half of a table: an append-only
// region of bytes in a memory-mapped file that grows as values are
// pushed onto it.
//
// A data file looks like:
//
//	┌───────────────────┐
//	│ length (uint32)   │
//	├───────────────────┤
//	│ value bytes,      │
//	│ concatenated in   │
//	│ append order      │
//	│                   │
//	├───────────────────┤  <- length
//	│ unused slack      │
//	│                   │
//	└───────────────────┘  <- file size
//
// The length is little-endian and counts the 4 header bytes, so an empty
// store records a length of 4.  Values carry no framing of their own: each
// one is addressed by a PackedOffset holding its [start, end) byte range,
// which limits a data file to 4 GiB.
package datafile
