// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fst

import (
	"bytes"

	"github.com/dgryski/go-farm"
)

const defaultRegistrySize = 1 << 14

type registryCell struct {
	addr    uint64
	encoded []byte
}

// registry remembers recently compiled nodes by their encoding so that
// equivalent suffixes are written once.  It is a direct-mapped cache: a
// collision evicts the previous occupant, which costs file size but
// never correctness.
type registry struct {
	cells []registryCell
	mask  uint64
}

func newRegistry(size int) *registry {
	// round up to a power of 2
	n := 1
	for n < size {
		n <<= 1
	}
	return &registry{
		cells: make([]registryCell, n),
		mask:  uint64(n - 1),
	}
}

// find returns the address of a node with the same encoding, or the cell
// a newly compiled node should be recorded in.
func (r *registry) find(encoded []byte) (addr uint64, ok bool, cell *registryCell) {
	cell = &r.cells[farm.Hash64(encoded)&r.mask]
	if cell.addr != noneAddr && bytes.Equal(cell.encoded, encoded) {
		return cell.addr, true, cell
	}
	return noneAddr, false, cell
}

func (c *registryCell) set(addr uint64, encoded []byte) {
	c.addr = addr
	c.encoded = append(c.encoded[:0], encoded...)
}
