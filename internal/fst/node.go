// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fst

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"slices"
)

// A node is encoded as:
//
//	flags      1 byte, bit 0 set if the node is final
//	ntrans     uvarint
//	widths     1 byte, outBytes<<4 | addrBytes
//	final out  outBytes, only present for final nodes
//	labels     ntrans bytes, strictly increasing
//	outputs    ntrans * outBytes
//	addrs      ntrans * addrBytes
//
// Integers are little-endian and as wide as the largest value in the
// node needs, so a transition can be read in constant time.

const (
	flagFinal = 1 << 0

	// noneAddr is never a valid node address: the file header lives there.
	noneAddr = 0
)

type builderTransition struct {
	label byte
	out   uint64
	addr  uint64
}

type builderNode struct {
	final       bool
	finalOutput uint64
	trans       []builderTransition
}

func bytesNeeded(v uint64) int {
	return (bits.Len64(v) + 7) / 8
}

func appendUint(b []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func readUint(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func (n *builderNode) encode(buf []byte) []byte {
	var outMax, addrMax uint64
	if n.final {
		outMax = n.finalOutput
	}
	for _, t := range n.trans {
		outMax = max(outMax, t.out)
		addrMax = max(addrMax, t.addr)
	}
	outBytes := bytesNeeded(outMax)
	addrBytes := bytesNeeded(addrMax)

	var flags byte
	if n.final {
		flags |= flagFinal
	}
	buf = append(buf[:0], flags)
	buf = binary.AppendUvarint(buf, uint64(len(n.trans)))
	buf = append(buf, byte(outBytes<<4|addrBytes))
	if n.final {
		buf = appendUint(buf, n.finalOutput, outBytes)
	}
	for _, t := range n.trans {
		buf = append(buf, t.label)
	}
	for _, t := range n.trans {
		buf = appendUint(buf, t.out, outBytes)
	}
	for _, t := range n.trans {
		buf = appendUint(buf, t.addr, addrBytes)
	}
	return buf
}

// Transition is a labelled edge out of a node.  Out is the output
// contributed by following it.
type Transition struct {
	Label byte
	Out   uint64
	Addr  uint64
}

// Node is a decoded view of a node; it references the underlying fst
// bytes rather than copying them.
type Node struct {
	addr        uint64
	size        int
	final       bool
	finalOutput uint64
	outBytes    int
	addrBytes   int
	labels      []byte
	outs        []byte
	addrs       []byte
}

func decodeNode(data []byte, addr uint64) (Node, error) {
	if addr < fileHeaderSize || addr >= uint64(len(data)) {
		return Node{}, fmt.Errorf("node address %d outside [%d, %d): %w", addr, fileHeaderSize, len(data), ErrCorrupt)
	}
	b := data[addr:]
	flags := b[0]
	if flags&^flagFinal != 0 {
		return Node{}, fmt.Errorf("node %d: unknown flags %x: %w", addr, flags, ErrCorrupt)
	}
	p := 1
	ntrans, n := binary.Uvarint(b[p:])
	if n <= 0 || ntrans > 256 {
		return Node{}, fmt.Errorf("node %d: bad transition count: %w", addr, ErrCorrupt)
	}
	p += n
	if p >= len(b) {
		return Node{}, fmt.Errorf("node %d: truncated: %w", addr, ErrCorrupt)
	}
	outBytes, addrBytes := int(b[p]>>4), int(b[p]&0xf)
	p++
	if outBytes > 8 || addrBytes > 8 || (ntrans > 0 && addrBytes == 0) {
		return Node{}, fmt.Errorf("node %d: bad widths %d/%d: %w", addr, outBytes, addrBytes, ErrCorrupt)
	}

	node := Node{
		addr:      addr,
		final:     flags&flagFinal != 0,
		outBytes:  outBytes,
		addrBytes: addrBytes,
	}
	size := p + int(ntrans)*(1+outBytes+addrBytes)
	if node.final {
		size += outBytes
	}
	if size > len(b) {
		return Node{}, fmt.Errorf("node %d: %d bytes past end of fst: %w", addr, size-len(b), ErrCorrupt)
	}
	if node.final {
		node.finalOutput = readUint(b[p:], outBytes)
		p += outBytes
	}
	node.labels = b[p : p+int(ntrans)]
	p += int(ntrans)
	node.outs = b[p : p+int(ntrans)*outBytes]
	p += int(ntrans) * outBytes
	node.addrs = b[p : p+int(ntrans)*addrBytes]
	node.size = size
	return node, nil
}

// Addr returns the offset of the node in the fst.
func (n Node) Addr() uint64 {
	return n.addr
}

// IsFinal reports whether a key ends at this node.
func (n Node) IsFinal() bool {
	return n.final
}

// FinalOutput is added to the accumulated output when a key ends here.
func (n Node) FinalOutput() uint64 {
	return n.finalOutput
}

// Len returns the number of transitions out of the node.
func (n Node) Len() int {
	return len(n.labels)
}

// Transition returns the i'th transition, in increasing label order.
func (n Node) Transition(i int) Transition {
	return Transition{
		Label: n.labels[i],
		Out:   readUint(n.outs[i*n.outBytes:], n.outBytes),
		Addr:  readUint(n.addrs[i*n.addrBytes:], n.addrBytes),
	}
}

// FindInput returns the index of the transition labelled b.
func (n Node) FindInput(b byte) (int, bool) {
	return slices.BinarySearch(n.labels, b)
}

// FindLess returns the index of the transition with the greatest label
// strictly less than b.
func (n Node) FindLess(b byte) (int, bool) {
	i, _ := slices.BinarySearch(n.labels, b)
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}
