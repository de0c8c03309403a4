// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fst

import (
	"errors"
	"fmt"

	"github.com/dgryski/go-farm"
)

var ErrCorrupt = errors.New("fst: corrupt fst")

// FST is a read-only view of an encoded fst, usually backed by an mmap'd
// file.  It is safe for concurrent use.
type FST struct {
	data []byte
	h    fileHeader
}

// Load returns an FST reading from data, which must not be modified for
// the lifetime of the FST.
func Load(data []byte) (*FST, error) {
	var h fileHeader
	if err := h.UnmarshalBytes(data); err != nil {
		return nil, fmt.Errorf("fileHeader.UnmarshalBytes: %w", err)
	}
	if h.endAddr < fileHeaderSize || h.endAddr > uint64(len(data)) {
		return nil, fmt.Errorf("end address %d outside [%d, %d]: %w", h.endAddr, fileHeaderSize, len(data), ErrCorrupt)
	}
	if h.rootAddr < fileHeaderSize || h.rootAddr >= h.endAddr {
		return nil, fmt.Errorf("root address %d outside [%d, %d): %w", h.rootAddr, fileHeaderSize, h.endAddr, ErrCorrupt)
	}
	return &FST{
		data: data[:h.endAddr],
		h:    h,
	}, nil
}

// Len returns the number of keys in the fst.
func (f *FST) Len() uint64 {
	return f.h.keyCount
}

// Root decodes the node every key starts from.
func (f *FST) Root() (Node, error) {
	return f.Node(f.h.rootAddr)
}

// Node decodes the node at addr.
func (f *FST) Node(addr uint64) (Node, error) {
	return decodeNode(f.data, addr)
}

// Child follows the i'th transition out of n.  Nodes are written children
// first, so a transition that doesn't point to a lower address means the
// fst is corrupt; checking it here guarantees every walk terminates.
func (f *FST) Child(n Node, i int) (Transition, Node, error) {
	t := n.Transition(i)
	if t.Addr >= n.addr {
		return Transition{}, Node{}, fmt.Errorf("node %d: transition %d points forward to %d: %w", n.addr, i, t.Addr, ErrCorrupt)
	}
	child, err := f.Node(t.Addr)
	if err != nil {
		return Transition{}, Node{}, err
	}
	return t, child, nil
}

// Get returns the output associated with key.
func (f *FST) Get(key []byte) (uint64, bool, error) {
	node, err := f.Root()
	if err != nil {
		return 0, false, err
	}
	var out uint64
	for _, b := range key {
		i, ok := node.FindInput(b)
		if !ok {
			return 0, false, nil
		}
		var t Transition
		if t, node, err = f.Child(node, i); err != nil {
			return 0, false, err
		}
		out += t.Out
	}
	if !node.IsFinal() {
		return 0, false, nil
	}
	return out + node.FinalOutput(), true, nil
}

type walkFrame struct {
	node Node
	next int
	out  uint64
}

// Walk calls fn for every key in increasing order until fn returns
// false.  The key slice is reused between calls.
func (f *FST) Walk(fn func(key []byte, out uint64) bool) error {
	root, err := f.Root()
	if err != nil {
		return err
	}
	if root.IsFinal() && !fn(nil, root.FinalOutput()) {
		return nil
	}

	var key []byte
	stack := []walkFrame{{node: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= top.node.Len() {
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				key = key[:len(stack)-1]
			}
			continue
		}
		t, child, err := f.Child(top.node, top.next)
		if err != nil {
			return err
		}
		top.next++
		out := top.out + t.Out
		key = append(key, t.Label)
		if child.IsFinal() && !fn(key, out+child.FinalOutput()) {
			return nil
		}
		stack = append(stack, walkFrame{node: child, out: out})
	}
	return nil
}

// Verify decodes every node in the file and checks the checksum written
// by the Builder.  It reads the whole fst.
func (f *FST) Verify() error {
	var checksum uint64
	sawRoot := false
	addr := uint64(fileHeaderSize)
	for addr < f.h.endAddr {
		n, err := f.Node(addr)
		if err != nil {
			return err
		}
		for i := 0; i < n.Len(); i++ {
			if i > 0 && n.labels[i-1] >= n.labels[i] {
				return fmt.Errorf("node %d: labels out of order: %w", addr, ErrCorrupt)
			}
			if t := n.Transition(i); t.Addr < fileHeaderSize || t.Addr >= addr {
				return fmt.Errorf("node %d: bad transition address %d: %w", addr, t.Addr, ErrCorrupt)
			}
		}
		sawRoot = sawRoot || addr == f.h.rootAddr
		checksum = farm.Hash64WithSeed(f.data[addr:addr+uint64(n.size)], checksum)
		addr += uint64(n.size)
	}
	if addr != f.h.endAddr {
		return fmt.Errorf("last node overruns end address %d: %w", f.h.endAddr, ErrCorrupt)
	}
	if !sawRoot {
		return fmt.Errorf("root address %d isn't a node boundary: %w", f.h.rootAddr, ErrCorrupt)
	}
	if checksum != f.h.checksum {
		return fmt.Errorf("checksum failed (%d != %d): %w", checksum, f.h.checksum, ErrCorrupt)
	}
	return nil
}
