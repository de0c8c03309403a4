// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fst

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dgryski/go-farm"
)

const defaultBufferSize = 4 * 1024 * 1024

var (
	ErrOutOfOrder   = errors.New("fst: keys must be inserted in increasing order")
	ErrDuplicateKey = errors.New("fst: duplicate key")
	ErrFinished     = errors.New("fst: builder already finished")
)

type nopWriter struct{}

func (nopWriter) Write([]byte) (int, error) {
	return 0, io.EOF
}

// FileWriter is usually an *os.File, but specified as an interface for easier testing.
type FileWriter interface {
	io.Writer
	io.WriterAt
}

// Builder writes an fst from keys inserted in increasing byte-wise order.
//
// Nodes are written bottom-up as soon as no later key can reach them, so
// memory use is proportional to the longest key rather than the number of
// keys.  Outputs are pushed towards the root: a transition carries the
// largest output shared by every key below it.
type Builder struct {
	f          FileWriter
	w          *bufio.Writer
	h          fileHeader
	off        uint64
	checksum   uint64
	unfinished unfinishedNodes
	registry   *registry
	last       []byte
	hasLast    bool
	buf        []byte
	finished   bool
}

func NewBuilder(f FileWriter) (*Builder, error) {
	b := &Builder{
		f:          f,
		w:          bufio.NewWriterSize(f, defaultBufferSize),
		h:          newFileHeader(),
		unfinished: newUnfinishedNodes(),
		registry:   newRegistry(defaultRegistrySize),
	}

	var headerBuf [fileHeaderSize]byte
	if err := b.h.MarshalTo(headerBuf[:]); err != nil {
		return nil, fmt.Errorf("fileHeader.MarshalTo: %w", err)
	}
	if _, err := b.w.Write(headerBuf[:]); err != nil {
		return nil, fmt.Errorf("bufio.Write: %w", err)
	}
	// try to expose errors when writing to the backing file early
	if err := b.w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	b.off = fileHeaderSize

	return b, nil
}

// Len returns the number of keys inserted so far.
func (b *Builder) Len() uint64 {
	return b.h.keyCount
}

// Insert adds key with output out.  key must sort after every
// previously inserted key.
func (b *Builder) Insert(key []byte, out uint64) error {
	if b.finished {
		return ErrFinished
	}
	if b.hasLast {
		if c := bytes.Compare(key, b.last); c == 0 {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		} else if c < 0 {
			return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, key, b.last)
		}
	}
	b.last = append(b.last[:0], key...)
	b.hasLast = true
	b.h.keyCount++

	if len(key) == 0 {
		// only possible as the very first key, so the root is the
		// only unfinished node
		root := &b.unfinished.stack[0]
		root.node.final = true
		root.node.finalOutput = out
		return nil
	}

	prefixLen, out := b.unfinished.findCommonPrefixAndSetOutput(key, out)
	if err := b.compileFrom(prefixLen); err != nil {
		return err
	}
	b.unfinished.addSuffix(key[prefixLen:], out)
	return nil
}

// compileFrom writes every unfinished node deeper than istate.
func (b *Builder) compileFrom(istate int) error {
	addr := uint64(noneAddr)
	for istate+1 < len(b.unfinished.stack) {
		var node builderNode
		if addr == noneAddr {
			node = b.unfinished.popEmpty()
		} else {
			node = b.unfinished.popFreeze(addr)
		}
		var err error
		if addr, err = b.compile(&node); err != nil {
			return err
		}
	}
	b.unfinished.topLastFreeze(addr)
	return nil
}

func (b *Builder) compile(node *builderNode) (uint64, error) {
	b.buf = node.encode(b.buf)
	addr, ok, cell := b.registry.find(b.buf)
	if ok {
		return addr, nil
	}

	addr = b.off
	n, err := b.w.Write(b.buf)
	if err != nil {
		return noneAddr, fmt.Errorf("bufio.Write: %w", err)
	}
	b.off += uint64(n)
	b.checksum = farm.Hash64WithSeed(b.buf, b.checksum)
	cell.set(addr, b.buf)
	return addr, nil
}

// Finish writes the remaining nodes and the file header.  The Builder
// can't be used afterwards.
func (b *Builder) Finish() error {
	if b.finished {
		return nil
	}
	b.finished = true

	defer func() {
		b.w.Reset(nopWriter{})
		b.registry = nil
	}()

	if err := b.compileFrom(0); err != nil {
		return err
	}
	root := b.unfinished.popRoot()
	rootAddr, err := b.compile(&root)
	if err != nil {
		return err
	}
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("bufio.Flush: %w", err)
	}

	b.h.rootAddr = rootAddr
	b.h.endAddr = b.off
	b.h.checksum = b.checksum

	var headerBuf [fileHeaderSize]byte
	if err := b.h.MarshalTo(headerBuf[:]); err != nil {
		return fmt.Errorf("fileHeader.MarshalTo: %w", err)
	}
	if _, err := b.f.WriteAt(headerBuf[:], 0); err != nil {
		return fmt.Errorf("f.WriteAt: %w", err)
	}
	return nil
}

type lastTransition struct {
	label byte
	out   uint64
}

// unfinishedNode is a node on the path of the most recently inserted
// key.  Its last transition is still open: its target may change until
// a key that diverges above it is inserted.
type unfinishedNode struct {
	node    builderNode
	last    lastTransition
	hasLast bool
}

func (n *unfinishedNode) addOutputPrefix(prefix uint64) {
	if n.node.final {
		n.node.finalOutput += prefix
	}
	for i := range n.node.trans {
		n.node.trans[i].out += prefix
	}
	if n.hasLast {
		n.last.out += prefix
	}
}

func (n *unfinishedNode) lastCompiled(addr uint64) {
	if !n.hasLast {
		return
	}
	n.node.trans = append(n.node.trans, builderTransition{
		label: n.last.label,
		out:   n.last.out,
		addr:  addr,
	})
	n.hasLast = false
}

type unfinishedNodes struct {
	stack []unfinishedNode
}

func newUnfinishedNodes() unfinishedNodes {
	return unfinishedNodes{
		stack: []unfinishedNode{{}},
	}
}

func (u *unfinishedNodes) pop() unfinishedNode {
	n := u.stack[len(u.stack)-1]
	u.stack = u.stack[:len(u.stack)-1]
	return n
}

func (u *unfinishedNodes) popRoot() builderNode {
	if len(u.stack) != 1 {
		panic("invariant broken: popRoot with unfinished children")
	}
	return u.pop().node
}

func (u *unfinishedNodes) popEmpty() builderNode {
	return u.pop().node
}

func (u *unfinishedNodes) popFreeze(addr uint64) builderNode {
	n := u.pop()
	n.lastCompiled(addr)
	return n.node
}

func (u *unfinishedNodes) topLastFreeze(addr uint64) {
	u.stack[len(u.stack)-1].lastCompiled(addr)
}

// findCommonPrefixAndSetOutput walks the path shared by key and the
// previous key, leaving on each shared transition the part of its output
// common to both and pushing the remainder one level down.  It returns
// the length of the shared path and the output still owed to key.
func (u *unfinishedNodes) findCommonPrefixAndSetOutput(key []byte, out uint64) (int, uint64) {
	i := 0
	for i < len(key) {
		n := &u.stack[i]
		if !n.hasLast || n.last.label != key[i] {
			break
		}
		common := min(n.last.out, out)
		addPrefix := n.last.out - common
		out -= common
		n.last.out = common
		if addPrefix != 0 {
			u.stack[i+1].addOutputPrefix(addPrefix)
		}
		i++
	}
	return i, out
}

func (u *unfinishedNodes) addSuffix(suffix []byte, out uint64) {
	if len(suffix) == 0 {
		return
	}
	top := &u.stack[len(u.stack)-1]
	top.last = lastTransition{label: suffix[0], out: out}
	top.hasLast = true
	for _, label := range suffix[1:] {
		u.stack = append(u.stack, unfinishedNode{
			last:    lastTransition{label: label},
			hasLast: true,
		})
	}
	u.stack = append(u.stack, unfinishedNode{
		node: builderNode{final: true},
	})
}

// Buffer is an in-memory FileWriter for building fsts that never touch
// disk.
type Buffer struct {
	buf []byte
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(b.buf) {
		return 0, errors.New("WriteAt out of bounds")
	}
	return copy(b.buf[off:], p), nil
}

func (b *Buffer) Bytes() []byte {
	return b.buf
}
