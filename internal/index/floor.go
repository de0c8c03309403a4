// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package index

import (
	"fmt"

	"github.com/bpowers/fstmmap/internal/fst"
)

// Match is a key found in an fst along with its output.
type Match struct {
	Key    []byte
	Output uint64
}

type floorState int

const (
	compareNext floorState = iota
	chooseBiggest
	backtrack
	abort
	final
)

// resumePoint is the nearest place on the query's path where a key
// smaller than the query is available.  A later (deeper) resume point
// always beats an earlier one, so only one is kept.
type resumePoint struct {
	node fst.Node
	// transition to follow, or -1 when the key ending at node is itself
	// the candidate
	index int
	out   uint64
	depth int
	valid bool
}

func follow(f *fst.FST, node fst.Node, i int, out uint64, path []byte) (fst.Node, uint64, []byte, error) {
	t, child, err := f.Child(node, i)
	if err != nil {
		return fst.Node{}, 0, nil, err
	}
	return child, out + t.Out, append(path, t.Label), nil
}

// Floor finds the greatest key in f that is less than or equal to query.
//
// It walks the query's path through the fst.  When the path runs out
// it falls back to the nearest smaller key: a smaller sibling transition
// at the point of divergence, otherwise the deepest resume point seen on
// the way down, from which it descends through the largest transition
// at every level.
func Floor(f *fst.FST, query []byte) (Match, bool, error) {
	node, err := f.Root()
	if err != nil {
		return Match{}, false, err
	}

	var (
		out    uint64
		path   = make([]byte, 0, len(query)+16)
		resume resumePoint
		state  = compareNext
	)
	for {
		switch state {
		case compareNext:
			depth := len(path)
			if depth == len(query) {
				if node.IsFinal() {
					out += node.FinalOutput()
					state = final
				} else {
					// every key below node extends query, so is bigger
					state = backtrack
				}
				continue
			}

			b := query[depth]
			i, ok := node.FindInput(b)
			if !ok {
				if j, ok := node.FindLess(b); ok {
					if node, out, path, err = follow(f, node, j, out, path); err != nil {
						return Match{}, false, err
					}
					state = chooseBiggest
				} else if node.IsFinal() {
					out += node.FinalOutput()
					state = final
				} else {
					state = backtrack
				}
				continue
			}

			if i > 0 {
				resume = resumePoint{node: node, index: i - 1, out: out, depth: depth, valid: true}
			} else if node.IsFinal() {
				resume = resumePoint{node: node, index: -1, out: out, depth: depth, valid: true}
			}
			if node, out, path, err = follow(f, node, i, out, path); err != nil {
				return Match{}, false, err
			}

		case chooseBiggest:
			for node.Len() > 0 {
				if node, out, path, err = follow(f, node, node.Len()-1, out, path); err != nil {
					return Match{}, false, err
				}
			}
			if !node.IsFinal() {
				return Match{}, false, fmt.Errorf("node %d has no transitions but isn't final: %w", node.Addr(), fst.ErrCorrupt)
			}
			out += node.FinalOutput()
			state = final

		case backtrack:
			if !resume.valid {
				state = abort
				continue
			}
			node, out, path = resume.node, resume.out, path[:resume.depth]
			resume.valid = false
			if resume.index < 0 {
				out += node.FinalOutput()
				state = final
				continue
			}
			if node, out, path, err = follow(f, node, resume.index, out, path); err != nil {
				return Match{}, false, err
			}
			state = chooseBiggest

		case abort:
			return Match{}, false, nil

		case final:
			return Match{Key: path, Output: out}, true, nil
		}
	}
}
