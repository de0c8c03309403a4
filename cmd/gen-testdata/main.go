// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata writes key:value lines suitable for testdata.large.
// Keys are drawn from a small set of path-like prefixes so that the
// resulting fst exercises both prefix and suffix sharing.
package main

import (
	"bufio"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
)

var (
	nPairs = flag.Int("n", 1000000, "number of key/value pairs to emit")
	seed   = flag.Int64("seed", 0, "random seed (0 picks one)")
)

var keyPrefixes = []string{
	"user/",
	"user/profile/",
	"org/",
	"org/member/",
	"session/",
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		var seedBytes [8]byte
		if _, err := crand.Read(seedBytes[:]); err != nil {
			panic(err)
		}
		seed = int64(binary.LittleEndian.Uint64(seedBytes[:]))
	}
	return rand.New(rand.NewSource(seed))
}

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	rng := newRand(*seed)
	w := bufio.NewWriterSize(os.Stdout, 64*1024)

	var buf [8]byte
	for i := 0; i < *nPairs; i++ {
		if _, err := rng.Read(buf[:]); err != nil {
			panic(err)
		}
		prefix := keyPrefixes[rng.Intn(len(keyPrefixes))]
		// ':' separates key from value, so neither may contain it
		key := fmt.Sprintf("%s%08d", prefix, rng.Intn(100 * *nPairs))
		value := "val_" + hex.EncodeToString(buf[:rng.Intn(len(buf))+1])
		if _, err := fmt.Fprintf(w, "%s:%s\n", key, value); err != nil {
			logger.Error("write failed", "err", err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		logger.Error("flush failed", "err", err)
		os.Exit(1)
	}
}
