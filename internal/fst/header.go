// Copyright 2023 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fst

import (
	"encoding/binary"
	"fmt"
)

const (
	magicFSTHeader    = 0xC0FFEE02
	fileFormatVersion = 1
	// make the header the minimum cache-width we expect to see
	fileHeaderSize = 128
)

type fileHeader struct {
	magic         uint32
	formatVersion uint32
	keyCount      uint64
	rootAddr      uint64
	endAddr       uint64
	checksum      uint64
}

func newFileHeader() fileHeader {
	return fileHeader{
		magic:         magicFSTHeader,
		formatVersion: fileFormatVersion,
	}
}

func (h *fileHeader) MarshalTo(headerBytes []byte) error {
	if len(headerBytes) < fileHeaderSize {
		return fmt.Errorf("headerBytes too short: %d < %d", len(headerBytes), fileHeaderSize)
	}
	binary.LittleEndian.PutUint32(headerBytes[0:4], h.magic)
	binary.LittleEndian.PutUint32(headerBytes[4:8], h.formatVersion)
	binary.LittleEndian.PutUint64(headerBytes[8:16], h.keyCount)
	binary.LittleEndian.PutUint64(headerBytes[16:24], h.rootAddr)
	binary.LittleEndian.PutUint64(headerBytes[24:32], h.endAddr)
	binary.LittleEndian.PutUint64(headerBytes[32:40], h.checksum)
	return nil
}

func (h *fileHeader) UnmarshalBytes(headerBytes []byte) error {
	if len(headerBytes) < fileHeaderSize {
		return fmt.Errorf("headerBytes too short: %d < %d: %w", len(headerBytes), fileHeaderSize, ErrCorrupt)
	}

	h.magic = binary.LittleEndian.Uint32(headerBytes[0:4])
	if h.magic != magicFSTHeader {
		return fmt.Errorf("bad magic number on fst file (%x) -- not an fst or corrupted: %w", h.magic, ErrCorrupt)
	}

	h.formatVersion = binary.LittleEndian.Uint32(headerBytes[4:8])
	if h.formatVersion != fileFormatVersion {
		return fmt.Errorf("this version of the library can only read v%d fst files; found v%d", fileFormatVersion, h.formatVersion)
	}

	h.keyCount = binary.LittleEndian.Uint64(headerBytes[8:16])
	h.rootAddr = binary.LittleEndian.Uint64(headerBytes[16:24])
	h.endAddr = binary.LittleEndian.Uint64(headerBytes[24:32])
	h.checksum = binary.LittleEndian.Uint64(headerBytes[32:40])

	return nil
}
