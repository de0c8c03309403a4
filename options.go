// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fstmmap

import (
	"io"
	"log/slog"
)

// defaultInitialCapacity is the size of a fresh data file before any
// values have been appended to it.
const defaultInitialCapacity = 64 * 1024

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// BuilderOption configures the Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger          *slog.Logger
	initialCapacity int
}

// WithBuilderLogger sets an optional logger for the builder to use for progress updates.
// If not provided, no logging output will be produced.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(opts *builderOptions) {
		opts.logger = logger
	}
}

// WithInitialCapacity sets the initial size in bytes of the data file.
// The file grows as needed, so this only matters for avoiding remaps
// when the approximate size of the values is known up front.
func WithInitialCapacity(n int) BuilderOption {
	return func(opts *builderOptions) {
		opts.initialCapacity = n
	}
}

func newBuilderOptions(opts []BuilderOption) builderOptions {
	options := builderOptions{
		logger:          discardLogger(),
		initialCapacity: defaultInitialCapacity,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = discardLogger()
	}
	return options
}

// TableOption configures a Table opened with Open.
type TableOption func(*tableOptions)

type tableOptions struct {
	logger *slog.Logger
	verify bool
}

// WithTableLogger sets the logger used to report corruption found
// while serving lookups.
func WithTableLogger(logger *slog.Logger) TableOption {
	return func(opts *tableOptions) {
		opts.logger = logger
	}
}

// WithVerify makes Open check the index checksum and every stored
// offset before returning the table.
func WithVerify() TableOption {
	return func(opts *tableOptions) {
		opts.verify = true
	}
}

func newTableOptions(opts []TableOption) tableOptions {
	options := tableOptions{
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = discardLogger()
	}
	return options
}
