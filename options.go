package lwgrp

import (
	"github.com/joeycumines/go-lwgrp/internal/scratch"
	"github.com/joeycumines/go-lwgrp/internal/xlog"
)

// engineOptions holds configuration shared by SplitBin and
// AlltoallvLinear.
type engineOptions struct {
	logger    xlog.Logger
	allocator scratch.Allocator[int32]
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		logger:    xlog.Discard{},
		allocator: scratch.DefaultAllocator[int32]{},
	}
}

// Option configures SplitBin and AlltoallvLinear.
type Option interface {
	applyOption(*engineOptions)
}

type optionFunc func(*engineOptions)

func (f optionFunc) applyOption(o *engineOptions) { f(o) }

// WithLogger configures the Logger used for round-boundary debug logging
// and collaborator-failure error logging. The default is a no-op
// discard logger.
func WithLogger(logger xlog.Logger) Option {
	return optionFunc(func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithAllocator configures the failable allocator collaborator
// (spec.md section 6.2) used for SplitBin's scan scratch buffers. The
// default allocates directly from the Go heap and never fails.
func WithAllocator(alloc scratch.Allocator[int32]) Option {
	return optionFunc(func(o *engineOptions) {
		if alloc != nil {
			o.allocator = alloc
		}
	})
}

func resolveOptions(opts []Option) engineOptions {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt.applyOption(&o)
	}
	return o
}
