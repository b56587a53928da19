// Package scratch provides the failable allocator collaborator for
// split_bin's scan buffers (spec.md section 6.2) and the exact scratch
// layout spec.md section 9 describes: one contiguous block of
// 4*(2*num_bins+1) integers, sliced into four sub-buffers.
package scratch

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Allocator is a failable allocator for scratch storage. Failure to
// allocate is a fatal error for the call that requested it (spec.md
// section 7, "Out of memory").
type Allocator[T constraints.Integer] interface {
	Alloc(n int) ([]T, error)
}

// DefaultAllocator allocates directly from the Go heap and never fails
// for a non-negative size. A negative size, which indicates a caller bug
// rather than a resource exhaustion condition, returns an error.
type DefaultAllocator[T constraints.Integer] struct{}

// Alloc returns a zeroed slice of n elements.
func (DefaultAllocator[T]) Alloc(n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("scratch: alloc: negative size %d", n)
	}
	return make([]T, n), nil
}

// Buffers holds the four scan-cell sub-buffers used by one round of
// split_bin's double scan, sliced out of a single allocation per
// spec.md section 9. Index layout per bin b, within SendLeft/SendRight/
// RecvLeft/RecvRight: CountIndex(b) holds the tally, ClosestIndex(b)
// holds the closest same-bin rank or None. The trailing element at
// RankIndex carries the forwarded neighbor rank for pointer doubling.
type Buffers[T constraints.Integer] struct {
	NumBins   int
	SendLeft  []T
	RecvLeft  []T
	SendRight []T
	RecvRight []T
}

// NewBuffers allocates one block of 4*(2*numBins+1) elements via alloc
// and slices it into the four sub-buffers described above. numBins must
// be positive; this is a caller-bug check and is validated by the root
// package before NewBuffers is ever called.
func NewBuffers[T constraints.Integer](alloc Allocator[T], numBins int) (*Buffers[T], error) {
	elements := 2*numBins + 1
	block, err := alloc.Alloc(4 * elements)
	if err != nil {
		return nil, err
	}
	return &Buffers[T]{
		NumBins:   numBins,
		SendLeft:  block[0*elements : 1*elements],
		RecvLeft:  block[1*elements : 2*elements],
		SendRight: block[2*elements : 3*elements],
		RecvRight: block[3*elements : 4*elements],
	}, nil
}

// CountIndex returns the index, within any of the four sub-buffers, of
// the count cell for bin b.
func (x *Buffers[T]) CountIndex(b int) int { return 2 * b }

// ClosestIndex returns the index of the closest-rank cell for bin b.
func (x *Buffers[T]) ClosestIndex(b int) int { return 2*b + 1 }

// RankIndex returns the index of the trailing forwarded-rank slot,
// shared by all four sub-buffers.
func (x *Buffers[T]) RankIndex() int { return 2 * x.NumBins }
