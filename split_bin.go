package lwgrp

import (
	"fmt"

	"github.com/joeycumines/go-lwgrp/internal/scratch"
	"github.com/joeycumines/go-lwgrp/internal/transport"
)

// SplitBin partitions the "in" chain into up to numBins subchains. A
// process is grouped with every other process that specifies the same
// non-negative myBin; a process with a negative myBin receives the null
// chain. This is spec.md section 4.1's bin-split engine, ported
// line-for-line from original_source/src/lwgrp_ring_ops.c's
// lwgrp_ring_split_bin.
//
// The engine runs two simultaneous exclusive scans across the chain, one
// left-to-right and one right-to-left, doubling the hop distance each
// round, so it completes in exactly ceil(log2(chain size)) rounds (one
// round minimum, none for a singleton chain). Each round costs four
// nonblocking exchanges and one wait-all.
func SplitBin(numBins, myBin int, in Chain, opts ...Option) (Chain, error) {
	if numBins < 1 {
		return Chain{}, &InvalidArgumentError{Cause: ErrNegativeNumBins, Msg: fmt.Sprintf("num_bins=%d", numBins)}
	}
	if myBin >= numBins {
		return Chain{}, &InvalidArgumentError{Cause: ErrBinOutOfRange, Msg: fmt.Sprintf("my_bin=%d num_bins=%d", myBin, numBins)}
	}
	if in.Transport == nil || in.ChainSize < 1 || !in.Valid() {
		return Chain{}, &InvalidArgumentError{Cause: ErrMalformedChain}
	}

	o := resolveOptions(opts)
	log := o.logger.WithField("op", "split_bin").WithField("num_bins", numBins).WithField("my_bin", myBin)

	buf, err := scratch.NewBuffers[int32](o.allocator, numBins)
	if err != nil {
		log.WithError(err).Error("split_bin: scratch allocation failed")
		return Chain{}, &OutOfMemoryError{Cause: err}
	}
	elements := 2*numBins + 1

	// initialize: every cell of all four buffers is (count=0,
	// closest=None), and the receive buffers' forwarded-rank slots are
	// None, since a receive from None leaves its buffer untouched; if we
	// have a bin, seed it with (count=1, closest=our own transport rank).
	for b := 0; b < numBins; b++ {
		ci, coi := buf.CountIndex(b), buf.ClosestIndex(b)
		buf.SendLeft[ci], buf.SendRight[ci] = 0, 0
		buf.SendLeft[coi], buf.SendRight[coi] = int32(transport.None), int32(transport.None)
		buf.RecvLeft[ci], buf.RecvRight[ci] = 0, 0
		buf.RecvLeft[coi], buf.RecvRight[coi] = int32(transport.None), int32(transport.None)
	}
	buf.RecvLeft[buf.RankIndex()], buf.RecvRight[buf.RankIndex()] = int32(transport.None), int32(transport.None)
	if myBin >= 0 {
		ci, coi := buf.CountIndex(myBin), buf.ClosestIndex(myBin)
		buf.SendLeft[ci], buf.SendRight[ci] = 1, 1
		buf.SendLeft[coi], buf.SendRight[coi] = int32(in.Rank), int32(in.Rank)
	}

	t := in.Transport
	commRank := in.Rank
	leftRank, rightRank := in.Left, in.Right
	rank, ranks := in.ChainRank, in.ChainSize
	myLeft, myRight := transport.None, transport.None

	for dist := 1; dist < ranks; dist <<= 1 {
		// left-to-right shift: tell the right neighbor who is dist hops
		// to our left; right-to-left shift: tell the left neighbor who
		// is dist hops to our right.
		buf.SendRight[buf.RankIndex()] = int32(leftRank)
		buf.SendLeft[buf.RankIndex()] = int32(rightRank)

		rRecvLeft, err := t.Irecv(leftRank, transport.Tag, transport.Int32, buf.RecvLeft, 0, elements)
		if err != nil {
			return Chain{}, &TransportError{Op: "split_bin: irecv left", Cause: err}
		}
		rSendRight, err := t.Isend(rightRank, transport.Tag, transport.Int32, buf.SendRight, 0, elements)
		if err != nil {
			return Chain{}, &TransportError{Op: "split_bin: isend right", Cause: err}
		}
		rRecvRight, err := t.Irecv(rightRank, transport.Tag, transport.Int32, buf.RecvRight, 0, elements)
		if err != nil {
			return Chain{}, &TransportError{Op: "split_bin: irecv right", Cause: err}
		}
		rSendLeft, err := t.Isend(leftRank, transport.Tag, transport.Int32, buf.SendLeft, 0, elements)
		if err != nil {
			return Chain{}, &TransportError{Op: "split_bin: isend left", Cause: err}
		}

		if err := t.WaitAll(rRecvLeft, rSendRight, rRecvRight, rSendLeft); err != nil {
			log.WithError(err).Error("split_bin: wait-all failed")
			return Chain{}, &TransportError{Op: "split_bin: wait-all", Cause: err}
		}

		// sticky snapshot: the first non-None closest seen in our own
		// bin, from each direction, is final; later rounds must not
		// overwrite it.
		if myBin >= 0 {
			if myLeft == transport.None {
				myLeft = transport.Rank(buf.RecvLeft[buf.ClosestIndex(myBin)])
			}
			if myRight == transport.None {
				myRight = transport.Rank(buf.RecvRight[buf.ClosestIndex(myBin)])
			}
		}

		// merge left-received data into our right-going buffer.
		for b := 0; b < numBins; b++ {
			ci, coi := buf.CountIndex(b), buf.ClosestIndex(b)
			if rank-dist >= 0 {
				buf.SendRight[ci] += buf.RecvLeft[ci]
			}
			if buf.SendRight[coi] == int32(transport.None) {
				buf.SendRight[coi] = buf.RecvLeft[coi]
			}
		}

		// merge right-received data into our left-going buffer.
		for b := 0; b < numBins; b++ {
			ci, coi := buf.CountIndex(b), buf.ClosestIndex(b)
			if rank+dist < ranks {
				buf.SendLeft[ci] += buf.RecvRight[ci]
			}
			if buf.SendLeft[coi] == int32(transport.None) {
				buf.SendLeft[coi] = buf.RecvRight[coi]
			}
		}

		leftRank = transport.Rank(buf.RecvLeft[buf.RankIndex()])
		rightRank = transport.Rank(buf.RecvRight[buf.RankIndex()])

		log.WithField("dist", dist).WithField("left", leftRank).WithField("right", rightRank).Debug("split_bin: round complete")
	}

	if ranks == 1 {
		myLeft = commRank
		myRight = commRank
	}

	if myBin < 0 {
		return Null(t, commRank), nil
	}

	countLeft := buf.SendRight[buf.CountIndex(myBin)] - 1
	countRight := buf.SendLeft[buf.CountIndex(myBin)] - 1

	return Chain{
		Transport: t,
		Rank:      commRank,
		Left:      myLeft,
		Right:     myRight,
		ChainRank: int(countLeft),
		ChainSize: int(countLeft + countRight + 1),
	}, nil
}
