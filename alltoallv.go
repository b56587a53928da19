package lwgrp

import (
	"github.com/joeycumines/go-lwgrp/internal/transport"
)

// AlltoallvLinear circulates personalized payloads around group's chain:
// for every ordered pair (s, d) of chain members, the sendcounts[d]
// elements starting at senddispls[d] in s's send buffer are delivered to
// recvdispls[s] in d's receive buffer. This is spec.md section 4.2's
// ring all-to-all engine, ported line-for-line from
// original_source/src/lwgrp_ring_ops.c's lwgrp_ring_alltoallv_linear.
//
// sendcounts, senddispls, recvcounts, and recvdispls are indexed by
// transport rank across the whole transport context, not by chain rank
// (spec.md section 9) — callers must not re-index them. The call
// completes in exactly group.ChainSize rounds, each posting six
// nonblocking operations (two data transfers and four address-rotation
// transfers) followed by one wait-all. Every ordered pair is delivered
// only when group's Left/Right wrap around (as Ring builds); on a chain
// with None at its ends, pairs beyond an end are not delivered. A
// one-member ring still performs one round of self-send/self-receive;
// it is never special-cased away.
func AlltoallvLinear(
	sendbuf any,
	sendcounts, senddispls map[transport.Rank]int,
	recvbuf any,
	recvcounts, recvdispls map[transport.Rank]int,
	dtype transport.Datatype,
	group Chain,
	opts ...Option,
) error {
	if group.Transport == nil || group.ChainSize < 1 {
		return &InvalidArgumentError{Cause: ErrMalformedChain}
	}

	o := resolveOptions(opts)
	log := o.logger.WithField("op", "alltoallv_linear").WithField("chain_size", group.ChainSize)

	t := group.Transport
	ranks := group.ChainSize
	src, dst := group.Left, group.Right

	for dist := 0; dist < ranks; dist++ {
		recvPtr, recvCount := recvdispls[src], recvcounts[src]
		sendPtr, sendCount := senddispls[dst], sendcounts[dst]

		rRecvData, err := t.Irecv(src, transport.Tag, dtype, recvbuf, recvPtr, recvCount)
		if err != nil {
			return &TransportError{Op: "alltoallv_linear: irecv data", Cause: err}
		}
		rSendData, err := t.Isend(dst, transport.Tag, dtype, sendbuf, sendPtr, sendCount)
		if err != nil {
			return &TransportError{Op: "alltoallv_linear: isend data", Cause: err}
		}

		// address rotation: learn who will be dist+1 hops to our left
		// and right, and tell our current partners who we are now, so
		// they can rotate their own partner identities next round.
		//
		// srcNextBuf/dstNextBuf are seeded with the current src/dst so
		// that a receive from None (a no-op, per spec.md section 5)
		// leaves the value unchanged rather than undefined: on a chain
		// with None at its ends (as SplitBin produces), the rotation
		// then simply stops discovering new partners past that edge,
		// instead of reading garbage. Full N-round, every-pair coverage
		// (including the self-delivery at dist == chain size - 1) holds
		// when group is a genuine ring, i.e. its Left/Right already wrap
		// rather than terminating in None.
		srcNextBuf := []int32{int32(src)}
		dstNextBuf := []int32{int32(dst)}
		rRecvSrcNext, err := t.Irecv(src, transport.Tag, transport.Int32, srcNextBuf, 0, 1)
		if err != nil {
			return &TransportError{Op: "alltoallv_linear: irecv src_next", Cause: err}
		}
		rRecvDstNext, err := t.Irecv(dst, transport.Tag, transport.Int32, dstNextBuf, 0, 1)
		if err != nil {
			return &TransportError{Op: "alltoallv_linear: irecv dst_next", Cause: err}
		}
		rSendSrcToDst, err := t.Isend(dst, transport.Tag, transport.Int32, []int32{int32(src)}, 0, 1)
		if err != nil {
			return &TransportError{Op: "alltoallv_linear: isend src", Cause: err}
		}
		rSendDstToSrc, err := t.Isend(src, transport.Tag, transport.Int32, []int32{int32(dst)}, 0, 1)
		if err != nil {
			return &TransportError{Op: "alltoallv_linear: isend dst", Cause: err}
		}

		if err := t.WaitAll(rRecvData, rSendData, rRecvSrcNext, rRecvDstNext, rSendSrcToDst, rSendDstToSrc); err != nil {
			log.WithError(err).Error("alltoallv_linear: wait-all failed")
			return &TransportError{Op: "alltoallv_linear: wait-all", Cause: err}
		}

		src = transport.Rank(srcNextBuf[0])
		dst = transport.Rank(dstNextBuf[0])

		log.WithField("dist", dist).WithField("src", src).WithField("dst", dst).Debug("alltoallv_linear: round complete")
	}

	return nil
}
