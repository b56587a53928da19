// Package transport defines the point-to-point collaborator that both
// engines in go-lwgrp depend on: nonblocking tagged send and receive,
// wait-all, and a None sentinel that turns send/receive into no-ops.
//
// Nothing in this package knows about chains, bins, or scans. It is the
// seam named in spec.md section 6.1, implemented concretely by
// internal/transport/memory (in-process, channel-backed) and
// internal/transport/grpcwire (networked, gRPC-backed).
package transport

import "fmt"

// Rank identifies a participant within a transport context. It is
// distinct from a chain rank (a process's position within a chain),
// which the root package tracks separately.
type Rank int32

// None is the sentinel used for an absent neighbor. Sends and receives
// to/from None must complete immediately and successfully, per spec.md
// section 5.
const None Rank = -1

// Tag is the single message tag reserved for this library's exchanges.
// The original C implementation (LWGRP_MSG_TAG_0) uses exactly one tag
// for every operation in both engines; this package does the same.
const Tag = 0x6c776772 // "lwgr"

// Datatype names the element type carried in a buffer, so a Transport
// can compute byte offsets without the caller doing arithmetic by hand.
type Datatype int

const (
	// Int32 is the only datatype the two engines themselves need: scan
	// cells and forwarded ranks are all int32. alltoallv_linear passes
	// the caller's datatype through to the Transport, so a caller may
	// also use Byte, which the memory and grpcwire transports support.
	Int32 Datatype = iota
	Byte
)

// Request is an opaque handle to an in-flight nonblocking operation,
// returned by Isend/Irecv and resolved by WaitAll. Its concrete type is
// private to whichever Transport implementation created it.
type Request any

// Transport is the collaborator described in spec.md section 6.1: a
// communicator handle, nonblocking send/receive to/from a Rank with a
// tag, and a wait-all barrier. Implementations must make send/receive
// to/from None complete as no-ops (spec.md section 5), and must preserve
// point-to-point ordering between the same pair of ranks with the same
// tag.
type Transport interface {
	// Rank returns this participant's own rank within the transport
	// context.
	Rank() Rank

	// Isend posts a nonblocking send of count elements of dtype, starting
	// at the given offset within buf, to dst, under tag. It returns a
	// Request that WaitAll will resolve.
	Isend(dst Rank, tag int, dtype Datatype, buf any, offset, count int) (Request, error)

	// Irecv posts a nonblocking receive of count elements of dtype, to be
	// written starting at the given offset within buf, from src, under
	// tag.
	Irecv(src Rank, tag int, dtype Datatype, buf any, offset, count int) (Request, error)

	// WaitAll blocks until every given request has completed, or returns
	// the first error encountered. A failure here is a TransportError at
	// the call site (spec.md section 7).
	WaitAll(reqs ...Request) error
}

// Error wraps a failure reported by a concrete Transport implementation.
// The root package's TransportError wraps this unchanged, per spec.md
// section 7 ("any failure reported by the underlying send/receive/wait-all
// is propagated unchanged").
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
