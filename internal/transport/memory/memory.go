// Package memory implements transport.Transport entirely in-process,
// using one Go channel per ordered (source, destination) pair. All
// participants run as goroutines in the same process and communicate
// without a socket, the same role inprocgrpc's Channel plays for gRPC:
// fast, deterministic, and suitable for unit tests and single-process
// simulation of a distributed run.
package memory

import (
	"fmt"
	"sync"

	"github.com/joeycumines/go-lwgrp/internal/transport"
)

type pairKey struct{ src, dst transport.Rank }

type envelope struct {
	tag  int
	data any
}

// Network is the shared registry of per-pair channels. Every
// participant in a run must be created from the same Network.
type Network struct {
	mu    sync.Mutex
	pairs map[pairKey]chan envelope
}

// NewNetwork creates an empty, ready-to-use registry.
func NewNetwork() *Network {
	return &Network{pairs: make(map[pairKey]chan envelope)}
}

func (n *Network) channel(src, dst transport.Rank) chan envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := pairKey{src, dst}
	ch, ok := n.pairs[key]
	if !ok {
		// buffered: within one round the engines post at most a handful
		// of sends per directed pair, and a participant's goroutine may
		// race ahead onto the next round before its peer has drained the
		// previous one's message.
		ch = make(chan envelope, 16)
		n.pairs[key] = ch
	}
	return ch
}

// Transport is a Network-backed transport.Transport for a single
// participant, identified by rank.
type Transport struct {
	net  *Network
	rank transport.Rank
}

var _ transport.Transport = (*Transport)(nil)

// New returns a Transport for rank on net. Channels are created on net
// lazily, on first use by a send or receive.
func New(net *Network, rank transport.Rank) *Transport {
	return &Transport{net: net, rank: rank}
}

// Rank returns this participant's rank.
func (x *Transport) Rank() transport.Rank { return x.rank }

type sendRequest struct{}

type recvRequest struct {
	ch     chan envelope
	tag    int
	dtype  transport.Datatype
	buf    any
	offset int
	count  int
	result chan error
}

// Isend copies the requested segment and hands it to the channel for the
// (this rank, dst) pair. Sends to transport.None complete immediately as no-ops,
// per spec.md section 5.
func (x *Transport) Isend(dst transport.Rank, tag int, dtype transport.Datatype, buf any, offset, count int) (transport.Request, error) {
	if dst == transport.None {
		return sendRequest{}, nil
	}
	seg, err := copySegment(dtype, buf, offset, count)
	if err != nil {
		return nil, err
	}
	// sent synchronously (not from a background goroutine) so that two
	// sends posted back to back from this rank to the same destination,
	// within the same round, are observed by the destination in the
	// order they were posted (spec.md section 5's point-to-point
	// ordering guarantee). The buffered channel absorbs the common case
	// where the destination hasn't reached its own WaitAll yet.
	ch := x.net.channel(x.rank, dst)
	ch <- envelope{tag: tag, data: seg}
	return sendRequest{}, nil
}

// Irecv posts a receive that WaitAll resolves by reading the channel for
// the (src, this rank) pair on the calling goroutine. Receives from
// transport.None complete immediately as no-ops.
func (x *Transport) Irecv(src transport.Rank, tag int, dtype transport.Datatype, buf any, offset, count int) (transport.Request, error) {
	if src == transport.None {
		return recvRequest{}, nil
	}
	return recvRequest{
		ch:     x.net.channel(src, x.rank),
		tag:    tag,
		dtype:  dtype,
		buf:    buf,
		offset: offset,
		count:  count,
		result: make(chan error, 1),
	}, nil
}

// WaitAll blocks until every request has completed, draining receives in
// the order reqs lists them. This is deliberately sequential rather than
// concurrent: both engines can post two receives from the same neighbor
// within a single round (the data payload and a piggybacked address),
// and spec.md section 5's point-to-point ordering guarantee only holds
// if they are drained from that neighbor's channel in the same order
// they were posted — reading them with independent concurrent
// goroutines would race on which request observes which message.
func (x *Transport) WaitAll(reqs ...transport.Request) error {
	for _, r := range reqs {
		rr, ok := r.(recvRequest)
		if !ok || rr.ch == nil {
			continue
		}
		env := <-rr.ch
		if env.tag != rr.tag {
			return &transport.Error{Op: "waitall", Err: fmt.Errorf("memory: tag mismatch: got %d want %d", env.tag, rr.tag)}
		}
		if err := writeSegment(rr.dtype, rr.buf, rr.offset, rr.count, env.data); err != nil {
			return &transport.Error{Op: "waitall", Err: err}
		}
	}
	return nil
}

func copySegment(dtype transport.Datatype, buf any, offset, count int) (any, error) {
	switch dtype {
	case transport.Int32:
		s, ok := buf.([]int32)
		if !ok {
			return nil, fmt.Errorf("memory: expected []int32 for Int32 datatype, got %T", buf)
		}
		seg := make([]int32, count)
		copy(seg, s[offset:offset+count])
		return seg, nil
	case transport.Byte:
		s, ok := buf.([]byte)
		if !ok {
			return nil, fmt.Errorf("memory: expected []byte for Byte datatype, got %T", buf)
		}
		seg := make([]byte, count)
		copy(seg, s[offset:offset+count])
		return seg, nil
	default:
		return nil, fmt.Errorf("memory: unsupported datatype %v", dtype)
	}
}

func writeSegment(dtype transport.Datatype, buf any, offset, count int, data any) error {
	switch dtype {
	case transport.Int32:
		s, ok := buf.([]int32)
		if !ok {
			return fmt.Errorf("memory: expected []int32 for Int32 datatype, got %T", buf)
		}
		seg, ok := data.([]int32)
		if !ok || len(seg) != count {
			return fmt.Errorf("memory: received segment length mismatch")
		}
		copy(s[offset:offset+count], seg)
		return nil
	case transport.Byte:
		s, ok := buf.([]byte)
		if !ok {
			return fmt.Errorf("memory: expected []byte for Byte datatype, got %T", buf)
		}
		seg, ok := data.([]byte)
		if !ok || len(seg) != count {
			return fmt.Errorf("memory: received segment length mismatch")
		}
		copy(s[offset:offset+count], seg)
		return nil
	default:
		return fmt.Errorf("memory: unsupported datatype %v", dtype)
	}
}
