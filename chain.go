package lwgrp

import "github.com/joeycumines/go-lwgrp/internal/transport"

// None is the sentinel used for an absent neighbor, re-exported from
// internal/transport for callers that never need to touch the transport
// collaborator directly.
const None = transport.None

// Chain represents one process's view of an ordered sequence of
// participating processes (spec.md section 3.1). It holds exactly five
// fields plus the transport it is defined over: the transport rank, the
// left and right neighbor transport ranks (or None), the chain rank
// (0-based position), and the chain size.
//
// The zero value is the null chain only when constructed via Null; an
// uninitialized Chain{} has a nil Transport and must not be used.
type Chain struct {
	Transport   transport.Transport
	Rank        transport.Rank
	Left, Right transport.Rank
	ChainRank   int
	ChainSize   int
}

// Null returns the distinguished empty chain: size 0, both neighbors
// None, chain rank unspecified (spec.md section 3.1). This is what
// lwgrp_ring_set_null produces in the original C implementation, and
// what processes with a negative bin receive from SplitBin.
func Null(t transport.Transport, rank transport.Rank) Chain {
	return Chain{
		Transport: t,
		Rank:      rank,
		Left:      None,
		Right:     None,
		ChainRank: 0,
		ChainSize: 0,
	}
}

// Singleton returns a one-process chain: both neighbors None, chain rank
// 0, chain size 1.
func Singleton(t transport.Transport, rank transport.Rank) Chain {
	return Chain{
		Transport: t,
		Rank:      rank,
		Left:      None,
		Right:     None,
		ChainRank: 0,
		ChainSize: 1,
	}
}

// Ring builds the initial whole-group chain descriptor for a transport
// context of len(ranks) participants, wrapped into a cycle: the
// head's left neighbor is the tail's transport rank and the tail's right
// neighbor is the head's, rather than None. This is the descriptor
// constructor spec.md section 1 calls out of scope ("descriptor
// constructors that initialize the initial chain"); it is supplied here
// because AlltoallvLinear's full-coverage guarantee (every ordered pair
// visited in exactly chain size rounds, spec.md section 8 property 6) only
// holds over a genuine ring, never over a chain with None at its ends.
// SplitBin's own output is deliberately not a ring (property 3: head and
// tail carry None) since it represents a strict sub-sequence, not a
// communication cycle; feed its output through Ring before driving
// AlltoallvLinear over a sub-group.
//
// myIndex must be ranks[myIndex]'s position in ranks on every participant;
// ranks must list every participant's transport rank in the same order on
// every participant.
func Ring(t transport.Transport, ranks []transport.Rank, myIndex int) Chain {
	n := len(ranks)
	c := Chain{
		Transport: t,
		Rank:      ranks[myIndex],
		ChainRank: myIndex,
		ChainSize: n,
	}
	if n == 1 {
		c.Left, c.Right = ranks[0], ranks[0]
		return c
	}
	c.Left = ranks[(myIndex-1+n)%n]
	c.Right = ranks[(myIndex+1)%n]
	return c
}

// IsNull reports whether c is a null (empty) chain.
func (c Chain) IsNull() bool { return c.ChainSize == 0 }

// Valid reports whether c satisfies the chain descriptor invariants from
// spec.md section 3.1: None appears on the left iff ChainRank == 0, on
// the right iff ChainRank == ChainSize-1, and ChainRank < ChainSize
// whenever the chain is non-null.
func (c Chain) Valid() bool {
	if c.IsNull() {
		return c.Left == None && c.Right == None
	}
	if c.ChainRank < 0 || c.ChainRank >= c.ChainSize {
		return false
	}
	if (c.Left == None) != (c.ChainRank == 0) {
		return false
	}
	if (c.Right == None) != (c.ChainRank == c.ChainSize-1) {
		return false
	}
	return true
}
