package lwgrp

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/go-lwgrp/internal/transport"
	"github.com/joeycumines/go-lwgrp/internal/transport/memory"
)

// countingTransport wraps a transport.Transport and counts WaitAll calls,
// so tests can assert on spec.md section 8 properties 5 and 7 (round-count
// bounds) without instrumenting the engines themselves.
type countingTransport struct {
	transport.Transport
	mu     sync.Mutex
	rounds int
}

func (c *countingTransport) WaitAll(reqs ...transport.Request) error {
	c.mu.Lock()
	c.rounds++
	c.mu.Unlock()
	return c.Transport.WaitAll(reqs...)
}

func (c *countingTransport) Rounds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rounds
}

// runGroup runs fn concurrently for n participants sharing one in-memory
// network, indexed 0..n-1 by transport rank, joining via errgroup the same
// way the monorepo's event-loop-driven concurrent adapters fan out and
// join goroutines.
func runGroup(t *testing.T, n int, fn func(x *countingTransport, rank transport.Rank) error) []*countingTransport {
	t.Helper()
	net := memory.NewNetwork()
	transports := make([]*countingTransport, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		rank := transport.Rank(i)
		x := &countingTransport{Transport: memory.New(net, rank)}
		transports[i] = x
		g.Go(func() error { return fn(x, rank) })
	}
	require.NoError(t, g.Wait())
	return transports
}

// runGroupRanks is runGroup with caller-chosen transport ranks: the i-th
// participant's transport is registered under ranks[i].
func runGroupRanks(t *testing.T, ranks []transport.Rank, fn func(x *countingTransport, rank transport.Rank) error) []*countingTransport {
	t.Helper()
	net := memory.NewNetwork()
	transports := make([]*countingTransport, len(ranks))
	var g errgroup.Group
	for i, rank := range ranks {
		x := &countingTransport{Transport: memory.New(net, rank)}
		transports[i] = x
		g.Go(func() error { return fn(x, rank) })
	}
	require.NoError(t, g.Wait())
	return transports
}

func linearChain(t transport.Transport, ranks []transport.Rank, idx int) Chain {
	n := len(ranks)
	c := Chain{Transport: t, Rank: ranks[idx], ChainRank: idx, ChainSize: n, Left: None, Right: None}
	if idx > 0 {
		c.Left = ranks[idx-1]
	}
	if idx < n-1 {
		c.Right = ranks[idx+1]
	}
	return c
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	rounds := 0
	for dist := 1; dist < n; dist <<= 1 {
		rounds++
	}
	return rounds
}

// --- S1: N=1, num_bins=1, my_bin=[0] ---

func TestSplitBin_S1(t *testing.T) {
	results := make([]Chain, 1)
	runGroup(t, 1, func(x *countingTransport, rank transport.Rank) error {
		in := linearChain(x, []transport.Rank{0}, 0)
		out, err := SplitBin(1, 0, in)
		results[0] = out
		return err
	})

	c := results[0]
	require.Equal(t, 1, c.ChainSize)
	require.Equal(t, 0, c.ChainRank)
	require.Equal(t, transport.Rank(0), c.Left)
	require.Equal(t, transport.Rank(0), c.Right)
}

// --- S2: N=4, transport ranks [10,11,12,13], my_bin=[0,1,0,1] ---

func TestSplitBin_S2(t *testing.T) {
	ranks := []transport.Rank{10, 11, 12, 13}
	myBin := []int{0, 1, 0, 1}
	results := make([]Chain, 4)

	runGroupRanks(t, ranks, func(x *countingTransport, rank transport.Rank) error {
		idx := int(rank - ranks[0])
		in := linearChain(x, ranks, idx)
		out, err := SplitBin(2, myBin[idx], in)
		results[idx] = out
		return err
	})

	// process 10 (index 0): size 2, rank 0, right=12, left=None
	require.Equal(t, 2, results[0].ChainSize)
	require.Equal(t, 0, results[0].ChainRank)
	require.Equal(t, transport.Rank(12), results[0].Right)
	require.Equal(t, None, results[0].Left)

	// process 12 (index 2): size 2, rank 1, left=10, right=None
	require.Equal(t, 2, results[2].ChainSize)
	require.Equal(t, 1, results[2].ChainRank)
	require.Equal(t, transport.Rank(10), results[2].Left)
	require.Equal(t, None, results[2].Right)

	// process 11 (index 1): size 2, rank 0, right=13
	require.Equal(t, 2, results[1].ChainSize)
	require.Equal(t, 0, results[1].ChainRank)
	require.Equal(t, transport.Rank(13), results[1].Right)

	// process 13 (index 3): size 2, rank 1, left=11
	require.Equal(t, 2, results[3].ChainSize)
	require.Equal(t, 1, results[3].ChainRank)
	require.Equal(t, transport.Rank(11), results[3].Left)
}

// --- S3: N=5, my_bin=[2,2,-1,2,-1] ---

func TestSplitBin_S3(t *testing.T) {
	ranks := []transport.Rank{0, 1, 2, 3, 4}
	myBin := []int{2, 2, -1, 2, -1}
	results := make([]Chain, 5)

	runGroup(t, 5, func(x *countingTransport, rank transport.Rank) error {
		idx := int(rank)
		in := linearChain(x, ranks, idx)
		out, err := SplitBin(3, myBin[idx], in)
		results[idx] = out
		return err
	})

	// processes 0, 1, 3 form a size-3 chain, ranks 0, 1, 2, links 0<->1<->3
	require.Equal(t, 3, results[0].ChainSize)
	require.Equal(t, 0, results[0].ChainRank)
	require.Equal(t, None, results[0].Left)
	require.Equal(t, transport.Rank(1), results[0].Right)

	require.Equal(t, 3, results[1].ChainSize)
	require.Equal(t, 1, results[1].ChainRank)
	require.Equal(t, transport.Rank(0), results[1].Left)
	require.Equal(t, transport.Rank(3), results[1].Right)

	require.Equal(t, 3, results[3].ChainSize)
	require.Equal(t, 2, results[3].ChainRank)
	require.Equal(t, transport.Rank(1), results[3].Left)
	require.Equal(t, None, results[3].Right)

	// processes 2, 4 receive the null chain
	require.True(t, results[2].IsNull())
	require.True(t, results[4].IsNull())
}

// --- S4: N=3, every my_bin=0 ---

func TestSplitBin_S4(t *testing.T) {
	ranks := []transport.Rank{0, 1, 2}
	results := make([]Chain, 3)

	runGroup(t, 3, func(x *countingTransport, rank transport.Rank) error {
		idx := int(rank)
		in := linearChain(x, ranks, idx)
		out, err := SplitBin(1, 0, in)
		results[idx] = out
		return err
	})

	for i, c := range results {
		require.Equal(t, 3, c.ChainSize)
		require.Equal(t, i, c.ChainRank)
	}
}

// --- S5: alltoallv on N=3 chain, sendcounts all 1, integers ---

func TestAlltoallvLinear_S5(t *testing.T) {
	ranks := []transport.Rank{0, 1, 2}
	recvBufs := make([][]int32, 3)

	transports := runGroup(t, 3, func(x *countingTransport, rank transport.Rank) error {
		idx := int(rank)
		group := Ring(x, ranks, idx)

		sendbuf := make([]int32, 3)
		sendcounts := make(map[transport.Rank]int)
		senddispls := make(map[transport.Rank]int)
		for i, r := range ranks {
			sendbuf[i] = int32(rank)
			sendcounts[r] = 1
			senddispls[r] = i
		}

		recvbuf := make([]int32, 3)
		recvcounts := make(map[transport.Rank]int)
		recvdispls := make(map[transport.Rank]int)
		for i, r := range ranks {
			recvcounts[r] = 1
			recvdispls[r] = i
		}

		err := AlltoallvLinear(sendbuf, sendcounts, senddispls, recvbuf, recvcounts, recvdispls, transport.Int32, group)
		recvBufs[idx] = recvbuf
		return err
	})

	for dst, recv := range recvBufs {
		for src, r := range ranks {
			require.Equal(t, int32(r), recv[src], "process %d's slot for source %d", dst, src)
		}
	}

	// property 7: exactly chain size wait-all cycles per process.
	for _, x := range transports {
		require.Equal(t, 3, x.Rounds())
	}
}

// --- S6: alltoallv on N=1 ---

func TestAlltoallvLinear_S6(t *testing.T) {
	var recv []int32
	transports := runGroup(t, 1, func(x *countingTransport, rank transport.Rank) error {
		group := Ring(x, []transport.Rank{0}, 0)

		sendbuf := []int32{42}
		recvbuf := make([]int32, 1)

		err := AlltoallvLinear(
			sendbuf, map[transport.Rank]int{0: 1}, map[transport.Rank]int{0: 0},
			recvbuf, map[transport.Rank]int{0: 1}, map[transport.Rank]int{0: 0},
			transport.Int32, group,
		)
		recv = recvbuf
		return err
	})

	require.Equal(t, []int32{42}, recv)
	require.Equal(t, 1, transports[0].Rounds())
}

// --- Universally quantified invariants ---

func TestSplitBin_Invariants_RandomColorings(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(12)
		numBins := 1 + rng.Intn(4)
		ranks := make([]transport.Rank, n)
		myBin := make([]int, n)
		for i := range ranks {
			ranks[i] = transport.Rank(i)
			myBin[i] = rng.Intn(numBins+1) - 1 // in [-1, numBins)
		}

		results := make([]Chain, n)
		transports := runGroup(t, n, func(x *countingTransport, rank transport.Rank) error {
			idx := int(rank)
			in := linearChain(x, ranks, idx)
			out, err := SplitBin(numBins, myBin[idx], in)
			results[idx] = out
			return err
		})

		// property 5: exactly ceil(log2(max(1,N))) rounds.
		want := ceilLog2(n)
		for _, x := range transports {
			require.Equal(t, want, x.Rounds(), "n=%d", n)
		}

		// group members by bin, in input order.
		bins := make(map[int][]int)
		for i, b := range myBin {
			if b >= 0 {
				bins[b] = append(bins[b], i)
			} else {
				// property 4: empty bin receives the null chain.
				require.True(t, results[i].IsNull(), "n=%d idx=%d", n, i)
			}
		}

		for _, members := range bins {
			// property 1: size matches membership, ranks are a permutation
			// of 0..size-1.
			size := len(members)
			seen := make([]bool, size)
			for _, idx := range members {
				c := results[idx]
				require.Equal(t, size, c.ChainSize, "n=%d idx=%d", n, idx)
				require.GreaterOrEqual(t, c.ChainRank, 0)
				require.Less(t, c.ChainRank, size)
				seen[c.ChainRank] = true
			}
			for _, ok := range seen {
				require.True(t, ok, "n=%d bin permutation incomplete", n)
			}

			// property 2: chain rank order matches input order.
			for k := 1; k < len(members); k++ {
				require.Less(t, results[members[k-1]].ChainRank, results[members[k]].ChainRank, "n=%d", n)
			}

			// property 3: link consistency, None at head/tail. A singleton
			// input chain is the exception: its one member links to itself
			// (see S1).
			end := None
			if n == 1 {
				end = ranks[0]
			}
			byChainRank := make([]int, size)
			for _, idx := range members {
				byChainRank[results[idx].ChainRank] = idx
			}
			for r, idx := range byChainRank {
				c := results[idx]
				if r == 0 {
					require.Equal(t, end, c.Left, "n=%d head", n)
				} else {
					require.Equal(t, ranks[byChainRank[r-1]], c.Left, "n=%d rank=%d", n, r)
				}
				if r == size-1 {
					require.Equal(t, end, c.Right, "n=%d tail", n)
				} else {
					require.Equal(t, ranks[byChainRank[r+1]], c.Right, "n=%d rank=%d", n, r)
				}
			}
		}
	}
}

func TestAlltoallvLinear_Invariant_FullDelivery(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for trial := 0; trial < 10; trial++ {
		n := 1 + rng.Intn(6)
		ranks := make([]transport.Rank, n)
		for i := range ranks {
			ranks[i] = transport.Rank(i)
		}

		recvBufs := make([][]int32, n)
		transports := runGroup(t, n, func(x *countingTransport, rank transport.Rank) error {
			idx := int(rank)
			group := Ring(x, ranks, idx)

			sendbuf := make([]int32, n)
			sendcounts := make(map[transport.Rank]int)
			senddispls := make(map[transport.Rank]int)
			for i, r := range ranks {
				sendbuf[i] = int32(rank)*1000 + int32(r)
				sendcounts[r] = 1
				senddispls[r] = i
			}

			recvbuf := make([]int32, n)
			recvcounts := make(map[transport.Rank]int)
			recvdispls := make(map[transport.Rank]int)
			for i, r := range ranks {
				recvcounts[r] = 1
				recvdispls[r] = i
			}

			err := AlltoallvLinear(sendbuf, sendcounts, senddispls, recvbuf, recvcounts, recvdispls, transport.Int32, group)
			recvBufs[idx] = recvbuf
			return err
		})

		// property 6: every ordered pair (s, d) delivered.
		for d := 0; d < n; d++ {
			for s := 0; s < n; s++ {
				want := int32(s)*1000 + int32(d)
				require.Equal(t, want, recvBufs[d][s], "n=%d s=%d d=%d", n, s, d)
			}
		}

		// property 7: exactly chain size wait-all cycles per process.
		for _, x := range transports {
			require.Equal(t, n, x.Rounds())
		}
	}
}
