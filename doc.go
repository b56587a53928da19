// Package lwgrp implements the two algorithms at the core of a
// lightweight process-group library for distributed-memory parallel
// programs: SplitBin, a logarithmic-time partitioner that reorganizes a
// linear chain of processes into independent sub-chains by a per-process
// color, and AlltoallvLinear, a pipelined ring all-to-all exchange that
// circulates personalized payloads around a chain while discovering
// successor addresses on the fly.
//
// Both operate without any pre-existing group object on the underlying
// transport: no dense routing table, no broadcast, no collective
// communicator. Per-process state is a Chain value — five integers
// naming this process's transport rank, its position in the chain, the
// chain's size, and its left/right neighbor transport ranks.
package lwgrp
