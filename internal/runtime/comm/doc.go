// Package comm provides the distributed runtime for cooperating ranks.
//
// Multiple processes ("ranks") execute the same program in lock-step
// cooperation. Rank 0 is the coordinator and performs all independent
// (non-collective) store access. Collective operations must be invoked by
// every rank in matching order; a rank that skips one deadlocks the group,
// exactly as the underlying model requires.
//
// Three implementations:
//
//   - Single: a trivial size-1 group for serial runs
//   - NewLocalGroup: n in-process ranks over a shared hub (used by the
//     multi-rank tests and single-machine runs)
//   - NewMesh: gossip-discovered processes with TCP collectives
//
// @req RQ-0201
// @design DS-0201
package comm
