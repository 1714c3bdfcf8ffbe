// Package rng provides the reproducible random-number stream for the
// simulation.
//
// The generator is a 63-bit linear congruential generator with an O(log N)
// skip-ahead, so a restored run can reposition the stream exactly and
// continue the stochastic sequence bit-identically. Checkpoints persist the
// seed; the driver recomputes the stream position from the restart cursor.
//
// @req RQ-0301
// @design DS-0301
package rng
