// Package cmap provides a concurrent-safe sharded map.
//
// It uses sharding to reduce lock contention when many goroutines (rank
// workers, collective rendezvous slots) touch the same table. Sharding
// beats a single RWMutex map under write-heavy contention and avoids
// sync.Map's interface boxing.
//
// @req RQ-0201
// @design DS-0202
package cmap
