// Package store implements the single-file hierarchical container that
// checkpoint files are written into.
//
// A container is a tree of named groups; each group carries typed
// attributes (int64, float64, string) and typed datasets ([]int64,
// []float64, []string). The tree is serialized as one file:
//
//	magic (8 bytes)
//	uint32 header length · JSON header {format_version, created_at, encrypted}
//	uint32 body length · JSON group tree (optionally AEAD-encrypted)
//	sha256 checksum over everything before it
//
// Writes go to a temporary sibling and are renamed into place on Close,
// so readers never observe a torn file.
//
// When Options.Comm carries a multi-rank communicator with collective
// I/O support, every rank calls Create/Open/Close and the collective
// dataset operations (WriteSum, WriteConcat, ReadSlice) in matching
// order. Only the coordinator touches the OS file; the other ranks hold
// participation handles, and an independent read or write through such a
// handle fails with ErrNotCoordinator.
//
// @req RQ-0601
// @design DS-0601
package store
