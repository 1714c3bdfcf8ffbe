// Package main provides the entry point for openmc.
//
// openmc runs the batch simulation driver: it executes batches from a
// fresh start or a checkpoint restart, writes checkpoints at the
// configured batches, and records a final checkpoint on shutdown.
package main
