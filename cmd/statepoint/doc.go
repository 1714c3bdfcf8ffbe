// Package main provides the entry point for statepoint.
//
// statepoint is the offline checkpoint inspection tool: header summary,
// integrity verification, and tally inventory.
package main
