// Package command defines the statepoint tool's commands.
//
// The tool inspects checkpoint files offline: header summary, integrity
// verification, and the recorded tally inventory. It never mutates a
// checkpoint.
//
// @design DS-0901
package command
