// Package domain defines the core domain models for the simulation:
// run settings, run and energy treatment modes, tally and filter
// definitions, eigenvalue and CMFD state, runtime metrics, source
// particles, and structured domain errors.
//
// Domain types are pure values with no external dependencies. Persistence
// of these types lives in internal/checkpoint; the domain only defines
// shape and validation.
//
// @req RQ-0101
// @design DS-0101
package domain
