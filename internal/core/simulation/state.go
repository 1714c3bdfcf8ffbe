// Package simulation holds the run state and the batch driver.
//
// State is the explicit aggregate the checkpoint layer persists and
// restores; nothing checkpoint-relevant lives in package globals. The
// driver owns the batch loop and decides when checkpoints happen.
//
// @req RQ-0701
// @design DS-0701
package simulation

import (
	"sort"

	"github.com/cchasing/openmc/internal/core/domain"
	"github.com/cchasing/openmc/internal/rng"
)

// GlobalTallyEntries is the number of global tally accumulators:
// k-collision, k-absorption, k-tracklength, leakage.
const GlobalTallyEntries = 4

// State is the complete checkpoint-relevant state of one rank.
type State struct {
	Settings domain.Settings

	// RunID identifies the run that produced this state (ULID).
	RunID string

	// RNG is this rank's random-number stream.
	RNG *rng.Stream

	// CurrentBatch is the number of completed batches.
	CurrentBatch int32

	// NRealizations counts accumulated independent realizations.
	NRealizations int32

	// GlobalTallies holds sum and sum-of-squares pairs for the
	// GlobalTallyEntries accumulators, interleaved [sum0, sq0, sum1, ...].
	GlobalTallies []float64

	Filters     map[int32]*domain.Filter
	Meshes      map[int32]*domain.RegularMesh
	Derivatives map[int32]*domain.TallyDerivative
	Tallies     map[int32]*domain.Tally

	// Eigenvalue is nil in fixed-source mode.
	Eigenvalue *domain.EigenvalueState

	// CMFD is nil when acceleration is off.
	CMFD *domain.CMFDState

	RunTime domain.RunTime

	// SourceBank is this rank's partition of the source population.
	SourceBank []domain.SourceSite

	// ReducedTallies records whether per-rank accumulators were reduced
	// onto the coordinator at batch end. When false every rank holds only
	// its own share and checkpoint writes take the collective sum path.
	ReducedTallies bool
}

// NewState builds a fresh state for the given settings.
func NewState(settings domain.Settings) *State {
	s := &State{
		Settings:      settings,
		RNG:           rng.New(settings.Seed),
		GlobalTallies: make([]float64, 2*GlobalTallyEntries),
		Filters:       make(map[int32]*domain.Filter),
		Meshes:        make(map[int32]*domain.RegularMesh),
		Derivatives:   make(map[int32]*domain.TallyDerivative),
		Tallies:       make(map[int32]*domain.Tally),
	}
	if settings.RunMode == domain.RunModeEigenvalue {
		s.Eigenvalue = domain.NewEigenvalueState(settings.NBatches)
	}
	return s
}

// TallyIDs returns the tally ids in ascending order.
func (s *State) TallyIDs() []int32 {
	ids := make([]int32, 0, len(s.Tallies))
	for id := range s.Tallies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FilterIDs returns the filter ids in ascending order.
func (s *State) FilterIDs() []int32 {
	ids := make([]int32, 0, len(s.Filters))
	for id := range s.Filters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MeshIDs returns the mesh ids in ascending order.
func (s *State) MeshIDs() []int32 {
	ids := make([]int32, 0, len(s.Meshes))
	for id := range s.Meshes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DerivativeIDs returns the derivative ids in ascending order.
func (s *State) DerivativeIDs() []int32 {
	ids := make([]int32, 0, len(s.Derivatives))
	for id := range s.Derivatives {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RecomputeKeff refreshes the running eigenvalue statistics from the
// restored generation history. The checkpoint loader calls this through
// the driver after reconciliation; the statistics themselves are never
// persisted.
func (s *State) RecomputeKeff() {
	if s.Eigenvalue == nil {
		return
	}
	s.Eigenvalue.Recompute(s.CurrentBatch, s.Settings.NInactive)
}

// BankPartition returns the per-rank source site counts for the given
// group size: particles are dealt evenly with the remainder on the low
// ranks, matching how the transport loop distributes work.
func BankPartition(nParticles int64, size int) []int64 {
	counts := make([]int64, size)
	base := nParticles / int64(size)
	rem := nParticles % int64(size)
	for r := range counts {
		counts[r] = base
		if int64(r) < rem {
			counts[r]++
		}
	}
	return counts
}
