package domain

import "math"

// EigenvalueState holds the per-batch eigenvalue estimator history and the
// derived running statistics.
//
// KGeneration is fixed-length for the full configured batch count; entries
// beyond the current batch cursor are unpopulated and must never be read
// back. A restore truncates its view to the restart cursor.
type EigenvalueState struct {
	KGeneration []float64

	// Derived statistics over active batches. Recomputed, never persisted.
	KEffMean float64
	KEffStd  float64
}

// NewEigenvalueState allocates history for nBatches batches.
func NewEigenvalueState(nBatches int32) *EigenvalueState {
	return &EigenvalueState{
		KGeneration: make([]float64, nBatches),
	}
}

// Resize grows the history to nBatches, preserving populated entries.
// A restart may only extend a run, so shrinking is a no-op.
func (e *EigenvalueState) Resize(nBatches int32) {
	if int(nBatches) <= len(e.KGeneration) {
		return
	}
	grown := make([]float64, nBatches)
	copy(grown, e.KGeneration)
	e.KGeneration = grown
}

// Recompute recalculates the running mean and standard deviation of k-eff
// over active batches through the given cursor. This is the statistical
// recompute invoked after a restore.
func (e *EigenvalueState) Recompute(cursor, nInactive int32) {
	e.KEffMean = 0
	e.KEffStd = 0

	n := int(cursor - nInactive)
	if n <= 0 {
		return
	}

	var sum, sumSq float64
	for i := nInactive; i < cursor; i++ {
		k := e.KGeneration[i]
		sum += k
		sumSq += k * k
	}
	mean := sum / float64(n)
	e.KEffMean = mean
	if n > 1 {
		variance := (sumSq/float64(n) - mean*mean) / float64(n-1)
		if variance > 0 {
			e.KEffStd = math.Sqrt(variance)
		}
	}
}

// CMFDState holds the coarse-mesh finite-difference acceleration state.
//
// The per-batch arrays are fixed-length for the full configured batch count
// but only populated through the batch cursor.
type CMFDState struct {
	On bool

	// Indices are the coarse mesh extents (nx, ny, nz, ng).
	Indices [4]int32

	K        []float64
	Entropy  []float64
	Balance  []float64
	DomRatio []float64
	SrcCmp   []float64

	// Src is the coarse mesh source array (nx*ny*nz*ng).
	Src []float64
}

// NewCMFDState allocates per-batch arrays for nBatches batches.
func NewCMFDState(nBatches int32, indices [4]int32) *CMFDState {
	n := int(indices[0]) * int(indices[1]) * int(indices[2]) * int(indices[3])
	return &CMFDState{
		On:       true,
		Indices:  indices,
		K:        make([]float64, nBatches),
		Entropy:  make([]float64, nBatches),
		Balance:  make([]float64, nBatches),
		DomRatio: make([]float64, nBatches),
		SrcCmp:   make([]float64, nBatches),
		Src:      make([]float64, n),
	}
}

// Resize grows the per-batch arrays to nBatches, preserving populated
// entries. Shrinking is a no-op: runs only extend.
func (c *CMFDState) Resize(nBatches int32) {
	grow := func(a []float64) []float64 {
		if int(nBatches) <= len(a) {
			return a
		}
		g := make([]float64, nBatches)
		copy(g, a)
		return g
	}
	c.K = grow(c.K)
	c.Entropy = grow(c.Entropy)
	c.Balance = grow(c.Balance)
	c.DomRatio = grow(c.DomRatio)
	c.SrcCmp = grow(c.SrcCmp)
}
