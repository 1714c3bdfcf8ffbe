package domain

import "fmt"

// FilterKind tags the closed set of tally filter variants. Persistence
// dispatches on this tag; there is no open-ended filter interface.
type FilterKind string

const (
	FilterUniverse FilterKind = "universe"
	FilterMaterial FilterKind = "material"
	FilterCell     FilterKind = "cell"
	FilterEnergy   FilterKind = "energy"
	FilterMesh     FilterKind = "mesh"
)

// knownFilterKinds is the closed set accepted by ParseFilterKind.
var knownFilterKinds = map[FilterKind]bool{
	FilterUniverse: true,
	FilterMaterial: true,
	FilterCell:     true,
	FilterEnergy:   true,
	FilterMesh:     true,
}

// ParseFilterKind validates a wire label against the closed variant set.
func ParseFilterKind(s string) (FilterKind, error) {
	k := FilterKind(s)
	if !knownFilterKinds[k] {
		return "", fmt.Errorf("domain: unknown filter kind %q", s)
	}
	return k, nil
}

// Filter is one tally filter. Which parameter fields are meaningful depends
// on Kind:
//
//   - universe/material/cell: Bins holds the geometry ids
//   - energy: Bounds holds the bin edges (NumBins = len(Bounds)-1)
//   - mesh: MeshID names a RegularMesh
type Filter struct {
	ID   int32
	Kind FilterKind

	Bins   []int32
	Bounds []float64
	MeshID int32
}

// NumBins returns the number of scoring bins this filter contributes.
// Mesh filters need the mesh dimensions, supplied by the caller.
func (f *Filter) NumBins(meshes map[int32]*RegularMesh) int {
	switch f.Kind {
	case FilterEnergy:
		if len(f.Bounds) < 2 {
			return 0
		}
		return len(f.Bounds) - 1
	case FilterMesh:
		m, ok := meshes[f.MeshID]
		if !ok {
			return 0
		}
		return m.NumCells()
	default:
		return len(f.Bins)
	}
}

// Validate checks the filter parameters against its kind.
func (f *Filter) Validate() error {
	if !knownFilterKinds[f.Kind] {
		return fmt.Errorf("domain: filter %d: unknown kind %q", f.ID, f.Kind)
	}
	switch f.Kind {
	case FilterEnergy:
		if len(f.Bounds) < 2 {
			return fmt.Errorf("domain: filter %d: energy filter needs at least 2 bounds", f.ID)
		}
		for i := 1; i < len(f.Bounds); i++ {
			if f.Bounds[i] <= f.Bounds[i-1] {
				return fmt.Errorf("domain: filter %d: energy bounds not increasing", f.ID)
			}
		}
	case FilterMesh:
		if f.MeshID == 0 {
			return fmt.Errorf("domain: filter %d: mesh filter needs a mesh id", f.ID)
		}
	default:
		if len(f.Bins) == 0 {
			return fmt.Errorf("domain: filter %d: %s filter needs bins", f.ID, f.Kind)
		}
	}
	return nil
}
