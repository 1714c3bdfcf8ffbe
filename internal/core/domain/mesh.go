package domain

import "fmt"

// RegularMesh is a structured cartesian mesh used by mesh filters and the
// CMFD solver.
type RegularMesh struct {
	ID         int32
	Dimension  []int32
	LowerLeft  []float64
	UpperRight []float64
	Width      []float64
}

// NumCells returns the total cell count of the mesh.
func (m *RegularMesh) NumCells() int {
	if len(m.Dimension) == 0 {
		return 0
	}
	n := 1
	for _, d := range m.Dimension {
		n *= int(d)
	}
	return n
}

// Validate checks mesh consistency.
func (m *RegularMesh) Validate() error {
	if len(m.Dimension) == 0 || len(m.Dimension) > 3 {
		return fmt.Errorf("domain: mesh %d: dimension must have 1-3 entries", m.ID)
	}
	for _, d := range m.Dimension {
		if d <= 0 {
			return fmt.Errorf("domain: mesh %d: non-positive dimension", m.ID)
		}
	}
	if len(m.LowerLeft) != len(m.Dimension) {
		return fmt.Errorf("domain: mesh %d: lower_left length mismatch", m.ID)
	}
	if len(m.UpperRight) != len(m.Dimension) && len(m.Width) != len(m.Dimension) {
		return fmt.Errorf("domain: mesh %d: need upper_right or width", m.ID)
	}
	return nil
}
