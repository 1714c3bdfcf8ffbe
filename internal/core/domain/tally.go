package domain

import "fmt"

// Estimator is the tally estimator kind.
type Estimator int

const (
	EstimatorAnalog Estimator = iota
	EstimatorTrackLength
	EstimatorCollision
)

const (
	estimatorAnalogLabel      = "analog"
	estimatorTrackLengthLabel = "tracklength"
	estimatorCollisionLabel   = "collision"
)

// String returns the wire label for the estimator.
func (e Estimator) String() string {
	switch e {
	case EstimatorTrackLength:
		return estimatorTrackLengthLabel
	case EstimatorCollision:
		return estimatorCollisionLabel
	default:
		return estimatorAnalogLabel
	}
}

// ParseEstimator parses a wire label into an Estimator.
func ParseEstimator(s string) (Estimator, error) {
	switch s {
	case estimatorAnalogLabel:
		return EstimatorAnalog, nil
	case estimatorTrackLengthLabel:
		return EstimatorTrackLength, nil
	case estimatorCollisionLabel:
		return EstimatorCollision, nil
	default:
		return 0, fmt.Errorf("domain: unknown estimator %q", s)
	}
}

// totalLabel is the rendered label for the total nuclide bin.
const totalLabel = "total"

// NuclideBin is one nuclide scoring bin. The zero value is the "total" bin
// covering all nuclides; there is no numeric sentinel.
type NuclideBin struct {
	name string
}

// TotalNuclide returns the bin covering all nuclides.
func TotalNuclide() NuclideBin {
	return NuclideBin{}
}

// Nuclide returns the bin for a single named nuclide, e.g. "U235".
func Nuclide(name string) NuclideBin {
	return NuclideBin{name: name}
}

// IsTotal reports whether this is the all-nuclides bin.
func (n NuclideBin) IsTotal() bool {
	return n.name == ""
}

// Label renders the persisted bin label: the nuclide name, or "total".
func (n NuclideBin) Label() string {
	if n.name == "" {
		return totalLabel
	}
	return n.name
}

// ParseNuclideBin reads a persisted bin label back into a NuclideBin.
func ParseNuclideBin(label string) NuclideBin {
	if label == totalLabel {
		return TotalNuclide()
	}
	return Nuclide(label)
}

// DerivVariable names the differentiated variable of a tally derivative.
type DerivVariable int

const (
	DerivDensity DerivVariable = iota
	DerivNuclideDensity
	DerivTemperature
)

const (
	derivDensityLabel        = "density"
	derivNuclideDensityLabel = "nuclide_density"
	derivTemperatureLabel    = "temperature"
)

// String returns the wire label for the derivative variable.
func (v DerivVariable) String() string {
	switch v {
	case DerivNuclideDensity:
		return derivNuclideDensityLabel
	case DerivTemperature:
		return derivTemperatureLabel
	default:
		return derivDensityLabel
	}
}

// ParseDerivVariable parses a wire label into a DerivVariable.
func ParseDerivVariable(s string) (DerivVariable, error) {
	switch s {
	case derivDensityLabel:
		return DerivDensity, nil
	case derivNuclideDensityLabel:
		return DerivNuclideDensity, nil
	case derivTemperatureLabel:
		return DerivTemperature, nil
	default:
		return 0, fmt.Errorf("domain: unknown derivative variable %q", s)
	}
}

// TallyDerivative describes a differential tally: the variable being
// differentiated and its target material (and nuclide, where applicable).
type TallyDerivative struct {
	ID       int32
	Variable DerivVariable
	Material int32
	Nuclide  string
}

// Tally is one tally definition plus its accumulated results.
//
// Sum and SumSq are bin-major accumulators of length
// filterBins * len(Nuclides) * len(Scores). They are nil until results
// exist.
type Tally struct {
	ID        int32
	Name      string
	Estimator Estimator

	FilterIDs []int32
	Nuclides  []NuclideBin
	Scores    []string

	// DerivativeID links a TallyDerivative; zero means none.
	DerivativeID int32

	// Accumulated results.
	NumRealizations int32
	Sum             []float64
	SumSq           []float64
}

// HasDerivative reports whether the tally is differentiated.
func (t *Tally) HasDerivative() bool {
	return t.DerivativeID != 0
}

// NumBins returns the total accumulator length for the tally given the
// filters and meshes it references.
func (t *Tally) NumBins(filters map[int32]*Filter, meshes map[int32]*RegularMesh) int {
	n := 1
	for _, fid := range t.FilterIDs {
		f, ok := filters[fid]
		if !ok {
			return 0
		}
		n *= f.NumBins(meshes)
	}
	n *= max(len(t.Nuclides), 1)
	n *= max(len(t.Scores), 1)
	return n
}

// NuclideLabels renders the persisted nuclide bin labels.
func (t *Tally) NuclideLabels() []string {
	labels := make([]string, len(t.Nuclides))
	for i, n := range t.Nuclides {
		labels[i] = n.Label()
	}
	return labels
}

// ResetResults clears accumulated results.
func (t *Tally) ResetResults() {
	t.NumRealizations = 0
	t.Sum = nil
	t.SumSq = nil
}
