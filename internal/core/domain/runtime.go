package domain

// RunTime holds accumulated wall-clock metrics, in seconds, for the phases
// of a run. All fields are persisted in the checkpoint runtime section.
type RunTime struct {
	Initialization float64
	ReadXS         float64
	Simulation     float64
	Transport      float64

	// Fission bank synchronization phases.
	Bank         float64
	BankSample   float64
	BankSendRecv float64

	TallyAccum float64

	// CMFD phases.
	CMFD      float64
	CMFDBuild float64
	CMFDSolve float64

	Total float64
}
