package comm

import "errors"

// Errors for collective operations.
var (
	ErrClosed          = errors.New("comm: communicator closed")
	ErrNotCoordinator  = errors.New("comm: operation restricted to the coordinator")
	ErrLengthMismatch  = errors.New("comm: contribution lengths differ across ranks")
	ErrScatterShape    = errors.New("comm: scatter parts do not match group size")
	ErrMembersTimedOut = errors.New("comm: timed out waiting for members")
)

// Comm is one rank's handle on the cooperating group.
//
// All collective methods (Barrier, ReduceSum, Gather, Scatter,
// AllGatherInt) must be called by every rank of the group in matching
// order. Calls block until the whole group has participated.
type Comm interface {
	// Rank is this process's index in [0, Size).
	Rank() int

	// Size is the number of cooperating ranks.
	Size() int

	// IsCoordinator reports whether this rank performs independent store
	// access on behalf of the group. Always rank 0.
	IsCoordinator() bool

	// SupportsCollectiveIO reports whether every rank participates in
	// store open/write calls, or only the coordinator.
	SupportsCollectiveIO() bool

	// Barrier blocks until all ranks have entered it.
	Barrier() error

	// ReduceSum element-wise sums the contributions of all ranks. The
	// result is returned on the coordinator; other ranks receive nil.
	// Contributions must have equal length on every rank.
	ReduceSum(vals []float64) ([]float64, error)

	// Gather collects each rank's slice, ordered by rank, on the
	// coordinator; other ranks receive nil.
	Gather(vals []float64) ([][]float64, error)

	// Scatter distributes parts (supplied on the coordinator, one per
	// rank) and returns this rank's part on every rank.
	Scatter(parts [][]float64) ([]float64, error)

	// AllGatherInt collects one int per rank, ordered by rank, on every
	// rank.
	AllGatherInt(v int) ([]int, error)

	// Close releases the rank's group resources.
	Close() error
}

// single is the trivial size-1 group.
type single struct{}

// Single returns a communicator for a serial run. It reports no collective
// I/O capability, so all store access stays on the independent path.
func Single() Comm {
	return single{}
}

func (single) Rank() int                  { return 0 }
func (single) Size() int                  { return 1 }
func (single) IsCoordinator() bool        { return true }
func (single) SupportsCollectiveIO() bool { return false }
func (single) Barrier() error             { return nil }
func (single) Close() error               { return nil }

func (single) ReduceSum(vals []float64) ([]float64, error) {
	out := make([]float64, len(vals))
	copy(out, vals)
	return out, nil
}

func (single) Gather(vals []float64) ([][]float64, error) {
	out := make([]float64, len(vals))
	copy(out, vals)
	return [][]float64{out}, nil
}

func (single) Scatter(parts [][]float64) ([]float64, error) {
	if len(parts) != 1 {
		return nil, ErrScatterShape
	}
	return parts[0], nil
}

func (single) AllGatherInt(v int) ([]int, error) {
	return []int{v}, nil
}

// Broadcast distributes the coordinator's vector to every rank. Built on
// Scatter with one copy of the data per rank; vals is ignored on
// non-coordinator ranks.
func Broadcast(c Comm, vals []float64) ([]float64, error) {
	var parts [][]float64
	if c.IsCoordinator() {
		parts = make([][]float64, c.Size())
		for i := range parts {
			parts[i] = vals
		}
	}
	return c.Scatter(parts)
}
