package store

import "fmt"

// Collective dataset operations. Every rank of a collective group must
// call these in matching order; each one ends at a barrier so no rank
// races ahead of the file state. On a non-collective handle they
// degenerate to plain dataset access.

// WriteSum element-wise sums the per-rank partials and stores the total.
// This is the no-reduction accumulation path: each rank holds only its
// own share and the reduction happens inside the write call.
func (g *Group) WriteSum(name string, partial []float64) error {
	f := g.f
	if f.closed {
		return ErrClosed
	}
	if !f.collective {
		return g.WriteFloats(name, partial)
	}
	if f.mode == ModeRead {
		return ErrReadOnly
	}

	total, err := f.comm.ReduceSum(partial)
	if err != nil {
		return err
	}
	if f.comm.IsCoordinator() {
		if g.stub() {
			return fmt.Errorf("store: coordinator holds no tree for %q", name)
		}
		g.n.Datasets[name] = dataset{Kind: kindFloat, Floats: total}
	}
	return f.comm.Barrier()
}

// WriteConcat concatenates the per-rank parts in rank order and stores
// the result. Parts may have different lengths; this carries the
// partitioned source bank.
func (g *Group) WriteConcat(name string, part []float64) error {
	f := g.f
	if f.closed {
		return ErrClosed
	}
	if !f.collective {
		return g.WriteFloats(name, part)
	}
	if f.mode == ModeRead {
		return ErrReadOnly
	}

	parts, err := f.comm.Gather(part)
	if err != nil {
		return err
	}
	if f.comm.IsCoordinator() {
		if g.stub() {
			return fmt.Errorf("store: coordinator holds no tree for %q", name)
		}
		total := 0
		for _, p := range parts {
			total += len(p)
		}
		data := make([]float64, 0, total)
		for _, p := range parts {
			data = append(data, p...)
		}
		g.n.Datasets[name] = dataset{Kind: kindFloat, Floats: data}
	}
	return f.comm.Barrier()
}

// ReadSlice partitions the named float dataset by counts (one count per
// rank, in rank order) and returns this rank's slice on every rank.
func (g *Group) ReadSlice(name string, counts []int) ([]float64, error) {
	f := g.f
	if f.closed {
		return nil, ErrClosed
	}

	if !f.collective {
		if len(counts) != 1 {
			return nil, fmt.Errorf("store: %d partition counts for a serial read", len(counts))
		}
		data, err := g.ReadFloats(name)
		if err != nil {
			return nil, err
		}
		if counts[0] > len(data) {
			return nil, fmt.Errorf("store: dataset %q has %d elements, want %d", name, len(data), counts[0])
		}
		return data[:counts[0]], nil
	}

	if len(counts) != f.comm.Size() {
		return nil, fmt.Errorf("store: %d partition counts for %d ranks", len(counts), f.comm.Size())
	}

	// Coordinator reads and partitions; a read failure distributes as
	// empty parts, surfaced after the scatter so no rank deadlocks.
	var parts [][]float64
	var readErr error
	if f.comm.IsCoordinator() {
		data, err := g.ReadFloats(name)
		if err != nil {
			readErr = err
			parts = make([][]float64, f.comm.Size())
		} else {
			total := 0
			for _, c := range counts {
				total += c
			}
			if total != len(data) {
				readErr = fmt.Errorf("store: dataset %q has %d elements, partition wants %d", name, len(data), total)
				parts = make([][]float64, f.comm.Size())
			} else {
				parts = make([][]float64, f.comm.Size())
				off := 0
				for r, c := range counts {
					parts[r] = data[off : off+c]
					off += c
				}
			}
		}
	}

	part, err := f.comm.Scatter(parts)
	if err != nil {
		return nil, err
	}

	// Surface the coordinator-side failure on every rank.
	ok := 1
	if readErr != nil {
		ok = 0
	}
	flags, err := f.comm.AllGatherInt(ok)
	if err != nil {
		return nil, err
	}
	for _, flag := range flags {
		if flag == 0 {
			if readErr != nil {
				return nil, readErr
			}
			return nil, fmt.Errorf("store: coordinator failed to read %q", name)
		}
	}

	if err := f.comm.Barrier(); err != nil {
		return nil, err
	}
	return part, nil
}
