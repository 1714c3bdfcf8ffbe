package comm

import (
	"fmt"
	"sync"

	"github.com/cchasing/openmc/pkg/cmap"
)

// opKind tags the collective operations a hub rendezvous can carry.
type opKind string

const (
	opBarrier   opKind = "barrier"
	opReduceSum opKind = "reduce_sum"
	opGather    opKind = "gather"
	opScatter   opKind = "scatter"
	opAllGather opKind = "all_gather"
)

// hub is the shared rendezvous point for an in-process rank group.
//
// Each rank's k-th collective call of a given kind maps to the same slot
// key; the lock-step calling discipline guarantees the keys line up. A rank
// that skips a collective leaves the others blocked, which is the faithful
// failure mode.
type hub struct {
	size  int
	slots *cmap.Map[string, *opSlot]
}

type opSlot struct {
	mu      sync.Mutex
	arrived int

	floats [][]float64
	ints   []int

	err  error
	done chan struct{}
}

func newHub(size int) *hub {
	return &hub{
		size:  size,
		slots: cmap.New[string, *opSlot](),
	}
}

// rendezvous joins slot (kind, seq), contributing vals/iv, and blocks until
// all ranks have arrived.
func (h *hub) rendezvous(kind opKind, seq uint64, rank int, vals []float64, iv int) (*opSlot, error) {
	key := fmt.Sprintf("%s/%d", kind, seq)

	fresh := &opSlot{
		floats: make([][]float64, h.size),
		ints:   make([]int, h.size),
		done:   make(chan struct{}),
	}
	slot, _ := h.slots.GetOrSet(key, fresh)

	slot.mu.Lock()
	slot.floats[rank] = vals
	slot.ints[rank] = iv
	slot.arrived++
	complete := slot.arrived == h.size
	if complete {
		// Last arriver validates shapes and releases the group.
		for r := 1; r < h.size; r++ {
			if len(slot.floats[r]) != len(slot.floats[0]) {
				slot.err = ErrLengthMismatch
				break
			}
		}
		h.slots.Delete(key)
		close(slot.done)
	}
	slot.mu.Unlock()

	<-slot.done
	return slot, slot.err
}

// localComm is one rank of an in-process group.
type localComm struct {
	rank int
	hub  *hub

	mu     sync.Mutex
	seq    map[opKind]uint64
	closed bool
}

// NewLocalGroup creates an in-process group of n ranks sharing one hub.
// Each returned Comm must be driven by its own goroutine.
func NewLocalGroup(n int) []Comm {
	if n < 1 {
		n = 1
	}
	h := newHub(n)
	group := make([]Comm, n)
	for i := 0; i < n; i++ {
		group[i] = &localComm{
			rank: i,
			hub:  h,
			seq:  make(map[opKind]uint64),
		}
	}
	return group
}

func (c *localComm) nextSeq(kind opKind) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	s := c.seq[kind]
	c.seq[kind] = s + 1
	return s, nil
}

func (c *localComm) Rank() int                  { return c.rank }
func (c *localComm) Size() int                  { return c.hub.size }
func (c *localComm) IsCoordinator() bool        { return c.rank == 0 }
func (c *localComm) SupportsCollectiveIO() bool { return true }

func (c *localComm) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *localComm) Barrier() error {
	seq, err := c.nextSeq(opBarrier)
	if err != nil {
		return err
	}
	_, err = c.hub.rendezvous(opBarrier, seq, c.rank, nil, 0)
	return err
}

func (c *localComm) ReduceSum(vals []float64) ([]float64, error) {
	seq, err := c.nextSeq(opReduceSum)
	if err != nil {
		return nil, err
	}
	slot, err := c.hub.rendezvous(opReduceSum, seq, c.rank, vals, 0)
	if err != nil {
		return nil, err
	}
	if c.rank != 0 {
		return nil, nil
	}
	sum := make([]float64, len(vals))
	for _, contrib := range slot.floats {
		for i, v := range contrib {
			sum[i] += v
		}
	}
	return sum, nil
}

func (c *localComm) Gather(vals []float64) ([][]float64, error) {
	seq, err := c.nextSeq(opGather)
	if err != nil {
		return nil, err
	}
	slot, err := c.hub.rendezvousVariable(opGather, seq, c.rank, vals, 0)
	if err != nil {
		return nil, err
	}
	if c.rank != 0 {
		return nil, nil
	}
	out := make([][]float64, c.hub.size)
	for r, contrib := range slot.floats {
		part := make([]float64, len(contrib))
		copy(part, contrib)
		out[r] = part
	}
	return out, nil
}

func (c *localComm) Scatter(parts [][]float64) ([]float64, error) {
	if c.rank == 0 && len(parts) != c.hub.size {
		return nil, ErrScatterShape
	}
	seq, err := c.nextSeq(opScatter)
	if err != nil {
		return nil, err
	}
	slot, err := c.hub.rendezvousScatter(opScatter, seq, c.rank, parts)
	if err != nil {
		return nil, err
	}
	return slot.floats[c.rank], nil
}

func (c *localComm) AllGatherInt(v int) ([]int, error) {
	seq, err := c.nextSeq(opAllGather)
	if err != nil {
		return nil, err
	}
	slot, err := c.hub.rendezvousVariable(opAllGather, seq, c.rank, nil, v)
	if err != nil {
		return nil, err
	}
	out := make([]int, c.hub.size)
	copy(out, slot.ints)
	return out, nil
}

// rendezvousVariable is rendezvous without the equal-length check, for
// gather-style operations where per-rank lengths legitimately differ.
func (h *hub) rendezvousVariable(kind opKind, seq uint64, rank int, vals []float64, iv int) (*opSlot, error) {
	key := fmt.Sprintf("%s/%d", kind, seq)

	fresh := &opSlot{
		floats: make([][]float64, h.size),
		ints:   make([]int, h.size),
		done:   make(chan struct{}),
	}
	slot, _ := h.slots.GetOrSet(key, fresh)

	slot.mu.Lock()
	slot.floats[rank] = vals
	slot.ints[rank] = iv
	slot.arrived++
	if slot.arrived == h.size {
		h.slots.Delete(key)
		close(slot.done)
	}
	slot.mu.Unlock()

	<-slot.done
	return slot, slot.err
}

// rendezvousScatter distributes the coordinator's parts into the slot so
// every rank can read its own entry.
func (h *hub) rendezvousScatter(kind opKind, seq uint64, rank int, parts [][]float64) (*opSlot, error) {
	key := fmt.Sprintf("%s/%d", kind, seq)

	fresh := &opSlot{
		floats: make([][]float64, h.size),
		ints:   make([]int, h.size),
		done:   make(chan struct{}),
	}
	slot, _ := h.slots.GetOrSet(key, fresh)

	slot.mu.Lock()
	if rank == 0 {
		if len(parts) != h.size {
			slot.err = ErrScatterShape
		} else {
			for r, p := range parts {
				part := make([]float64, len(p))
				copy(part, p)
				slot.floats[r] = part
			}
		}
	}
	slot.arrived++
	if slot.arrived == h.size {
		h.slots.Delete(key)
		close(slot.done)
	}
	slot.mu.Unlock()

	<-slot.done
	return slot, slot.err
}
