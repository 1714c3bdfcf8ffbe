package store

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cchasing/openmc/internal/runtime/comm"
)

// runRanks drives fn once per rank on its own goroutine, as a parallel
// group would.
func runRanks(t *testing.T, n int, fn func(t *testing.T, c comm.Comm)) {
	t.Helper()
	group := comm.NewLocalGroup(n)

	var wg sync.WaitGroup
	for _, c := range group {
		wg.Add(1)
		go func(c comm.Comm) {
			defer wg.Done()
			fn(t, c)
		}(c)
	}
	wg.Wait()
}

func TestCollective_WriteSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ckpt")

	runRanks(t, 4, func(t *testing.T, c comm.Comm) {
		f, err := Create(path, Options{Comm: c})
		if err != nil {
			t.Errorf("rank %d Create: %v", c.Rank(), err)
			return
		}

		// Each rank holds a partial accumulator; the write reduces.
		partial := []float64{float64(c.Rank()), 1, 10 * float64(c.Rank())}
		if err := f.Root().WriteSum("results", partial); err != nil {
			t.Errorf("rank %d WriteSum: %v", c.Rank(), err)
		}
		if err := f.Close(); err != nil {
			t.Errorf("rank %d Close: %v", c.Rank(), err)
		}
	})

	r, err := Open(path, ModeRead, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	got, err := r.Root().ReadFloats("results")
	if err != nil {
		t.Fatalf("ReadFloats: %v", err)
	}
	want := []float64{0 + 1 + 2 + 3, 4, 10 * (0 + 1 + 2 + 3)}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("results[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCollective_WriteConcat_RankOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ckpt")

	runRanks(t, 3, func(t *testing.T, c comm.Comm) {
		f, err := Create(path, Options{Comm: c})
		if err != nil {
			t.Errorf("rank %d Create: %v", c.Rank(), err)
			return
		}

		// Rank r contributes r+1 elements, all valued r.
		part := make([]float64, c.Rank()+1)
		for i := range part {
			part[i] = float64(c.Rank())
		}
		if err := f.Root().WriteConcat("source_bank", part); err != nil {
			t.Errorf("rank %d WriteConcat: %v", c.Rank(), err)
		}
		if err := f.Close(); err != nil {
			t.Errorf("rank %d Close: %v", c.Rank(), err)
		}
	})

	r, err := Open(path, ModeRead, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	got, err := r.Root().ReadFloats("source_bank")
	if err != nil {
		t.Fatalf("ReadFloats: %v", err)
	}
	want := []float64{0, 1, 1, 2, 2, 2}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("source_bank[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCollective_ReadSlice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ckpt")

	// Author the dataset serially: 9 values 0..8.
	f, _ := Create(path, Options{})
	data := make([]float64, 9)
	for i := range data {
		data[i] = float64(i)
	}
	f.Root().WriteFloats("source_bank", data)
	f.Close()

	counts := []int{2, 3, 4}

	runRanks(t, 3, func(t *testing.T, c comm.Comm) {
		f, err := Open(path, ModeRead, Options{Comm: c})
		if err != nil {
			t.Errorf("rank %d Open: %v", c.Rank(), err)
			return
		}
		defer f.Close()

		part, err := f.Root().ReadSlice("source_bank", counts)
		if err != nil {
			t.Errorf("rank %d ReadSlice: %v", c.Rank(), err)
			return
		}
		if len(part) != counts[c.Rank()] {
			t.Errorf("rank %d len = %d, want %d", c.Rank(), len(part), counts[c.Rank()])
			return
		}

		offset := 0
		for r := 0; r < c.Rank(); r++ {
			offset += counts[r]
		}
		for i, v := range part {
			if v != float64(offset+i) {
				t.Errorf("rank %d part[%d] = %v, want %v", c.Rank(), i, v, float64(offset+i))
			}
		}
	})
}

func TestCollective_IndependentOpNonCoordinator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ckpt")

	runRanks(t, 2, func(t *testing.T, c comm.Comm) {
		f, err := Create(path, Options{Comm: c})
		if err != nil {
			t.Errorf("rank %d Create: %v", c.Rank(), err)
			return
		}

		// Independent writes are coordinator-only; other ranks must be
		// told loudly rather than writing into the void.
		err = f.Root().SetAttrInt("seed", 42)
		if c.IsCoordinator() {
			if err != nil {
				t.Errorf("coordinator SetAttrInt: %v", err)
			}
		} else if !errors.Is(err, ErrNotCoordinator) {
			t.Errorf("rank %d SetAttrInt = %v, want ErrNotCoordinator", c.Rank(), err)
		}

		if _, err := f.Root().AttrInt("seed"); c.IsCoordinator() && err != nil {
			t.Errorf("coordinator AttrInt: %v", err)
		} else if !c.IsCoordinator() && !errors.Is(err, ErrNotCoordinator) {
			t.Errorf("rank %d AttrInt = %v, want ErrNotCoordinator", c.Rank(), err)
		}

		if err := f.Close(); err != nil {
			t.Errorf("rank %d Close: %v", c.Rank(), err)
		}
	})
}

func TestCollective_OpenMissingSurfacesEverywhere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.ckpt")

	runRanks(t, 2, func(t *testing.T, c comm.Comm) {
		if _, err := Open(path, ModeRead, Options{Comm: c}); err == nil {
			t.Errorf("rank %d Open of missing file should fail", c.Rank())
		}
	})
}

func TestCollective_GroupNavigationStubs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ckpt")

	runRanks(t, 2, func(t *testing.T, c comm.Comm) {
		f, err := Create(path, Options{Comm: c})
		if err != nil {
			t.Errorf("rank %d Create: %v", c.Rank(), err)
			return
		}

		// Navigation succeeds on every rank so call sequences match.
		g, err := f.Root().CreateGroup("tallies")
		if err != nil {
			t.Errorf("rank %d CreateGroup: %v", c.Rank(), err)
			return
		}
		if err := g.WriteSum("results", []float64{float64(c.Rank() + 1)}); err != nil {
			t.Errorf("rank %d WriteSum: %v", c.Rank(), err)
		}
		if err := f.Close(); err != nil {
			t.Errorf("rank %d Close: %v", c.Rank(), err)
		}
	})

	r, err := Open(path, ModeRead, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	g, err := r.Root().OpenGroup("tallies")
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	if got, _ := g.ReadFloats("results"); len(got) != 1 || got[0] != 3 {
		t.Errorf("results = %v, want [3]", got)
	}
}
