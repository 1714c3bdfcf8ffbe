package simulation

import (
	"testing"

	"github.com/cchasing/openmc/internal/core/domain"
)

func TestNewState(t *testing.T) {
	s := NewState(domain.DefaultSettings())
	if s.RNG == nil {
		t.Fatal("no RNG stream")
	}
	if s.RNG.Seed() != 1 {
		t.Errorf("seed = %d, want 1", s.RNG.Seed())
	}
	if len(s.GlobalTallies) != 2*GlobalTallyEntries {
		t.Errorf("global tallies length = %d", len(s.GlobalTallies))
	}
	if s.Eigenvalue == nil {
		t.Error("eigenvalue mode without eigenvalue state")
	}
	if len(s.Eigenvalue.KGeneration) != int(s.Settings.NBatches) {
		t.Errorf("k history length = %d", len(s.Eigenvalue.KGeneration))
	}

	settings := domain.DefaultSettings()
	settings.RunMode = domain.RunModeFixedSource
	if NewState(settings).Eigenvalue != nil {
		t.Error("fixed-source run allocated eigenvalue state")
	}
}

func TestTallyIDsSorted(t *testing.T) {
	s := NewState(domain.DefaultSettings())
	for _, id := range []int32{9, 1, 5} {
		s.Tallies[id] = &domain.Tally{ID: id}
	}
	ids := s.TallyIDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 5 || ids[2] != 9 {
		t.Errorf("ids = %v", ids)
	}
}

func TestRecomputeKeff(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.NBatches = 6
	settings.NInactive = 2
	s := NewState(settings)
	copy(s.Eigenvalue.KGeneration, []float64{2, 2, 1.0, 1.2, 1.4, 9})
	s.CurrentBatch = 5

	s.RecomputeKeff()
	if s.Eigenvalue.KEffMean != 1.2 {
		t.Errorf("mean = %v, want 1.2 over active batches 3-5", s.Eigenvalue.KEffMean)
	}
	if s.Eigenvalue.KEffStd == 0 {
		t.Error("std not computed")
	}
}

func TestBankPartition(t *testing.T) {
	tests := []struct {
		particles int64
		size      int
		want      []int64
	}{
		{8, 1, []int64{8}},
		{8, 2, []int64{4, 4}},
		{10, 4, []int64{3, 3, 2, 2}},
		{3, 4, []int64{1, 1, 1, 0}},
	}
	for _, tt := range tests {
		got := BankPartition(tt.particles, tt.size)
		if len(got) != len(tt.want) {
			t.Fatalf("BankPartition(%d, %d) = %v", tt.particles, tt.size, got)
		}
		var total int64
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("BankPartition(%d, %d) = %v, want %v", tt.particles, tt.size, got, tt.want)
				break
			}
			total += got[i]
		}
		if total != tt.particles {
			t.Errorf("partition of %d sums to %d", tt.particles, total)
		}
	}
}
