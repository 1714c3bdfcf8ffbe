package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRegistry_GatherAll(t *testing.T) {
	r := NewRegistry()

	r.BatchesCompleted.Inc()
	r.ActiveBatch.Set(7)
	r.KEffective.Set(1.02)
	r.CheckpointWrites.Inc()
	r.CheckpointDuration.Observe(0.25)
	r.CheckpointBytes.Set(1 << 20)
	r.RestoreDuration.Observe(0.5)
	r.SourceSites.Set(10000)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"openmc_batches_completed_total",
		"openmc_active_batch",
		"openmc_k_effective",
		"openmc_checkpoint_writes_total",
		"openmc_checkpoint_write_seconds",
		"openmc_checkpoint_bytes",
		"openmc_restore_seconds",
		"openmc_source_sites",
	} {
		if !names[want] {
			t.Errorf("metric family %q not gathered", want)
		}
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.BatchesCompleted.Add(3)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "openmc_batches_completed_total 3") {
		t.Errorf("exposition missing counter value:\n%s", body)
	}
}

func TestNewRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on registration.
	a := NewRegistry()
	b := NewRegistry()
	a.ActiveBatch.Set(1)
	b.ActiveBatch.Set(2)

	fams, err := b.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range fams {
		if f.GetName() == "openmc_active_batch" {
			if got := f.GetMetric()[0].GetGauge().GetValue(); got != 2 {
				t.Errorf("active_batch = %v, want 2", got)
			}
		}
	}
}
