package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cchasing/openmc/internal/core/domain"
	"github.com/cchasing/openmc/internal/telemetry/logger"
	"github.com/cchasing/openmc/internal/telemetry/metric"
)

// Checkpointer persists run state. Satisfied by checkpoint.Writer.
type Checkpointer interface {
	Write(state *State, path string) error
}

// Restorer rebuilds run state from a checkpoint, invoking recompute on
// every rank after reconciliation. Satisfied by checkpoint.Loader.
type Restorer interface {
	Load(state *State, path string, recompute func(*State)) error
}

// DriverConfig wires the driver's collaborators.
type DriverConfig struct {
	Checkpoint Checkpointer
	Restore    Restorer

	// PathFor names the checkpoint file for a batch.
	PathFor func(batch, nBatches int32) string

	Log     logger.Logger
	Metrics *metric.Registry
}

// Driver owns the batch loop. Each batch consumes exactly NParticles
// draws from the RNG stream, so the stream position after batch b is
// b*NParticles and a resumed run reproduces the uninterrupted one
// bit-identically.
//
// The transport physics itself is out of scope here; batches fabricate
// deterministic contributions from the stream.
type Driver struct {
	state   *State
	ckpt    Checkpointer
	restore Restorer
	pathFor func(batch, nBatches int32) string
	log     logger.Logger
	metrics *metric.Registry

	// progress throttles the per-batch log line on large runs.
	progress *rate.Limiter

	// mu guards ckptBatches, the only setting mutable while Run is in
	// flight. nil means the settings list applies.
	mu          sync.Mutex
	ckptBatches []int32
}

// NewDriver builds a driver for state.
func NewDriver(state *State, cfg DriverConfig) *Driver {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	return &Driver{
		state:    state,
		ckpt:     cfg.Checkpoint,
		restore:  cfg.Restore,
		pathFor:  cfg.PathFor,
		log:      log,
		metrics:  cfg.Metrics,
		progress: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// State returns the driver's state aggregate.
func (d *Driver) State() *State {
	return d.state
}

// Resume restores state from the checkpoint at path and positions the
// RNG stream at the reconciled cursor.
func (d *Driver) Resume(path string) error {
	if d.restore == nil {
		return fmt.Errorf("simulation: no restorer configured")
	}
	if err := d.restore.Load(d.state, path, (*State).RecomputeKeff); err != nil {
		return err
	}
	d.state.RNG.SkipTo(uint64(d.state.CurrentBatch) * uint64(d.state.Settings.NParticles))
	return nil
}

// Run executes batches from the current cursor through the configured
// total. On context cancellation it writes a final checkpoint at the
// last completed batch and returns the context error.
func (d *Driver) Run(ctx context.Context) error {
	s := d.state
	if len(s.SourceBank) == 0 {
		d.sampleInitialSource()
	}

	start := time.Now()
	for batch := s.CurrentBatch + 1; batch <= s.Settings.NBatches; batch++ {
		select {
		case <-ctx.Done():
			d.log.Warn("run interrupted", "batch", s.CurrentBatch)
			if err := d.writeCheckpoint(s.CurrentBatch); err != nil {
				return err
			}
			return ctx.Err()
		default:
		}

		d.runBatch(batch)

		if d.progress.Allow() {
			keff := 0.0
			if s.Eigenvalue != nil {
				keff = s.Eigenvalue.KEffMean
			}
			d.log.Info("batch complete",
				"batch", batch,
				"n_batches", s.Settings.NBatches,
				"k_eff", keff,
				"realizations", s.NRealizations)
		}
		if d.metrics != nil {
			d.metrics.BatchesCompleted.Inc()
			d.metrics.ActiveBatch.Set(float64(batch))
			if s.Eigenvalue != nil {
				d.metrics.KEffective.Set(s.Eigenvalue.KEffMean)
			}
		}

		if d.shouldCheckpoint(batch) {
			if err := d.writeCheckpoint(batch); err != nil {
				return err
			}
		}
	}

	s.RunTime.Simulation = time.Since(start).Seconds()
	s.RunTime.Total = s.RunTime.Simulation + s.RunTime.Initialization
	d.log.Info("run complete",
		"batches", s.Settings.NBatches,
		"duration", time.Since(start).String())
	return nil
}

// runBatch fabricates one batch of deterministic contributions: one
// draw per particle, folded into the batch estimators.
func (d *Driver) runBatch(batch int32) {
	s := d.state

	var sum float64
	bank := s.SourceBank
	for i := int64(0); i < s.Settings.NParticles; i++ {
		xi := s.RNG.Uniform()
		sum += xi
		if int(i) < len(bank) {
			bank[i].R[0] = 20 * (xi - 0.5)
			bank[i].E = 2e6 * xi
		}
	}
	mean := sum / float64(s.Settings.NParticles)

	if s.Eigenvalue != nil {
		// Center the fabricated eigenvalue estimate on 1.
		k := 0.5 + mean
		s.Eigenvalue.KGeneration[batch-1] = k
	}

	active := batch > s.Settings.NInactive
	if active {
		s.NRealizations++
		for i := 0; i < GlobalTallyEntries; i++ {
			v := mean * float64(i+1)
			s.GlobalTallies[2*i] += v
			s.GlobalTallies[2*i+1] += v * v
		}
		for _, t := range s.Tallies {
			d.accumulateTally(t, mean)
		}
	}

	s.CurrentBatch = batch
	s.RecomputeKeff()
}

func (d *Driver) accumulateTally(t *domain.Tally, mean float64) {
	n := t.NumBins(d.state.Filters, d.state.Meshes)
	if n == 0 {
		return
	}
	if t.Sum == nil {
		t.Sum = make([]float64, n)
		t.SumSq = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		v := mean * (1 + float64(i)*1e-3)
		t.Sum[i] += v
		t.SumSq[i] += v * v
	}
	t.NumRealizations = d.state.NRealizations
}

// sampleInitialSource fills this rank's bank with an isotropic point
// source. Consumes no stream draws: the batch loop owns the stream
// position accounting.
func (d *Driver) sampleInitialSource() {
	s := d.state
	bank := make([]domain.SourceSite, s.Settings.NParticles)
	for i := range bank {
		phi := 2 * math.Pi * float64(i) / float64(len(bank))
		bank[i] = domain.SourceSite{
			U:  [3]float64{math.Cos(phi), math.Sin(phi), 0},
			E:  2e6,
			Wt: 1,
		}
	}
	s.SourceBank = bank
}

// SetCheckpointBatches replaces the checkpoint-batch policy for the rest
// of the run. Safe to call while Run is in flight; batches already past
// the cursor are ignored.
func (d *Driver) SetCheckpointBatches(batches []int32) {
	cp := append([]int32(nil), batches...)
	d.mu.Lock()
	d.ckptBatches = cp
	d.mu.Unlock()
	d.log.Info("checkpoint batches updated", "batches", cp)
}

func (d *Driver) checkpointBatches() []int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ckptBatches != nil {
		return d.ckptBatches
	}
	return d.state.Settings.CheckpointBatches
}

func (d *Driver) shouldCheckpoint(batch int32) bool {
	if d.ckpt == nil {
		return false
	}
	for _, b := range d.checkpointBatches() {
		if b == batch {
			return true
		}
	}
	return false
}

func (d *Driver) writeCheckpoint(batch int32) error {
	if d.ckpt == nil || batch == 0 {
		return nil
	}
	path := d.pathFor(batch, d.state.Settings.NBatches)
	if err := d.ckpt.Write(d.state, path); err != nil {
		return fmt.Errorf("simulation: checkpoint at batch %d: %w", batch, err)
	}
	return nil
}
