package checkpoint

import (
	"fmt"
	"os"
	"time"

	"github.com/cchasing/openmc/internal/core/domain"
	"github.com/cchasing/openmc/internal/core/simulation"
	"github.com/cchasing/openmc/internal/infra/buildinfo"
	"github.com/cchasing/openmc/internal/runtime/comm"
	"github.com/cchasing/openmc/internal/store"
	"github.com/cchasing/openmc/internal/telemetry/logger"
	"github.com/cchasing/openmc/internal/telemetry/metric"
	"github.com/cchasing/openmc/pkg/crypto/adaptive"
)

// Writer persists run state to checkpoint files.
//
// In a collective group every rank calls Write with the same arguments;
// the metadata phase runs on the coordinator only, the results phase is
// collective when tallies were not reduced, and the source population is
// appended in a strictly later pass after the file has been closed and
// reopened.
type Writer struct {
	Comm   comm.Comm
	Cipher adaptive.Cipher
	Log    logger.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *metric.Registry
}

// Write writes a checkpoint of state to path.
func (w *Writer) Write(state *simulation.State, path string) error {
	start := time.Now()
	log := w.log().With("path", path, "batch", state.CurrentBatch)

	f, err := store.Create(path, store.Options{Comm: w.Comm, Cipher: w.Cipher})
	if err != nil {
		return fmt.Errorf("checkpoint: create %s: %w", path, err)
	}
	root := f.Root()

	// Metadata phase: coordinator only.
	if w.coordinator() {
		if err := w.writeMetadata(root, state, path); err != nil {
			f.Close()
			return err
		}
	}

	// Results phase: collective when accumulators were not reduced.
	if err := w.writeResults(root, state); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("checkpoint: close %s: %w", path, err)
	}

	// Source phase: strictly later than the results, on a reopened file.
	if state.Settings.SourceWrite {
		if err := w.appendSource(state, path); err != nil {
			return err
		}
	}

	w.observe(path, start)
	log.Info("checkpoint written", "duration", time.Since(start).String())
	return nil
}

// coordinator reports whether this rank performs independent writes.
func (w *Writer) coordinator() bool {
	return w.Comm == nil || w.Comm.IsCoordinator()
}

func (w *Writer) log() logger.Logger {
	if w.Log != nil {
		return w.Log
	}
	return logger.Default()
}

func (w *Writer) observe(path string, start time.Time) {
	if w.Metrics == nil || !w.coordinator() {
		return
	}
	w.Metrics.CheckpointWrites.Inc()
	w.Metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
	if fi, err := os.Stat(path); err == nil {
		w.Metrics.CheckpointBytes.Set(float64(fi.Size()))
	}
}

// groupWriter latches the first error of a write sequence.
type groupWriter struct {
	g   *store.Group
	err error
}

func (gw *groupWriter) str(name, v string) {
	if gw.err == nil {
		gw.err = gw.g.SetAttrString(name, v)
	}
}

func (gw *groupWriter) i64(name string, v int64) {
	if gw.err == nil {
		gw.err = gw.g.SetAttrInt(name, v)
	}
}

func (gw *groupWriter) f64(name string, v float64) {
	if gw.err == nil {
		gw.err = gw.g.SetAttrFloat(name, v)
	}
}

func (gw *groupWriter) floats(name string, v []float64) {
	if gw.err == nil {
		gw.err = gw.g.WriteFloats(name, v)
	}
}

func (gw *groupWriter) ints(name string, v []int64) {
	if gw.err == nil {
		gw.err = gw.g.WriteInts(name, v)
	}
}

func (gw *groupWriter) strs(name string, v []string) {
	if gw.err == nil {
		gw.err = gw.g.WriteStrings(name, v)
	}
}

// writeMetadata writes the header, runtime metrics, eigenvalue history,
// CMFD state, and the tally/filter/mesh/derivative descriptions.
func (w *Writer) writeMetadata(root *store.Group, state *simulation.State, path string) error {
	gw := &groupWriter{g: root}

	gw.str(attrFiletype, FiletypeStatepoint)
	gw.i64(attrVersion, SchemaVersion)
	gw.str(attrProducerVersion, buildinfo.Version)
	gw.str(attrBuildID, buildinfo.Commit)
	gw.str(attrRunID, state.RunID)
	gw.str(attrDateAndTime, time.Now().UTC().Format(time.RFC3339))
	gw.str(attrPath, path)
	gw.i64(attrSeed, state.Settings.Seed)
	gw.str(attrEnergyMode, state.Settings.EnergyMode.String())
	gw.str(attrRunMode, state.Settings.RunMode.String())
	gw.i64(attrPhotonTransport, boolAttr(state.Settings.PhotonTransport))
	gw.i64(attrNParticles, state.Settings.NParticles)
	gw.i64(attrNBatches, int64(state.Settings.NBatches))
	gw.i64(attrCurrentBatch, int64(state.CurrentBatch))
	gw.i64(attrNInactive, int64(state.Settings.NInactive))
	gw.i64(attrNRealizations, int64(state.NRealizations))
	gw.i64(attrSourcePresent, boolAttr(state.Settings.SourceWrite))
	gw.i64(attrCMFDOn, boolAttr(state.CMFD != nil && state.CMFD.On))
	gw.i64(attrTalliesPresent, boolAttr(len(state.Tallies) > 0))
	if gw.err != nil {
		return fmt.Errorf("checkpoint: write header: %w", gw.err)
	}

	if err := writeRunTime(root, &state.RunTime); err != nil {
		return err
	}

	if state.Settings.RunMode == domain.RunModeEigenvalue && state.Eigenvalue != nil {
		if err := root.WriteFloats(dsKGeneration, state.Eigenvalue.KGeneration); err != nil {
			return fmt.Errorf("checkpoint: write k_generation: %w", err)
		}
		if state.CMFD != nil && state.CMFD.On {
			if err := writeCMFD(root, state.CMFD); err != nil {
				return err
			}
		}
	}

	if len(state.Tallies) > 0 {
		if err := writeTallyMetadata(root, state); err != nil {
			return err
		}
	}
	return nil
}

func writeRunTime(root *store.Group, rt *domain.RunTime) error {
	g, err := root.CreateGroup(groupRuntime)
	if err != nil {
		return fmt.Errorf("checkpoint: create runtime group: %w", err)
	}
	gw := &groupWriter{g: g}
	gw.f64("initialization", rt.Initialization)
	gw.f64("read_xs", rt.ReadXS)
	gw.f64("simulation", rt.Simulation)
	gw.f64("transport", rt.Transport)
	gw.f64("bank", rt.Bank)
	gw.f64("bank_sample", rt.BankSample)
	gw.f64("bank_sendrecv", rt.BankSendRecv)
	gw.f64("tally_accumulation", rt.TallyAccum)
	gw.f64("cmfd", rt.CMFD)
	gw.f64("cmfd_build", rt.CMFDBuild)
	gw.f64("cmfd_solve", rt.CMFDSolve)
	gw.f64("total", rt.Total)
	if gw.err != nil {
		return fmt.Errorf("checkpoint: write runtime: %w", gw.err)
	}
	return nil
}

func writeCMFD(root *store.Group, c *domain.CMFDState) error {
	g, err := root.CreateGroup(groupCMFD)
	if err != nil {
		return fmt.Errorf("checkpoint: create cmfd group: %w", err)
	}
	indices := make([]int64, len(c.Indices))
	for i, v := range c.Indices {
		indices[i] = int64(v)
	}
	gw := &groupWriter{g: g}
	gw.ints("indices", indices)
	gw.floats("k", c.K)
	gw.floats("entropy", c.Entropy)
	gw.floats("balance", c.Balance)
	gw.floats("dominance_ratio", c.DomRatio)
	gw.floats("src_comparison", c.SrcCmp)
	gw.floats("cmfd_src", c.Src)
	if gw.err != nil {
		return fmt.Errorf("checkpoint: write cmfd: %w", gw.err)
	}
	return nil
}

func writeTallyMetadata(root *store.Group, state *simulation.State) error {
	if err := writeFilters(root, state); err != nil {
		return err
	}
	if err := writeMeshes(root, state); err != nil {
		return err
	}
	if err := writeDerivatives(root, state); err != nil {
		return err
	}

	tg, err := root.CreateGroup(groupTallies)
	if err != nil {
		return fmt.Errorf("checkpoint: create tallies group: %w", err)
	}
	ids := state.TallyIDs()
	ids64 := make([]int64, len(ids))
	for i, id := range ids {
		ids64[i] = int64(id)
	}
	if err := tg.WriteInts("ids", ids64); err != nil {
		return fmt.Errorf("checkpoint: write tally ids: %w", err)
	}

	for _, id := range ids {
		t := state.Tallies[id]
		g, err := tg.CreateGroup(tallyGroupName(id))
		if err != nil {
			return fmt.Errorf("checkpoint: create tally %d group: %w", id, err)
		}

		filters := make([]int64, len(t.FilterIDs))
		for i, fid := range t.FilterIDs {
			filters[i] = int64(fid)
		}

		gw := &groupWriter{g: g}
		gw.str("name", t.Name)
		gw.str("estimator", t.Estimator.String())
		gw.ints("filters", filters)
		gw.strs("nuclides", t.NuclideLabels())
		gw.strs("score_bins", t.Scores)
		if t.HasDerivative() {
			gw.i64("derivative", int64(t.DerivativeID))
		}
		if gw.err != nil {
			return fmt.Errorf("checkpoint: write tally %d: %w", id, gw.err)
		}
	}
	return nil
}

func writeFilters(root *store.Group, state *simulation.State) error {
	if len(state.Filters) == 0 {
		return nil
	}
	fg, err := root.CreateGroup(groupFilters)
	if err != nil {
		return fmt.Errorf("checkpoint: create filters group: %w", err)
	}
	for _, id := range state.FilterIDs() {
		fl := state.Filters[id]
		g, err := fg.CreateGroup(filterGroupName(id))
		if err != nil {
			return fmt.Errorf("checkpoint: create filter %d group: %w", id, err)
		}

		gw := &groupWriter{g: g}
		gw.str("type", string(fl.Kind))
		// Parameters are variant-specific: geometry kinds carry bins,
		// energy carries bounds, mesh carries a mesh reference.
		switch fl.Kind {
		case domain.FilterEnergy:
			gw.floats("bounds", fl.Bounds)
		case domain.FilterMesh:
			gw.i64("mesh", int64(fl.MeshID))
		default:
			bins := make([]int64, len(fl.Bins))
			for i, b := range fl.Bins {
				bins[i] = int64(b)
			}
			gw.ints("bins", bins)
		}
		if gw.err != nil {
			return fmt.Errorf("checkpoint: write filter %d: %w", id, gw.err)
		}
	}
	return nil
}

func writeMeshes(root *store.Group, state *simulation.State) error {
	if len(state.Meshes) == 0 {
		return nil
	}
	mg, err := root.CreateGroup(groupMeshes)
	if err != nil {
		return fmt.Errorf("checkpoint: create meshes group: %w", err)
	}
	for _, id := range state.MeshIDs() {
		m := state.Meshes[id]
		g, err := mg.CreateGroup(meshGroupName(id))
		if err != nil {
			return fmt.Errorf("checkpoint: create mesh %d group: %w", id, err)
		}
		dims := make([]int64, len(m.Dimension))
		for i, d := range m.Dimension {
			dims[i] = int64(d)
		}
		gw := &groupWriter{g: g}
		gw.ints("dimension", dims)
		gw.floats("lower_left", m.LowerLeft)
		gw.floats("upper_right", m.UpperRight)
		gw.floats("width", m.Width)
		if gw.err != nil {
			return fmt.Errorf("checkpoint: write mesh %d: %w", id, gw.err)
		}
	}
	return nil
}

func writeDerivatives(root *store.Group, state *simulation.State) error {
	if len(state.Derivatives) == 0 {
		return nil
	}
	dg, err := root.CreateGroup(groupDerivatives)
	if err != nil {
		return fmt.Errorf("checkpoint: create derivatives group: %w", err)
	}
	for _, id := range state.DerivativeIDs() {
		d := state.Derivatives[id]
		g, err := dg.CreateGroup(derivativeGroupName(id))
		if err != nil {
			return fmt.Errorf("checkpoint: create derivative %d group: %w", id, err)
		}
		gw := &groupWriter{g: g}
		gw.str("independent_variable", d.Variable.String())
		gw.i64("material", int64(d.Material))
		if d.Nuclide != "" {
			gw.str("nuclide", d.Nuclide)
		}
		if gw.err != nil {
			return fmt.Errorf("checkpoint: write derivative %d: %w", id, gw.err)
		}
	}
	return nil
}

// writeResults writes the global and per-tally accumulators. With
// reduced tallies the coordinator holds the full sums and writes them
// independently; otherwise every rank holds a share and the reduction
// happens inside the collective write.
func (w *Writer) writeResults(root *store.Group, state *simulation.State) error {
	reduced := state.ReducedTallies || w.Comm == nil || !w.Comm.SupportsCollectiveIO()

	if reduced {
		if w.coordinator() {
			if err := root.WriteFloats(dsGlobalTallies, state.GlobalTallies); err != nil {
				return fmt.Errorf("checkpoint: write global tallies: %w", err)
			}
		}
	} else {
		if err := root.WriteSum(dsGlobalTallies, state.GlobalTallies); err != nil {
			return fmt.Errorf("checkpoint: write global tallies: %w", err)
		}
	}

	if len(state.Tallies) == 0 {
		return nil
	}

	// Every rank navigates the same groups in the same order so the
	// collective writes line up.
	tg, err := root.OpenGroup(groupTallies)
	if err != nil {
		if reduced && !w.coordinator() {
			return nil
		}
		return fmt.Errorf("checkpoint: open tallies group: %w", err)
	}

	for _, id := range state.TallyIDs() {
		t := state.Tallies[id]
		g, err := tg.OpenGroup(tallyGroupName(id))
		if err != nil {
			return fmt.Errorf("checkpoint: open tally %d group: %w", id, err)
		}

		if reduced {
			if !w.coordinator() {
				continue
			}
			gw := &groupWriter{g: g}
			gw.i64(attrNRealizations, int64(t.NumRealizations))
			gw.floats("results_sum", t.Sum)
			gw.floats("results_sum_sq", t.SumSq)
			if gw.err != nil {
				return fmt.Errorf("checkpoint: write tally %d results: %w", id, gw.err)
			}
			continue
		}

		if w.coordinator() {
			if err := g.SetAttrInt(attrNRealizations, int64(t.NumRealizations)); err != nil {
				return fmt.Errorf("checkpoint: write tally %d realizations: %w", id, err)
			}
		}
		if err := g.WriteSum("results_sum", t.Sum); err != nil {
			return fmt.Errorf("checkpoint: write tally %d sum: %w", id, err)
		}
		if err := g.WriteSum("results_sum_sq", t.SumSq); err != nil {
			return fmt.Errorf("checkpoint: write tally %d sum_sq: %w", id, err)
		}
	}
	return nil
}

// appendSource reopens a closed checkpoint and appends the partitioned
// source bank, concatenated in rank order, plus its fingerprint. The
// file's own header already carries source_present from the metadata
// phase; this pass must never run before Close has made that state
// durable.
func (w *Writer) appendSource(state *simulation.State, path string) error {
	f, err := store.Open(path, store.ModeAppend, store.Options{Comm: w.Comm, Cipher: w.Cipher})
	if err != nil {
		return fmt.Errorf("checkpoint: reopen %s for source append: %w", path, err)
	}
	root := f.Root()

	part := domain.EncodeSourceSites(state.SourceBank)
	if err := root.WriteConcat(dsSourceBank, part); err != nil {
		f.Close()
		return fmt.Errorf("checkpoint: append source bank: %w", err)
	}

	if w.coordinator() {
		full, err := root.ReadFloats(dsSourceBank)
		if err != nil {
			f.Close()
			return fmt.Errorf("checkpoint: read back source bank: %w", err)
		}
		if err := root.SetAttrString(attrSourceFingerprint, BankFingerprint(full)); err != nil {
			f.Close()
			return fmt.Errorf("checkpoint: write source fingerprint: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("checkpoint: close %s after source append: %w", path, err)
	}
	return nil
}
