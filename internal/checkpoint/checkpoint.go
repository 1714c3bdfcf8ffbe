// Package checkpoint writes and restores run state to single-file
// statepoint containers.
//
// A checkpoint captures everything needed to continue a run
// bit-identically: header scalars, eigenvalue history, CMFD acceleration
// state, tally metadata and accumulators, wall-clock metrics, and
// (optionally, in a strictly later append pass) the source population.
// The Loader reconciles a recorded checkpoint against the requested
// configuration under an extend-only batch rule.
//
// @req RQ-0801
// @design DS-0801
package checkpoint

import (
	"fmt"

	"github.com/cchasing/openmc/internal/store"
)

// SchemaVersion is the statepoint schema version. A loader accepts
// exactly this version; there is no forward or partial compatibility.
const SchemaVersion int64 = 18

// Filetype labels. A checkpoint declares itself "statepoint"; a
// standalone source population file declares itself "source".
const (
	FiletypeStatepoint = "statepoint"
	FiletypeSource     = "source"
)

// Header attribute names. These are the wire contract; renaming any of
// them is a schema version bump.
const (
	attrFiletype          = "filetype"
	attrVersion           = "version"
	attrProducerVersion   = "producer_version"
	attrBuildID           = "build_id"
	attrRunID             = "run_id"
	attrDateAndTime       = "date_and_time"
	attrPath              = "path"
	attrSeed              = "seed"
	attrEnergyMode        = "energy_mode"
	attrRunMode           = "run_mode"
	attrPhotonTransport   = "photon_transport"
	attrNParticles        = "n_particles"
	attrNBatches          = "n_batches"
	attrCurrentBatch      = "current_batch"
	attrNInactive         = "n_inactive"
	attrNRealizations     = "n_realizations"
	attrSourcePresent     = "source_present"
	attrCMFDOn            = "cmfd_on"
	attrTalliesPresent    = "tallies_present"
	attrSourceFingerprint = "source_fingerprint"
)

// Dataset and group names.
const (
	dsGlobalTallies = "global_tallies"
	dsKGeneration   = "k_generation"
	dsSourceBank    = "source_bank"

	groupRuntime     = "runtime"
	groupCMFD        = "cmfd"
	groupTallies     = "tallies"
	groupFilters     = "filters"
	groupMeshes      = "meshes"
	groupDerivatives = "derivatives"
)

// Info is the parsed checkpoint header, used by the inspection CLI.
type Info struct {
	Filetype          string
	Version           int64
	ProducerVersion   string
	BuildID           string
	RunID             string
	DateAndTime       string
	Path              string
	Seed              int64
	EnergyMode        string
	RunMode           string
	PhotonTransport   bool
	NParticles        int64
	NBatches          int64
	CurrentBatch      int64
	NInactive         int64
	NRealizations     int64
	SourcePresent     bool
	CMFDOn            bool
	TalliesPresent    bool
	SourceFingerprint string
}

// TallySummary describes one recorded tally for inspection.
type TallySummary struct {
	ID              int32
	Name            string
	Estimator       string
	NumFilters      int
	NumNuclides     int
	NumScores       int
	NumRealizations int64
	NumBins         int
}

// ReadInfo opens a checkpoint serially and parses its header. Optional
// attributes (build_id, source_fingerprint) are left empty when absent.
func ReadInfo(path string, opts store.Options) (*Info, error) {
	f, err := store.Open(path, store.ModeRead, opts)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readInfo(f.Root())
}

func readInfo(root *store.Group) (*Info, error) {
	info := &Info{}

	var err error
	read := func(dst *string, name string) {
		if err != nil {
			return
		}
		*dst, err = root.AttrString(name)
	}
	readInt := func(dst *int64, name string) {
		if err != nil {
			return
		}
		*dst, err = root.AttrInt(name)
	}
	readBool := func(dst *bool, name string) {
		if err != nil {
			return
		}
		var v int64
		v, err = root.AttrInt(name)
		*dst = v != 0
	}

	read(&info.Filetype, attrFiletype)
	readInt(&info.Version, attrVersion)
	read(&info.ProducerVersion, attrProducerVersion)
	read(&info.RunID, attrRunID)
	read(&info.DateAndTime, attrDateAndTime)
	read(&info.Path, attrPath)
	readInt(&info.Seed, attrSeed)
	read(&info.EnergyMode, attrEnergyMode)
	read(&info.RunMode, attrRunMode)
	readBool(&info.PhotonTransport, attrPhotonTransport)
	readInt(&info.NParticles, attrNParticles)
	readInt(&info.NBatches, attrNBatches)
	readInt(&info.CurrentBatch, attrCurrentBatch)
	readInt(&info.NInactive, attrNInactive)
	readInt(&info.NRealizations, attrNRealizations)
	readBool(&info.SourcePresent, attrSourcePresent)
	readBool(&info.CMFDOn, attrCMFDOn)
	readBool(&info.TalliesPresent, attrTalliesPresent)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: parse header: %w", err)
	}

	// Optional attributes.
	if root.HasAttr(attrBuildID) {
		info.BuildID, _ = root.AttrString(attrBuildID)
	}
	if root.HasAttr(attrSourceFingerprint) {
		info.SourceFingerprint, _ = root.AttrString(attrSourceFingerprint)
	}
	return info, nil
}

// ReadTallies opens a checkpoint serially and summarizes its recorded
// tallies in id order.
func ReadTallies(path string, opts store.Options) ([]TallySummary, error) {
	f, err := store.Open(path, store.ModeRead, opts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tg, err := f.Root().OpenGroup(groupTallies)
	if err != nil {
		return nil, nil // no tallies recorded
	}

	ids, err := tg.ReadInts("ids")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read tally ids: %w", err)
	}

	summaries := make([]TallySummary, 0, len(ids))
	for _, id := range ids {
		g, err := tg.OpenGroup(tallyGroupName(int32(id)))
		if err != nil {
			continue
		}
		s := TallySummary{ID: int32(id)}
		s.Name, _ = g.AttrString("name")
		s.Estimator, _ = g.AttrString("estimator")
		s.NumRealizations, _ = g.AttrInt(attrNRealizations)
		if filters, err := g.ReadInts("filters"); err == nil {
			s.NumFilters = len(filters)
		}
		if nuclides, err := g.ReadStrings("nuclides"); err == nil {
			s.NumNuclides = len(nuclides)
		}
		if scores, err := g.ReadStrings("score_bins"); err == nil {
			s.NumScores = len(scores)
		}
		if sum, err := g.ReadFloats("results_sum"); err == nil {
			s.NumBins = len(sum)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func tallyGroupName(id int32) string      { return fmt.Sprintf("tally_%d", id) }
func filterGroupName(id int32) string     { return fmt.Sprintf("filter_%d", id) }
func meshGroupName(id int32) string       { return fmt.Sprintf("mesh_%d", id) }
func derivativeGroupName(id int32) string { return fmt.Sprintf("derivative_%d", id) }

func boolAttr(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
