package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cchasing/openmc/internal/checkpoint"
	"github.com/cchasing/openmc/internal/cli/output"
)

// InspectCommand returns the inspect command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Aliases:   []string{"i"},
		Usage:     "Show the checkpoint header",
		ArgsUsage: "<checkpoint>",
		Action:    inspect,
	}
}

func inspect(c *cli.Context) error {
	path, err := checkpointArg(c)
	if err != nil {
		return err
	}
	opts, err := storeOptions(c)
	if err != nil {
		return err
	}

	info, err := checkpoint.ReadInfo(path, opts)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON:
		return (&output.JSONFormatter{}).Format(os.Stdout, info)
	case output.FormatYAML:
		return (&output.YAMLFormatter{}).Format(os.Stdout, info)
	default:
		return renderInfo(info)
	}
}

func renderInfo(info *checkpoint.Info) error {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("filetype", info.Filetype)
	t.AddRow("version", fmt.Sprintf("%d", info.Version))
	t.AddRow("producer", info.ProducerVersion)
	t.AddRow("run_id", info.RunID)
	t.AddRow("written", info.DateAndTime)
	t.AddRow("run_mode", info.RunMode)
	t.AddRow("energy_mode", info.EnergyMode)
	t.AddRow("seed", fmt.Sprintf("%d", info.Seed))
	t.AddRow("particles", fmt.Sprintf("%d", info.NParticles))
	t.AddRow("batches", fmt.Sprintf("%d/%d (inactive %d)", info.CurrentBatch, info.NBatches, info.NInactive))
	t.AddRow("realizations", fmt.Sprintf("%d", info.NRealizations))
	t.AddRow("photon_transport", fmt.Sprintf("%v", info.PhotonTransport))
	t.AddRow("cmfd", fmt.Sprintf("%v", info.CMFDOn))
	t.AddRow("tallies", fmt.Sprintf("%v", info.TalliesPresent))
	t.AddRow("source", fmt.Sprintf("%v", info.SourcePresent))
	if info.SourceFingerprint != "" {
		t.AddRow("source_fingerprint", info.SourceFingerprint)
	}
	return t.Render(os.Stdout)
}
