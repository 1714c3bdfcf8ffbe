package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cchasing/openmc/internal/checkpoint"
	"github.com/cchasing/openmc/internal/cli/output"
)

// TalliesCommand returns the tallies command.
func TalliesCommand() *cli.Command {
	return &cli.Command{
		Name:      "tallies",
		Aliases:   []string{"t"},
		Usage:     "List the recorded tallies",
		ArgsUsage: "<checkpoint>",
		Action:    tallies,
	}
}

func tallies(c *cli.Context) error {
	path, err := checkpointArg(c)
	if err != nil {
		return err
	}
	opts, err := storeOptions(c)
	if err != nil {
		return err
	}

	summaries, err := checkpoint.ReadTallies(path, opts)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON:
		return (&output.JSONFormatter{}).Format(os.Stdout, summaries)
	case output.FormatYAML:
		return (&output.YAMLFormatter{}).Format(os.Stdout, summaries)
	default:
		return renderTallies(summaries, flags.Wide)
	}
}

func renderTallies(summaries []checkpoint.TallySummary, wide bool) error {
	if len(summaries) == 0 {
		fmt.Println("no tallies recorded")
		return nil
	}

	t := &output.Table{Headers: []string{"ID", "NAME", "ESTIMATOR", "BINS", "REALIZATIONS"}}
	if wide {
		t.Headers = append(t.Headers, "FILTERS", "NUCLIDES", "SCORES")
	}
	for _, s := range summaries {
		row := []string{
			fmt.Sprintf("%d", s.ID),
			s.Name,
			s.Estimator,
			fmt.Sprintf("%d", s.NumBins),
			fmt.Sprintf("%d", s.NumRealizations),
		}
		if wide {
			row = append(row,
				fmt.Sprintf("%d", s.NumFilters),
				fmt.Sprintf("%d", s.NumNuclides),
				fmt.Sprintf("%d", s.NumScores))
		}
		t.AddRow(row...)
	}
	return t.Render(os.Stdout)
}
