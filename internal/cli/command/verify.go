package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cchasing/openmc/internal/checkpoint"
	"github.com/cchasing/openmc/internal/cli/output"
)

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Aliases:   []string{"v"},
		Usage:     "Check checkpoint integrity (checksum, schema, source fingerprint)",
		ArgsUsage: "<checkpoint>",
		Action:    verify,
	}
}

func verify(c *cli.Context) error {
	path, err := checkpointArg(c)
	if err != nil {
		return err
	}
	opts, err := storeOptions(c)
	if err != nil {
		return err
	}

	result, err := checkpoint.Verify(path, opts)
	if err != nil {
		// The container itself is unreadable: corrupt framing, checksum
		// mismatch, or missing key.
		return fmt.Errorf("verify %s: %w", path, err)
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON:
		if err := (&output.JSONFormatter{}).Format(os.Stdout, result); err != nil {
			return err
		}
	case output.FormatYAML:
		if err := (&output.YAMLFormatter{}).Format(os.Stdout, result); err != nil {
			return err
		}
	default:
		renderVerify(result)
	}

	if !result.OK {
		return cli.Exit("", 1)
	}
	return nil
}

func renderVerify(r *checkpoint.VerifyResult) {
	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "FAIL"
	}
	fmt.Printf("%s\n", r.Path)
	fmt.Printf("  schema:  %s (filetype %q, version %d)\n", mark(r.VersionOK), r.Filetype, r.Version)
	if r.SourceChecked {
		fmt.Printf("  source:  %s (fingerprint)\n", mark(r.SourceOK))
	} else if r.SourcePresent {
		fmt.Printf("  source:  present, not fingerprinted\n")
	} else {
		fmt.Printf("  source:  not embedded\n")
	}
	fmt.Printf("  tallies: %d recorded\n", r.Tallies)
	fmt.Printf("  verdict: %s\n", mark(r.OK))
}
