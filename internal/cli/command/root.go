package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cchasing/openmc/internal/store"
	"github.com/cchasing/openmc/pkg/crypto/adaptive"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "statepoint",
		Usage:   "Inspect and verify checkpoint files",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			InspectCommand(),
			VerifyCommand(),
			TalliesCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:    "key",
			Usage:   "Hex-encoded key for encrypted checkpoints",
			EnvVars: []string{"OPENMC_CHECKPOINT_KEY"},
		},
		&cli.StringFlag{
			Name:    "passphrase",
			Usage:   "Passphrase for encrypted checkpoints",
			EnvVars: []string{"OPENMC_CHECKPOINT_PASSPHRASE"},
		},
	}
}

// GlobalFlags holds flags available to all commands.
type GlobalFlags struct {
	Output     string // table, json, yaml
	Wide       bool
	Key        string
	Passphrase string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Output:     c.String("output"),
		Wide:       c.Bool("wide"),
		Key:        c.String("key"),
		Passphrase: c.String("passphrase"),
	}
}

// storeOptions builds the store options from the global flags, deriving
// a cipher when key material was given.
func storeOptions(c *cli.Context) (store.Options, error) {
	flags := ParseGlobalFlags(c)
	opts := store.Options{}

	var key []byte
	var err error
	switch {
	case flags.Key != "":
		key, err = adaptive.ParseKey(flags.Key)
	case flags.Passphrase != "":
		key, err = adaptive.DeriveKey(flags.Passphrase)
	default:
		return opts, nil
	}
	if err != nil {
		return opts, fmt.Errorf("key material: %w", err)
	}

	cipher, err := adaptive.New(key)
	if err != nil {
		return opts, fmt.Errorf("init cipher: %w", err)
	}
	opts.Cipher = cipher
	return opts, nil
}

// checkpointArg returns the required checkpoint path argument.
func checkpointArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one checkpoint path, got %d arguments", c.NArg())
	}
	return c.Args().First(), nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
