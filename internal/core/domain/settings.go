package domain

import (
	"fmt"
)

// RunMode is the simulation run mode. It is an immutable per-run property:
// a restart may not change it.
type RunMode int

const (
	RunModeFixedSource RunMode = iota
	RunModeEigenvalue
)

// Wire labels for RunMode. These are part of the checkpoint header contract
// and must remain stable across a schema version.
const (
	runModeFixedSourceLabel = "fixed source"
	runModeEigenvalueLabel  = "eigenvalue"
)

// String returns the wire label for the run mode.
func (m RunMode) String() string {
	if m == RunModeEigenvalue {
		return runModeEigenvalueLabel
	}
	return runModeFixedSourceLabel
}

// ParseRunMode parses a wire label into a RunMode.
func ParseRunMode(s string) (RunMode, error) {
	switch s {
	case runModeFixedSourceLabel:
		return RunModeFixedSource, nil
	case runModeEigenvalueLabel:
		return RunModeEigenvalue, nil
	default:
		return 0, fmt.Errorf("domain: unknown run mode %q", s)
	}
}

// EnergyMode is the energy treatment mode. Immutable per run.
type EnergyMode int

const (
	EnergyModeContinuous EnergyMode = iota
	EnergyModeMultiGroup
)

const (
	energyModeContinuousLabel = "continuous-energy"
	energyModeMultiGroupLabel = "multi-group"
)

// String returns the wire label for the energy mode.
func (m EnergyMode) String() string {
	if m == EnergyModeMultiGroup {
		return energyModeMultiGroupLabel
	}
	return energyModeContinuousLabel
}

// ParseEnergyMode parses a wire label into an EnergyMode.
func ParseEnergyMode(s string) (EnergyMode, error) {
	switch s {
	case energyModeContinuousLabel:
		return EnergyModeContinuous, nil
	case energyModeMultiGroupLabel:
		return EnergyModeMultiGroup, nil
	default:
		return 0, fmt.Errorf("domain: unknown energy mode %q", s)
	}
}

// EncryptionSettings configures optional at-rest encryption of checkpoint
// bodies. Either a raw hex key or a passphrase may be given, not both.
type EncryptionSettings struct {
	// Key is a hex-encoded 16/24/32-byte AEAD key.
	Key string `koanf:"key"`

	// Passphrase derives a 32-byte key via argon2id when Key is empty.
	Passphrase string `koanf:"passphrase"`
}

// Enabled reports whether checkpoint encryption is configured.
func (e EncryptionSettings) Enabled() bool {
	return e.Key != "" || e.Passphrase != ""
}

// Settings holds the run configuration relevant to checkpointing.
//
// Settings is loaded by confloader from YAML and OPENMC_* environment
// variables; the koanf tags define the config keys.
type Settings struct {
	// Seed is the RNG stream seed.
	Seed int64 `koanf:"seed"`

	// RunMode is "fixed source" or "eigenvalue".
	RunMode RunMode `koanf:"-"`

	// EnergyMode is "continuous-energy" or "multi-group".
	EnergyMode EnergyMode `koanf:"-"`

	// RunModeLabel / EnergyModeLabel carry the wire labels through config
	// loading; Normalize resolves them into the typed fields.
	RunModeLabel    string `koanf:"run_mode"`
	EnergyModeLabel string `koanf:"energy_mode"`

	// PhotonTransport enables coupled photon transport.
	PhotonTransport bool `koanf:"photon_transport"`

	// NParticles is the particle count per batch.
	NParticles int64 `koanf:"particles"`

	// NBatches is the total configured batch count.
	NBatches int32 `koanf:"batches"`

	// NInactive is the inactive (discarded) batch count in eigenvalue mode.
	NInactive int32 `koanf:"inactive"`

	// CheckpointBatches lists the batch numbers after which a checkpoint is
	// written. Trigger policy is a driver concern, not a checkpoint concern.
	CheckpointBatches []int32 `koanf:"checkpoint_batches"`

	// SourceWrite embeds the source population in checkpoints.
	SourceWrite bool `koanf:"source_write"`

	// OutputDir is where checkpoint files are written.
	OutputDir string `koanf:"output_dir"`

	// SourcePath is the source file for restart. May equal the checkpoint
	// path when the population is embedded there.
	SourcePath string `koanf:"source_path"`

	// Encryption optionally encrypts checkpoint bodies at rest.
	Encryption EncryptionSettings `koanf:"encryption"`
}

// DefaultSettings returns settings for a small eigenvalue run.
func DefaultSettings() Settings {
	return Settings{
		Seed:            1,
		RunMode:         RunModeEigenvalue,
		EnergyMode:      EnergyModeContinuous,
		RunModeLabel:    runModeEigenvalueLabel,
		EnergyModeLabel: energyModeContinuousLabel,
		NParticles:      1000,
		NBatches:        10,
		NInactive:       2,
		OutputDir:       ".",
	}
}

// Normalize resolves wire labels loaded from config into typed modes.
// Empty labels keep the current typed values.
func (s *Settings) Normalize() error {
	if s.RunModeLabel != "" {
		m, err := ParseRunMode(s.RunModeLabel)
		if err != nil {
			return err
		}
		s.RunMode = m
	}
	if s.EnergyModeLabel != "" {
		m, err := ParseEnergyMode(s.EnergyModeLabel)
		if err != nil {
			return err
		}
		s.EnergyMode = m
	}
	return nil
}

// Validate checks the settings for internal consistency.
func (s *Settings) Validate() error {
	if s.NParticles <= 0 {
		return ErrSettingsValidation.WithDetails("particles must be positive")
	}
	if s.NBatches <= 0 {
		return ErrSettingsValidation.WithDetails("batches must be positive")
	}
	if s.NInactive < 0 || s.NInactive >= s.NBatches {
		return ErrSettingsValidation.WithDetails("inactive batches must be in [0, batches)")
	}
	for _, b := range s.CheckpointBatches {
		if b < 1 || b > s.NBatches {
			return ErrSettingsValidation.WithDetails(
				fmt.Sprintf("checkpoint batch %d outside [1, %d]", b, s.NBatches))
		}
	}
	if s.Encryption.Key != "" && s.Encryption.Passphrase != "" {
		return ErrSettingsValidation.WithDetails("encryption key and passphrase are mutually exclusive")
	}
	return nil
}
