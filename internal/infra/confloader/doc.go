// Package confloader loads run settings from files and the environment.
//
// The loader is built on koanf and merges sources in priority order:
//
//  1. OPENMC_* environment variables
//  2. Configuration file (YAML or JSON)
//  3. Defaults supplied by the caller
//
// It also provides a Watcher that reports edits to the config file while
// a run is in flight, used to reload the checkpoint-batch policy; all
// other settings are fixed once a run starts.
//
// @design DS-0502
// @adr AD-0501
package confloader
