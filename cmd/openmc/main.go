// Package main provides the entry point for openmc.
//
// @design DS-0501
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cchasing/openmc/internal/checkpoint"
	"github.com/cchasing/openmc/internal/core/domain"
	"github.com/cchasing/openmc/internal/core/simulation"
	"github.com/cchasing/openmc/internal/infra/buildinfo"
	"github.com/cchasing/openmc/internal/infra/confloader"
	"github.com/cchasing/openmc/internal/infra/shutdown"
	"github.com/cchasing/openmc/internal/runtime/comm"
	"github.com/cchasing/openmc/internal/telemetry/logger"
	"github.com/cchasing/openmc/internal/telemetry/metric"
	"github.com/cchasing/openmc/pkg/crypto/adaptive"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		restartPath = flag.String("restart", "", "Checkpoint to restart from")
		sourcePath  = flag.String("source", "", "Separate source file for restart")
		metricsAddr = flag.String("metrics-addr", "", "Prometheus listen address (empty disables)")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		logFormat   = flag.String("log-format", "text", "Log format: text, json")
		showVersion = flag.Bool("version", false, "Show version information")

		// Multi-rank runs discover each other over gossip; a run is
		// serial unless ranks > 1.
		ranks      = flag.Int("ranks", 1, "Expected rank count")
		nodeID     = flag.String("node-id", "", "Stable node id for rank ordering")
		gossipAddr = flag.String("gossip-addr", "127.0.0.1:7946", "Gossip bind host:port")
		dataAddr   = flag.String("data-addr", "127.0.0.1:7947", "Collective data exchange host:port")
		seedNodes  = flag.String("seeds", "", "Comma-separated gossip seed nodes")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("openmc %s (commit: %s, built: %s)\n",
			buildinfo.Version, buildinfo.Commit, buildinfo.BuildTime)
		return nil
	}

	settings, err := loadSettings(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *sourcePath != "" {
		settings.SourcePath = *sourcePath
	}

	log, err := logger.New(logger.Config{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	runID := ulid.Make().String()
	log = log.With("run_id", runID)
	log.Info("starting openmc",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"run_mode", settings.RunMode.String(),
		"batches", settings.NBatches,
		"particles", settings.NParticles)

	group, err := buildComm(*ranks, *nodeID, *gossipAddr, *dataAddr, *seedNodes, runID)
	if err != nil {
		return fmt.Errorf("join rank group: %w", err)
	}
	defer group.Close()

	cipher, err := buildCipher(settings.Encryption)
	if err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	registry := metric.NewRegistry()
	if *metricsAddr != "" && group.IsCoordinator() {
		srv := &http.Server{Addr: *metricsAddr, Handler: registry.Handler()}
		go func() {
			log.Info("metrics listening", "addr", *metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	state := simulation.NewState(settings)
	state.RunID = runID

	driver := simulation.NewDriver(state, simulation.DriverConfig{
		Checkpoint: &checkpoint.Writer{Comm: group, Cipher: cipher, Log: log, Metrics: registry},
		Restore:    &checkpoint.Loader{Comm: group, Cipher: cipher, Log: log, Metrics: registry},
		PathFor: func(batch, nBatches int32) string {
			return checkpoint.Filename(settings.OutputDir, batch, nBatches)
		},
		Log:     log,
		Metrics: registry,
	})

	// Only the checkpoint-batch policy is reloadable mid-run; every other
	// setting is fixed once the run starts.
	if *configFile != "" {
		watcher, werr := confloader.NewWatcher()
		switch {
		case werr != nil:
			log.Warn("config watcher unavailable", "error", werr)
		case watcher.Watch(*configFile) != nil:
			log.Warn("config watcher unavailable", "path", *configFile)
			watcher.Stop()
		default:
			watcher.OnChange(func(path string) {
				updated, lerr := loadSettings(path)
				if lerr != nil {
					log.Warn("config changed but failed to reload", "path", path, "error", lerr)
					return
				}
				driver.SetCheckpointBatches(updated.CheckpointBatches)
				log.Info("config changed; other settings apply on next start", "path", path)
			})
			watcher.StartAsync()
			defer watcher.Stop()
		}
	}

	if *restartPath != "" {
		log.Info("restarting from checkpoint", "path", *restartPath)
		if err := driver.Resume(*restartPath); err != nil {
			return fmt.Errorf("restart: %w", err)
		}
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	err = driver.Run(ctx)
	switch {
	case err == nil:
		log.Info("run finished")
	case errors.Is(err, context.Canceled):
		// The driver already recorded the final checkpoint.
		log.Info("run interrupted, state checkpointed")
		err = nil
	default:
		return err
	}
	return nil
}

// loadSettings resolves the run settings: defaults, then file, then
// OPENMC_* environment variables.
func loadSettings(configFile string) (domain.Settings, error) {
	settings := domain.DefaultSettings()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(&settings); err != nil {
		return settings, err
	}
	if err := settings.Normalize(); err != nil {
		return settings, err
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// buildComm joins the rank group: serial below 2 ranks, gossip mesh
// otherwise.
func buildComm(ranks int, nodeID, gossipAddr, dataAddr, seeds, runID string) (comm.Comm, error) {
	if ranks < 2 {
		return comm.Single(), nil
	}
	if nodeID == "" {
		nodeID = runID
	}
	host, port, err := splitHostPort(gossipAddr)
	if err != nil {
		return nil, err
	}
	cfg := comm.MeshConfig{
		NodeID:        nodeID,
		BindAddr:      host,
		BindPort:      port,
		DataAddr:      dataAddr,
		ExpectedRanks: ranks,
		JoinTimeout:   time.Minute,
		Logger:        slog.Default(),
	}
	if seeds != "" {
		cfg.SeedNodes = strings.Split(seeds, ",")
	}
	return comm.NewMesh(cfg)
}

func buildCipher(enc domain.EncryptionSettings) (adaptive.Cipher, error) {
	if !enc.Enabled() {
		return nil, nil
	}
	var key []byte
	var err error
	if enc.Key != "" {
		key, err = adaptive.ParseKey(enc.Key)
	} else {
		key, err = adaptive.DeriveKey(enc.Passphrase)
	}
	if err != nil {
		return nil, err
	}
	return adaptive.New(key)
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("address %q missing port", addr)
	}
	var port int
	if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("address %q: bad port", addr)
	}
	return addr[:i], port, nil
}
