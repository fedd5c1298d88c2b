package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"semefo/internal/assembly"
	"semefo/internal/config"
	"semefo/internal/diskguard"
	"semefo/internal/dispatch"
	"semefo/internal/fragments"
	"semefo/internal/keylock"
	"semefo/internal/ledger"
	"semefo/internal/media"
	"semefo/internal/pipeline"
	"semefo/internal/preflight"
)

// Runtime holds the collaborators of a configured pipeline.
type Runtime struct {
	Orchestrator *pipeline.Orchestrator
	Ledger       *ledger.Client
	Dispatcher   dispatch.Dispatcher
}

// Build wires the scanner, guard, engine, ledger client and dispatcher
// described by cfg into an orchestrator. Close the runtime when done.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	client := ledger.NewFromConfig(cfg, logger)
	dispatcher, err := dispatch.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect dispatcher: %w", err)
	}

	orchestrator := pipeline.New(pipeline.Deps{
		Layout: media.NewLayout(cfg.Paths.StorageRoot),
		Scanner: fragments.NewScanner(fragments.Options{
			MinStableBytes:  cfg.Scanner.MinStableBytes,
			MaxAttempts:     cfg.Scanner.MaxAttempts,
			PollInterval:    cfg.ScannerPollInterval(),
			MaxPollInterval: cfg.ScannerMaxPollInterval(),
		}, logger),
		Guard: diskguard.New(cfg.MinFreeBytes()),
		Engine: assembly.NewEngine(assembly.Options{
			FFmpegBinary:  cfg.Assembly.FFmpegBinary,
			FFprobeBinary: cfg.Assembly.FFprobeBinary,
			Profile:       assembly.ProfileFor(cfg.Assembly.Profile, cfg.Assembly.Threads),
			ProbeOutput:   cfg.Assembly.ProbeOutput,
		}, logger),
		Ledger:     client,
		Dispatcher: dispatcher,
		Locker:     keylock.New(cfg.LockDir()),
		Logger:     logger,
	}, pipeline.SettingsFromConfig(cfg))

	return &Runtime{Orchestrator: orchestrator, Ledger: client, Dispatcher: dispatcher}, nil
}

// Probes returns the reachability checks for the runtime's remote services.
func (r *Runtime) Probes() preflight.Probes {
	probes := preflight.Probes{Ledger: r.Ledger}
	if pinger, ok := r.Dispatcher.(preflight.Pinger); ok {
		probes.Broker = pinger
	}
	return probes
}

// Close releases the broker connection.
func (r *Runtime) Close() error {
	if r == nil || r.Dispatcher == nil {
		return nil
	}
	return r.Dispatcher.Close()
}
