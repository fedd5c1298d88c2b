package preflight

import (
	"context"
	"strings"

	"semefo/internal/config"
	"semefo/internal/diskguard"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is implemented by remote collaborators that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probes carries the live clients RunAll should exercise. Nil probes are reported as skipped.
type Probes struct {
	Ledger Pinger
	Broker Pinger
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, probes Probes) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Storage root", cfg.Paths.StorageRoot),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDiskBudget(diskguard.New(cfg.MinFreeBytes()), cfg.Paths.StorageRoot),
	}

	results = append(results, CheckPinger(ctx, "Job ledger", probes.Ledger))
	if strings.TrimSpace(cfg.Dispatch.URL) == "" {
		results = append(results, Result{Name: "Transcription broker", Passed: true, Detail: "Disabled"})
	} else {
		results = append(results, CheckPinger(ctx, "Transcription broker", probes.Broker))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
