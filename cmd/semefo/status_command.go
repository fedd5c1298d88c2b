package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"semefo/internal/api"
	"semefo/internal/dispatch"
	"semefo/internal/ledger"
	"semefo/internal/logging"
	"semefo/internal/preflight"
	"semefo/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rep := newReport(out)

			rep.section("Daemon")
			var (
				stats map[string]int
				deps  []api.DependencyStatus
			)
			if client := ctx.daemonClient(cmd.Context()); client != nil {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				rep.add("semefo", sevOK, fmt.Sprintf("Running (pid %d)", status.PID))
				rep.add("Workers", sevInfo, fmt.Sprintf("%d busy of %d", status.Workflow.BusyWorkers, status.Workflow.Workers))
				if status.Workflow.LastError != "" {
					rep.add("Last error", sevWarn, status.Workflow.LastError)
				}
				stats = status.Workflow.QueueStats
				deps = status.Dependencies
			} else {
				rep.add("semefo", sevWarn, "Not running")
				if err := ctx.withStore(func(store *queue.Store) error {
					raw, err := store.Stats(cmd.Context())
					stats = api.MergeQueueStats(raw)
					return err
				}); err != nil {
					return err
				}
				for _, dep := range preflight.CheckSystemDeps(cfg) {
					deps = append(deps, api.DependencyStatus{
						Name: dep.Name, Command: dep.Command, Description: dep.Description,
						Optional: dep.Optional, Available: dep.Available, Detail: dep.Detail,
					})
				}
			}
			rep.add("Config", sevInfo, ctx.configPath)
			rep.add("Storage root", sevInfo, cfg.Paths.StorageRoot)

			rep.section("Queue")
			for _, row := range buildQueueStatusRows(stats) {
				rep.add(row[0], sevInfo, row[1])
			}

			rep.section("Dependencies")
			addDependencies(rep, deps)

			if !skipChecks {
				probes := preflight.Probes{Ledger: ledger.NewFromConfig(cfg, logging.NewNop())}
				if strings.TrimSpace(cfg.Dispatch.URL) != "" {
					probes.Broker = dispatch.Probe{
						URL:     cfg.Dispatch.URL,
						Stream:  cfg.Dispatch.Stream,
						Timeout: time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second,
					}
				}
				rep.section("Checks")
				addPreflight(rep, preflight.RunAll(cmd.Context(), cfg, probes))
			}

			rep.writeTo(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipChecks, "no-checks", false, "Skip storage, disk, ledger and broker checks")
	return cmd
}
