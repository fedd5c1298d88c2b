package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"semefo/internal/api"
	"semefo/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <expediente> <session> <kind>...",
		Short: "Queue session kinds for the daemon",
		Long:  "Queues audio, video or video2 assembly for a session. audio2 re-extracts the track from an existing video2.webm.",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[1])
			}
			requests := make([]api.EnqueueRequest, 0, len(args)-2)
			for _, kind := range args[2:] {
				requests = append(requests, api.EnqueueRequest{
					Expediente: strings.TrimSpace(args[0]),
					SessionID:  sessionID,
					Kind:       kind,
				})
			}

			out := cmd.OutOrStdout()
			report := func(resp api.EnqueueResponse) {
				if resp.Created {
					fmt.Fprintf(out, "Queued task %d (%s %d %s)\n", resp.Task.ID, resp.Task.Expediente, resp.Task.SessionID, resp.Task.Kind)
					return
				}
				fmt.Fprintf(out, "Task %d already %s for %s %d %s\n", resp.Task.ID, resp.Task.Status, resp.Task.Expediente, resp.Task.SessionID, resp.Task.Kind)
			}

			if client := ctx.daemonClient(cmd.Context()); client != nil {
				for _, req := range requests {
					resp, err := client.Enqueue(cmd.Context(), req)
					if err != nil {
						return err
					}
					report(resp)
				}
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				svc := api.NewQueueService(store, cfg.Queue.MaxAttempts)
				for _, req := range requests {
					resp, err := svc.Enqueue(cmd.Context(), req)
					if err != nil {
						return err
					}
					report(resp)
				}
				fmt.Fprintln(out, "Daemon not reachable; tasks will run when it starts")
				return nil
			})
		},
	}
}
