package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"semefo/internal/api"
	"semefo/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the task queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildQueueStatusRows(api.MergeQueueStats(stats))
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				tasks, err := api.NewQueueService(store, 0).List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOut {
					if tasks == nil {
						tasks = []api.QueueTask{}
					}
					return writeJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(queueListHeaders, buildQueueListRows(tasks), queueListAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status: pending, processing, completed, failed (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit tasks as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queue task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return ctx.withStore(func(store *queue.Store) error {
				task, err := api.NewQueueService(store, 0).Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %d not found", id)
				}
				return writeJSON(cmd, task)
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Move failed tasks back to pending",
		Long:  "Retries the given failed tasks, or every failed task when no id is given. Attempt counters restart at zero.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			var count int64
			if client := ctx.daemonClient(cmd.Context()); client != nil {
				count, err = client.Retry(cmd.Context(), ids)
			} else {
				err = ctx.withStore(func(store *queue.Store) error {
					count, err = store.RetryFailed(cmd.Context(), ids...)
					return err
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retrying %d task(s)\n", count)
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished or waiting tasks",
		Long:  "Removes every task that is not processing, or only completed/failed tasks with the matching flag.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(store *queue.Store) error {
				var (
					removed int64
					err     error
					label   = "queue"
				)
				switch {
				case clearCompleted:
					removed, err = store.ClearCompleted(cmd.Context())
					label = "completed"
				case clearFailed:
					removed, err = store.ClearFailed(cmd.Context())
					label = "failed"
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s task(s)\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Only remove completed tasks")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Only remove failed tasks")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				rep := &report{color: isTerminal(cmd.OutOrStdout())}
				rep.add("Database", sevInfo, health.DBPath)
				rep.add("Schema version", sevInfo, health.SchemaVersion)
				rep.add("Readable", severityFor(health.DatabaseReadable), yesNo(health.DatabaseReadable))
				rep.add("Tasks table", severityFor(health.TableExists), yesNo(health.TableExists))
				columns := "complete"
				if len(health.MissingColumns) > 0 {
					columns = fmt.Sprintf("missing %v", health.MissingColumns)
				}
				rep.add("Columns", severityFor(len(health.MissingColumns) == 0), columns)
				rep.add("Integrity", severityFor(health.IntegrityCheck), yesNo(health.IntegrityCheck))
				rep.add("Tasks", sevInfo, strconv.Itoa(health.TotalTasks))
				rep.writeTo(cmd.OutOrStdout())
				if health.Error != "" {
					return errors.New(health.Error)
				}
				return nil
			})
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
