// Package workflow drains the task queue through the pipeline orchestrator.
//
// The Manager runs a fixed pool of workers. Each worker claims the next due
// task, stamps a correlation id on the context, keeps the task's heartbeat
// fresh while the pipeline runs, and then settles the task: completed,
// rescheduled with exponential backoff, or failed for good. A separate loop
// reclaims tasks whose heartbeat went stale and refreshes the queue gauges.
//
// Two runs for the same (session, kind) never overlap: the queue refuses a
// second active task for a key and the orchestrator holds a per-key file
// lock for the duration of a run.
package workflow
