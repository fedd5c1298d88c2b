// Package queue persists assembly tasks in SQLite and exposes helpers for
// driving their lifecycle.
//
// A task is one (expediente, session, kind) request. The Store handles
// enqueueing with per-key deduplication, atomic claiming by workers,
// heartbeat tracking, stale-task recovery, retry scheduling and the status
// transitions used by the workflow manager. Retry decisions come from
// RetryPolicy, which applies exponential backoff up to a bounded attempt
// count.
//
// The database is treated as transient storage for in-flight work; the
// ledger remains the system of record. Schema changes bump the version in
// schema.go and operators clear the database to adopt them.
package queue
