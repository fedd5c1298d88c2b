// Package daemon coordinates the long-running semefo worker process.
//
// It wires configuration, queue storage, the workflow manager, and the HTTP
// status surface into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon resets tasks a crashed predecessor left in
// processing, runs startup preflight checks, posts worker heartbeats to the
// job ledger, and sweeps stale temporary files from the artifact tree.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
