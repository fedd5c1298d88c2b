// Package main hosts the semefo CLI entrypoint and command graph.
//
// The Cobra-based command tree assembles a session kind inline, enqueues work
// for the daemon, inspects and repairs the local task queue, reports daemon
// and dependency status, sweeps stale temporary files, and scaffolds
// configuration. Commands prefer the running daemon's HTTP API and fall back
// to the queue database when no daemon answers.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
