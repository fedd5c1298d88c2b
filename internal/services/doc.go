// Package services defines shared utilities consumed by the pipeline and its
// integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, pipeline states, media kinds, and
//     correlation identifiers for logging.
//   - The failure taxonomy (missing source, no fragments, insufficient disk,
//     assembly tool, verification, ledger, timeout) plus the Wrap helper that
//     tags errors so the orchestrator and queue can classify them.
//
// Use these helpers when wiring new pipeline logic so failure handling and
// observability stay uniform across media kinds.
package services
