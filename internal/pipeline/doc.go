// Package pipeline runs one (session, kind) assembly from fragment discovery
// to ledger reporting.
//
// Each run walks Scanning, GuardChecked, Assembling, Verified, Reporting and
// Done, and any step may end it in Failed. Failures are recorded on the
// ledger job and returned in the Outcome; Run never panics or re-raises.
// Scheduling retries is left to the queue that invoked the run.
//
// The video2 kind is a compound flow: the merged video feeds an audio2
// extraction whose ledger job is reported on its own, so a failed extraction
// never rolls back a completed video2.
package pipeline
