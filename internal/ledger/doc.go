// Package ledger is the worker's client for the central job/file ledger API.
//
// Every job the worker performs is mirrored there: a job row is created (or
// reset) before work starts and is moved to completado or error afterwards,
// and each produced artifact is registered against its session. The client
// authenticates with a cached service token, retries once on 401 and paces
// outbound requests with a token bucket. All failures are tagged with
// services.ErrLedger; deciding whether a failure matters is the caller's job.
package ledger
