// Package api defines the daemon's HTTP surface: wire-format DTOs, the chi
// router that serves them, and the client the CLI uses to call it. It
// translates queue tasks and workflow status into transport-friendly types so
// consumers never depend on internal ones.
//
// DTOs use camelCase JSON tags except the enqueue request, which keeps the
// ledger's numero_expediente/id_sesion names. Queue statuses and media kinds
// are lowercase strings and timestamps use RFC3339 with milliseconds.
package api
