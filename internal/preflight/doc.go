// Package preflight provides readiness checks for the filesystem paths and
// external services the assembly worker depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failing check so an
//     operator sees a missing mount or an unreachable ledger immediately.
//   - The CLI "semefo status" command renders the same results as a table.
//
// A failing check never blocks the daemon: fragments keep arriving and tasks
// are retried once the dependency comes back.
package preflight
