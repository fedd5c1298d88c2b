package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"semefo/internal/ledger"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/services"
)

// flow tracks one ledger-reported sub-flow.
type flow struct {
	o            *Orchestrator
	session      media.Session
	kind         media.Kind
	out          *Outcome
	logger       *slog.Logger
	jobAttempted bool
}

func (o *Orchestrator) newFlow(ctx context.Context, session media.Session, kind media.Kind, out *Outcome) *flow {
	logger := logging.WithContext(ctx, o.logger).With(
		logging.Session(session.Expediente, session.ID),
		logging.String(logging.FieldKind, string(kind)),
	)
	return &flow{o: o, session: session, kind: kind, out: out, logger: logger}
}

func (f *flow) enter(state State) {
	f.out.State = state
	f.out.Transitions = append(f.out.Transitions, state)
	f.logger.Debug("pipeline state", logging.String(logging.FieldStage, string(state)))
}

// startJob creates or resets the ledger job. Failure is fatal for the flow.
func (f *flow) startJob(ctx context.Context) bool {
	f.jobAttempted = true
	id, err := f.o.deps.Ledger.CreateOrResetJob(ctx, f.session, f.kind, f.kind.Filename())
	if err != nil {
		f.fail(ctx, err, "")
		return false
	}
	f.out.JobID = id
	f.logger = f.logger.With(logging.Int64(logging.FieldJobID, int64(id)))
	if err := f.o.deps.Ledger.UpdateJob(ctx, ledger.JobUpdate{ID: id, State: ledger.JobProcessing}); err != nil {
		f.warnLedger("job state update failed", err)
	}
	return true
}

// fail ends the flow. Failures before job creation still create a job so the
// error is visible on the dashboard; ledgerMsg overrides the text stored there.
func (f *flow) fail(ctx context.Context, err error, ledgerMsg string) {
	f.out.Err = err
	f.enter(StateFailed)

	// Reporting outlives cancellation so a shutdown mid-run still lands on the ledger.
	reportCtx := context.WithoutCancel(ctx)
	if f.out.JobID == 0 && !f.jobAttempted {
		f.jobAttempted = true
		id, cerr := f.o.deps.Ledger.CreateOrResetJob(reportCtx, f.session, f.kind, f.kind.Filename())
		if cerr != nil {
			f.warnLedger("job creation for failure report failed", cerr)
		} else {
			f.out.JobID = id
		}
	}
	if f.out.JobID != 0 {
		msg := ledgerMsg
		if msg == "" {
			msg = err.Error()
		}
		if uerr := f.o.deps.Ledger.UpdateJob(reportCtx, ledger.JobUpdate{ID: f.out.JobID, State: ledger.JobError, Error: msg}); uerr != nil {
			f.warnLedger("job error update failed", uerr)
		}
	}
	logging.ErrorWithContext(f.logger, "pipeline failed", "pipeline_failed",
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(err)),
	)
}

func (f *flow) warnLedger(msg string, err error) {
	logging.WarnWithContext(f.logger, msg, "ledger_best_effort_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "dashboard may show stale state for this job"),
	)
}

// report registers and finalizes the artifact and completes the job. Every
// call is best effort.
func (f *flow) report(ctx context.Context) {
	f.enter(StateReporting)
	rel := f.o.deps.Layout.Relative(f.out.Artifact.Path)
	if _, err := f.o.deps.Ledger.RegisterFile(ctx, f.session, f.kind, rel); err != nil {
		f.warnLedger("file registration failed", err)
	}
	if err := f.o.deps.Ledger.FinalizeFile(ctx, f.session, f.kind, rel); err != nil {
		f.warnLedger("file finalization failed", err)
	}
	if err := f.o.deps.Ledger.UpdateJob(ctx, ledger.JobUpdate{ID: f.out.JobID, State: ledger.JobCompleted, Result: rel}); err != nil {
		f.warnLedger("job completion update failed", err)
	}
}

func noFragmentsMessage(kind media.Kind) string {
	return fmt.Sprintf("No hay fragmentos de %s", kind)
}

// scanMessage is the dashboard text for a scanning failure, or "" to store
// the error itself.
func scanMessage(kind media.Kind, err error) string {
	switch services.Marker(err) {
	case services.ErrMissingSource, services.ErrNoFragments:
		return noFragmentsMessage(kind)
	case services.ErrUnstable:
		return fmt.Sprintf("Fragmentos de %s aún en escritura", kind)
	default:
		return ""
	}
}

func hintFor(err error) string {
	switch services.Marker(err) {
	case services.ErrMissingSource, services.ErrNoFragments:
		return "check that the recorder uploaded fragments for this session"
	case services.ErrUnstable:
		return "the recorder is still writing; the task is retried with backoff"
	case services.ErrInsufficientDisk:
		return "free space on the storage volume or lower disk.min_free_gb"
	case services.ErrAssemblyTool:
		return "inspect the ffmpeg output above; a fragment may be corrupt"
	case services.ErrVerification:
		return "the merged file is too small; check fragment contents"
	case services.ErrTimeout:
		return "raise the assembly timeout or check host load"
	case services.ErrLedger:
		return "check ledger.base_url and the worker credentials"
	default:
		return "re-run the task once the cause is addressed"
	}
}
