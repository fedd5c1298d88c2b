package testsupport

import (
	"context"
	"fmt"
	"sync"

	"semefo/internal/ledger"
	"semefo/internal/media"
	"semefo/internal/services"
)

// LedgerJob is the fake ledger's view of one job row.
type LedgerJob struct {
	ID      ledger.JobID
	Session media.Session
	Kind    media.Kind
	State   ledger.JobState
	Result  string
	Error   string
	Resets  int
}

// LedgerFile is one registered session file.
type LedgerFile struct {
	Session   media.Session
	Kind      media.Kind
	Path      string
	Finalized bool
}

// FakeLedger is an in-memory ledger with create-or-reset semantics.
type FakeLedger struct {
	mu            sync.Mutex
	nextID        ledger.JobID
	jobs          map[string]*LedgerJob
	order         []*LedgerJob
	files         []*LedgerFile
	registrations int
	updates       []ledger.JobUpdate

	// FailCreate makes CreateOrResetJob return a ledger error.
	FailCreate bool
	// FailReporting makes register/finalize/update calls fail.
	FailReporting bool
}

// NewFakeLedger returns an empty fake.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{jobs: map[string]*LedgerJob{}}
}

func jobKey(session media.Session, kind media.Kind) string {
	return fmt.Sprintf("%s|%d|%s", session.Expediente, session.ID, kind)
}

func (l *FakeLedger) CreateOrResetJob(_ context.Context, session media.Session, kind media.Kind, _ string) (ledger.JobID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailCreate {
		return 0, services.Wrap(services.ErrLedger, "ledger", "create job", "unreachable", nil)
	}
	key := jobKey(session, kind)
	if job, ok := l.jobs[key]; ok {
		job.State = ledger.JobPending
		job.Result = ""
		job.Error = ""
		job.Resets++
		return job.ID, nil
	}
	l.nextID++
	job := &LedgerJob{ID: l.nextID, Session: session, Kind: kind, State: ledger.JobPending}
	l.jobs[key] = job
	l.order = append(l.order, job)
	return job.ID, nil
}

func (l *FakeLedger) UpdateJob(_ context.Context, update ledger.JobUpdate) error {
	if err := update.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "ledger", "update job", "invalid update", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, update)
	if l.FailReporting {
		return services.Wrap(services.ErrLedger, "ledger", "update job", "unreachable", nil)
	}
	for _, job := range l.order {
		if job.ID == update.ID {
			job.State = update.State
			job.Result = update.Result
			job.Error = update.Error
			return nil
		}
	}
	return services.Wrap(services.ErrLedger, "ledger", "update job", fmt.Sprintf("job %d not found", update.ID), nil)
}

func (l *FakeLedger) RegisterFile(_ context.Context, session media.Session, kind media.Kind, path string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registrations++
	if l.FailReporting {
		return false, services.Wrap(services.ErrLedger, "ledger", "register file", "unreachable", nil)
	}
	for _, f := range l.files {
		if f.Session == session && f.Kind == kind {
			return false, nil
		}
	}
	l.files = append(l.files, &LedgerFile{Session: session, Kind: kind, Path: path})
	return true, nil
}

func (l *FakeLedger) FinalizeFile(_ context.Context, session media.Session, kind media.Kind, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailReporting {
		return services.Wrap(services.ErrLedger, "ledger", "finalize file", "unreachable", nil)
	}
	for _, f := range l.files {
		if f.Session == session && f.Kind == kind {
			f.Path = path
			f.Finalized = true
			return nil
		}
	}
	return services.Wrap(services.ErrLedger, "ledger", "finalize file", "file not registered", nil)
}

// Jobs returns copies of all jobs in creation order.
func (l *FakeLedger) Jobs() []LedgerJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerJob, 0, len(l.order))
	for _, job := range l.order {
		out = append(out, *job)
	}
	return out
}

// Job returns the job for the key, if any.
func (l *FakeLedger) Job(session media.Session, kind media.Kind) (LedgerJob, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, ok := l.jobs[jobKey(session, kind)]
	if !ok {
		return LedgerJob{}, false
	}
	return *job, true
}

// Files returns copies of registered files.
func (l *FakeLedger) Files() []LedgerFile {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerFile, 0, len(l.files))
	for _, f := range l.files {
		out = append(out, *f)
	}
	return out
}

// Registrations counts RegisterFile calls, including skipped and failed ones.
func (l *FakeLedger) Registrations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registrations
}

// Updates returns every UpdateJob call received.
func (l *FakeLedger) Updates() []ledger.JobUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.JobUpdate(nil), l.updates...)
}
