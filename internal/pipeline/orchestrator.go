package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"semefo/internal/assembly"
	"semefo/internal/config"
	"semefo/internal/diskguard"
	"semefo/internal/dispatch"
	"semefo/internal/fragments"
	"semefo/internal/ledger"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/services"
)

// Scanner discovers stable fragments.
type Scanner interface {
	Scan(ctx context.Context, dir string, exts []string) ([]fragments.Fragment, error)
}

// DiskGuard reports free space on the artifact filesystem.
type DiskGuard interface {
	Check(path string) (diskguard.Report, error)
}

// Assembler merges fragments and extracts audio tracks.
type Assembler interface {
	Assemble(ctx context.Context, req assembly.Request) (assembly.Result, error)
	ExtractAudio(ctx context.Context, video, output string, minBytes int64, timeout time.Duration) (assembly.Artifact, error)
}

// Ledger is the subset of the ledger client the pipeline reports to.
type Ledger interface {
	CreateOrResetJob(ctx context.Context, session media.Session, kind media.Kind, filename string) (ledger.JobID, error)
	UpdateJob(ctx context.Context, update ledger.JobUpdate) error
	RegisterFile(ctx context.Context, session media.Session, kind media.Kind, originalPath string) (bool, error)
	FinalizeFile(ctx context.Context, session media.Session, kind media.Kind, convertedPath string) error
}

// Locker excludes concurrent runs of the same key.
type Locker interface {
	TryAcquire(session media.Session, kind media.Kind) (func(), error)
}

// Settings holds per-kind thresholds and timeouts.
type Settings struct {
	MinBytes         map[media.Kind]int64
	Timeouts         map[media.Kind]time.Duration
	DispatchFilename string
}

// SettingsFromConfig maps the assembly and dispatch sections into Settings.
// The audio2 timeout is the extraction budget.
func SettingsFromConfig(cfg *config.Config) Settings {
	a := cfg.Assembly
	return Settings{
		MinBytes: map[media.Kind]int64{
			media.KindAudio:  a.AudioMinBytes,
			media.KindVideo:  a.VideoMinBytes,
			media.KindVideo2: a.Video2MinBytes,
			media.KindAudio2: a.Audio2MinBytes,
		},
		Timeouts: map[media.Kind]time.Duration{
			media.KindAudio:  time.Duration(a.AudioTimeoutSeconds) * time.Second,
			media.KindVideo:  time.Duration(a.VideoTimeoutSeconds) * time.Second,
			media.KindVideo2: time.Duration(a.VideoTimeoutSeconds) * time.Second,
			media.KindAudio2: time.Duration(a.ExtractTimeoutSeconds) * time.Second,
		},
		DispatchFilename: cfg.Dispatch.Filename,
	}
}

// Deps wires the orchestrator's collaborators. Dispatcher and Locker are optional.
type Deps struct {
	Layout     media.Layout
	Scanner    Scanner
	Guard      DiskGuard
	Engine     Assembler
	Ledger     Ledger
	Dispatcher dispatch.Dispatcher
	Locker     Locker
	Logger     *slog.Logger
}

// Orchestrator drives pipeline runs. It holds no per-run state and is safe
// for concurrent use.
type Orchestrator struct {
	deps     Deps
	settings Settings
	logger   *slog.Logger
}

// New constructs an orchestrator.
func New(deps Deps, settings Settings) *Orchestrator {
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatch.Noop{}
	}
	if settings.DispatchFilename == "" {
		settings.DispatchFilename = media.KindAudio.Filename()
	}
	return &Orchestrator{
		deps:     deps,
		settings: settings,
		logger:   logging.NewComponentLogger(deps.Logger, "pipeline"),
	}
}

// Run executes the pipeline for req and reports the outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	out := Outcome{Kind: req.Kind}
	if err := req.Session.Validate(); err != nil {
		out.State = StateFailed
		out.Err = services.Wrap(services.ErrValidation, "pipeline", "request", "invalid session", err)
		return out
	}
	if !req.Kind.Runnable() {
		out.State = StateFailed
		out.Err = services.Wrap(services.ErrValidation, "pipeline", "request", fmt.Sprintf("kind %q cannot be run", req.Kind), nil)
		return out
	}
	if o.deps.Locker != nil {
		release, err := o.deps.Locker.TryAcquire(req.Session, req.Kind)
		if err != nil {
			out.State = StateFailed
			out.Err = err
			return out
		}
		defer release()
	}

	ctx = services.WithKind(ctx, string(req.Kind))
	started := time.Now()
	f := o.newFlow(ctx, req.Session, req.Kind, &out)
	f.logger.Info("pipeline started", logging.String(logging.FieldEventType, "pipeline_start"))

	switch req.Kind {
	case media.KindVideo2:
		o.runVideo2(ctx, f)
	case media.KindAudio2:
		o.runExtraction(ctx, f)
	default:
		o.runPrimary(ctx, f)
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "pipeline_finished"),
		logging.String("state", string(out.State)),
		logging.Duration("elapsed", time.Since(started)),
	}
	if out.Succeeded() {
		attrs = append(attrs, logging.String("artifact", out.Artifact.Path), logging.Int64("bytes", out.Artifact.Size))
		f.logger.Info("pipeline finished", logging.Args(attrs...)...)
	} else {
		f.logger.Info("pipeline finished with failure", logging.Args(append(attrs, logging.String(logging.FieldErrorKind, out.ErrorKind()))...)...)
	}
	return out
}

func (o *Orchestrator) minBytes(kind media.Kind) int64 {
	if v, ok := o.settings.MinBytes[kind]; ok && v > 0 {
		return v
	}
	return 1
}

func (o *Orchestrator) timeout(kind media.Kind) time.Duration {
	return o.settings.Timeouts[kind]
}
