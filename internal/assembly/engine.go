package assembly

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"semefo/internal/logging"
	"semefo/internal/media/ffprobe"
	"semefo/internal/services"
)

const stderrTailBytes = 4096

// Artifact is a verified assembly output.
type Artifact struct {
	Path     string
	Size     int64
	Duration float64
}

// Mode selects how fragments are merged.
type Mode int

const (
	// ModeCopy concatenates same-codec fragments without re-encoding.
	ModeCopy Mode = iota
	// ModeEncode concatenates and re-encodes to WebM with the engine profile.
	ModeEncode
)

// stream is the codec type a merge in this mode must produce. Copy mode
// serves the audio recordings.
func (m Mode) stream() string {
	if m == ModeEncode {
		return "video"
	}
	return "audio"
}

// Request describes one merge.
type Request struct {
	Mode         Mode
	Inputs       []string
	ManifestPath string
	Output       string
	MinBytes     int64
	Timeout      time.Duration
}

// Result carries the verified artifact and the manifest entries it was built from.
type Result struct {
	Artifact Artifact
	Manifest Manifest
}

// CommandRunner executes an external command. Implementations must honour ctx.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Options configures an Engine.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	Profile       Profile
	ProbeOutput   bool
}

// Engine runs ffmpeg merges and verifies their output.
type Engine struct {
	opts   Options
	logger *slog.Logger
	run    CommandRunner
}

// NewEngine constructs an engine.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if strings.TrimSpace(opts.FFmpegBinary) == "" {
		opts.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(opts.FFprobeBinary) == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	return &Engine{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "assembly"),
		run:    runCommand,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (e *Engine) WithCommandRunner(r CommandRunner) {
	if e != nil && r != nil {
		e.run = r
	}
}

// Profile returns the configured encoding profile.
func (e *Engine) Profile() Profile {
	return e.opts.Profile
}

// Assemble writes the manifest, runs ffmpeg into a partial file, verifies it
// against req.MinBytes and moves it to req.Output. The manifest is always
// removed before returning.
func (e *Engine) Assemble(ctx context.Context, req Request) (Result, error) {
	if len(req.Inputs) == 0 {
		return Result{}, services.Wrap(services.ErrNoFragments, "assembling", "manifest", "no inputs to assemble", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrAssemblyTool, "assembling", "prepare output", req.Output, err)
	}
	manifest, err := WriteManifest(req.ManifestPath, req.Inputs)
	if err != nil {
		return Result{}, services.Wrap(services.ErrAssemblyTool, "assembling", "manifest", req.ManifestPath, err)
	}
	defer func() {
		if err := manifest.Remove(); err != nil {
			logging.WarnWithContext(e.logger, "manifest cleanup failed", "manifest_cleanup_failed",
				logging.String("manifest", manifest.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale concat list left on disk"),
			)
		}
	}()

	partial := partialPath(req.Output)
	var args []string
	switch req.Mode {
	case ModeEncode:
		args = ConcatEncodeArgs(manifest.Path, partial, e.opts.Profile)
	default:
		args = ConcatCopyArgs(manifest.Path, partial)
	}

	logger := logging.WithContext(ctx, e.logger)
	logger.Info("assembly started",
		logging.String(logging.FieldEventType, "assembly_start"),
		logging.String("output", req.Output),
		logging.Int("fragments", len(manifest.Entries)),
		logging.String("profile", e.opts.Profile.Name),
		logging.Bool("encode", req.Mode == ModeEncode),
	)
	started := time.Now()
	artifact, err := e.runAndPromote(ctx, args, partial, req.Output, req.Mode.stream(), req.MinBytes, req.Timeout)
	if err != nil {
		return Result{Manifest: manifest}, err
	}
	logger.Info("assembly verified",
		logging.String(logging.FieldEventType, "assembly_verified"),
		logging.String("output", artifact.Path),
		logging.Int64("bytes", artifact.Size),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Result{Artifact: artifact, Manifest: manifest}, nil
}

// ExtractAudio pulls the audio track of video into output as AAC and verifies it.
func (e *Engine) ExtractAudio(ctx context.Context, video, output string, minBytes int64, timeout time.Duration) (Artifact, error) {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return Artifact{}, services.Wrap(services.ErrAssemblyTool, "extracting", "prepare output", output, err)
	}
	partial := partialPath(output)
	args := ExtractAudioArgs(video, partial, e.opts.Profile.Threads)
	return e.runAndPromote(ctx, args, partial, output, "audio", minBytes, timeout)
}

// runAndPromote runs ffmpeg into partial, verifies it and renames it to
// output. With probing on, the file must also carry a stream of type stream.
func (e *Engine) runAndPromote(ctx context.Context, args []string, partial, output, stream string, minBytes int64, timeout time.Duration) (Artifact, error) {
	defer removeQuietly(partial)

	if err := e.Run(ctx, args, timeout); err != nil {
		return Artifact{}, err
	}
	artifact, err := Verify(partial, minBytes)
	if err != nil {
		return Artifact{}, err
	}
	if e.opts.ProbeOutput {
		if artifact.Duration, err = e.probe(ctx, partial, stream); err != nil {
			return Artifact{}, err
		}
	}
	if err := os.Rename(partial, output); err != nil {
		return Artifact{}, services.Wrap(services.ErrAssemblyTool, "assembling", "promote output", output, err)
	}
	artifact.Path = output
	return artifact, nil
}

// Run executes ffmpeg with args under timeout. A deadline maps to ErrTimeout,
// any other failure to ErrAssemblyTool carrying the tail of stderr.
func (e *Engine) Run(ctx context.Context, args []string, timeout time.Duration) error {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	e.logger.Debug("executing ffmpeg", logging.String("binary", e.opts.FFmpegBinary), logging.String("args", strings.Join(args, " ")))

	err := e.run(runCtx, e.opts.FFmpegBinary, args...)
	if err == nil {
		return nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return services.Wrap(services.ErrTimeout, "assembling", "ffmpeg", fmt.Sprintf("ffmpeg exceeded %s", timeout), err)
	}
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTransient, "assembling", "ffmpeg", "interrupted", ctx.Err())
	}
	return services.Wrap(services.ErrAssemblyTool, "assembling", "ffmpeg", "ffmpeg failed", err)
}

func (e *Engine) probe(ctx context.Context, path, stream string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, e.opts.FFprobeBinary, path)
	if err != nil {
		return 0, services.Wrap(services.ErrVerification, "verifying", "ffprobe", path, err)
	}
	return checkStreams(result, path, stream)
}

// checkStreams requires at least one stream of the given codec type and
// returns the container duration.
func checkStreams(result ffprobe.Result, path, stream string) (float64, error) {
	if result.StreamCount(stream) == 0 {
		return 0, services.Wrap(services.ErrVerification, "verifying", "ffprobe",
			fmt.Sprintf("%s has no %s stream (%d streams total)", filepath.Base(path), stream, len(result.Streams)), nil)
	}
	return result.DurationSeconds(), nil
}

// Verify checks that path exists and is strictly larger than minBytes.
func Verify(path string, minBytes int64) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, services.Wrap(services.ErrVerification, "verifying", "stat", fmt.Sprintf("%s was not produced", filepath.Base(path)), nil)
		}
		return Artifact{}, services.Wrap(services.ErrVerification, "verifying", "stat", path, err)
	}
	if info.IsDir() {
		return Artifact{}, services.Wrap(services.ErrVerification, "verifying", "stat", fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() <= minBytes {
		return Artifact{}, services.Wrap(services.ErrVerification, "verifying", "size",
			fmt.Sprintf("%s is %d bytes, expected more than %d", filepath.Base(path), info.Size(), minBytes), nil)
	}
	return Artifact{Path: path, Size: info.Size()}, nil
}

// partialPath keeps the extension so ffmpeg's muxer selection is unaffected.
func partialPath(output string) string {
	return filepath.Join(filepath.Dir(output), ".partial-"+filepath.Base(output))
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	tail := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = tail
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(tail.String()); detail != "" {
			return fmt.Errorf("%w: %s", err, detail)
		}
		return err
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
