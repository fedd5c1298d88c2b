package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"semefo/internal/assembly"
	"semefo/internal/dispatch"
	"semefo/internal/fileutil"
	"semefo/internal/fragments"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/services"
)

// runPrimary handles audio and video: fragments are concatenated in place
// through an absolute-path manifest.
func (o *Orchestrator) runPrimary(ctx context.Context, f *flow) {
	frags, ok := o.scan(ctx, f)
	if !ok || !o.checkDisk(ctx, f) || !f.startJob(ctx) {
		return
	}

	f.enter(StateAssembling)
	mode := assembly.ModeCopy
	if f.kind.IsVideo() {
		mode = assembly.ModeEncode
	}
	result, err := o.deps.Engine.Assemble(ctx, assembly.Request{
		Mode:         mode,
		Inputs:       fragments.Paths(frags),
		ManifestPath: o.deps.Layout.ManifestPath(f.session, f.kind),
		Output:       o.deps.Layout.OutputPath(f.session, f.kind),
		MinBytes:     o.minBytes(f.kind),
		Timeout:      o.timeout(f.kind),
	})
	if err != nil {
		f.fail(ctx, err, "")
		return
	}
	if !o.verify(ctx, f, result.Artifact) {
		return
	}
	f.out.Removed = o.deleteSources(f, result.Manifest.Entries)

	f.report(ctx)
	if f.kind == media.KindAudio {
		o.dispatch(ctx, f)
	}
	f.enter(StateDone)
}

// runVideo2 copies fragments into a staging directory, merges them, then
// extracts audio2 from the result.
func (o *Orchestrator) runVideo2(ctx context.Context, f *flow) {
	frags, err := o.findFragments(ctx, f)
	if err != nil {
		if !o.resumeVideo2(ctx, f, err) {
			f.fail(ctx, err, scanMessage(f.kind, err))
		}
		return
	}
	if !o.checkDisk(ctx, f) || !f.startJob(ctx) {
		return
	}

	staging := o.deps.Layout.Video2StagingDir(f.session)
	defer o.removeStaging(f, staging)

	f.enter(StateAssembling)
	staged, origin, err := o.stage(frags, staging)
	if err != nil {
		f.fail(ctx, err, "")
		return
	}
	result, err := o.deps.Engine.Assemble(ctx, assembly.Request{
		Mode:         assembly.ModeEncode,
		Inputs:       staged,
		ManifestPath: o.deps.Layout.ManifestPath(f.session, media.KindVideo2),
		Output:       o.deps.Layout.OutputPath(f.session, media.KindVideo2),
		MinBytes:     o.minBytes(media.KindVideo2),
		Timeout:      o.timeout(media.KindVideo2),
	})
	if err != nil {
		f.fail(ctx, err, "")
		return
	}
	if !o.verify(ctx, f, result.Artifact) {
		return
	}
	sources := make([]string, 0, len(result.Manifest.Entries))
	for _, entry := range result.Manifest.Entries {
		if src, ok := origin[entry]; ok {
			sources = append(sources, src)
		}
	}
	f.out.Removed = o.deleteSources(f, sources)

	f.report(ctx)
	f.enter(StateDone)
	o.deriveAudio2(ctx, f)
}

// resumeVideo2 handles a re-dispatched video2 whose fragments were already
// merged and removed: the verified video2.webm stays completed and only the
// audio2 extraction runs again.
func (o *Orchestrator) resumeVideo2(ctx context.Context, f *flow, scanErr error) bool {
	if !errors.Is(scanErr, services.ErrMissingSource) && !errors.Is(scanErr, services.ErrNoFragments) {
		return false
	}
	artifact, err := assembly.Verify(o.deps.Layout.OutputPath(f.session, media.KindVideo2), o.minBytes(media.KindVideo2))
	if err != nil {
		return false
	}
	f.logger.Info("video2 already merged, re-extracting audio2",
		logging.String("artifact", artifact.Path),
		logging.Int64("bytes", artifact.Size),
	)
	f.out.Artifact = artifact
	f.out.Reused = true
	f.enter(StateVerified)
	f.enter(StateDone)
	o.deriveAudio2(ctx, f)
	return true
}

// deriveAudio2 runs the audio2 sub-flow under its own key lock so a queued
// audio2 task cannot write the same output concurrently.
func (o *Orchestrator) deriveAudio2(ctx context.Context, f *flow) {
	derived := Outcome{Kind: media.KindAudio2}
	f.out.Derived = &derived
	if o.deps.Locker != nil {
		release, err := o.deps.Locker.TryAcquire(f.session, media.KindAudio2)
		if err != nil {
			derived.State = StateFailed
			derived.Err = err
			f.logger.Info("audio2 extraction already running elsewhere", logging.Error(err))
			return
		}
		defer release()
	}
	o.runAudio2(ctx, o.newFlow(ctx, f.session, media.KindAudio2, &derived), f.out.Artifact.Path)
}

// runExtraction serves a queued audio2 task from the video2 merge of an
// earlier run.
func (o *Orchestrator) runExtraction(ctx context.Context, f *flow) {
	f.enter(StateScanning)
	video := o.deps.Layout.OutputPath(f.session, media.KindVideo2)
	if _, err := assembly.Verify(video, o.minBytes(media.KindVideo2)); err != nil {
		f.fail(ctx, services.Wrap(services.ErrMissingSource, "scanning", "locate",
			fmt.Sprintf("no verified %s to extract from", media.KindVideo2.Filename()), err),
			fmt.Sprintf("No hay %s para extraer %s", media.KindVideo2.Filename(), f.kind))
		return
	}
	if !o.checkDisk(ctx, f) {
		return
	}
	o.runAudio2(ctx, f, video)
}

func (o *Orchestrator) runAudio2(ctx context.Context, f *flow, video string) {
	if !f.startJob(ctx) {
		return
	}
	f.enter(StateAssembling)
	artifact, err := o.deps.Engine.ExtractAudio(ctx, video,
		o.deps.Layout.OutputPath(f.session, media.KindAudio2),
		o.minBytes(media.KindAudio2),
		o.timeout(media.KindAudio2),
	)
	if err != nil {
		f.fail(ctx, err, "")
		return
	}
	if !o.verify(ctx, f, artifact) {
		return
	}
	f.report(ctx)
	f.enter(StateDone)
}

func (o *Orchestrator) scan(ctx context.Context, f *flow) ([]fragments.Fragment, bool) {
	frags, err := o.findFragments(ctx, f)
	if err != nil {
		f.fail(ctx, err, scanMessage(f.kind, err))
		return nil, false
	}
	return frags, true
}

// findFragments returns the settled fragments for the flow's kind. An empty
// directory is reported as ErrNoFragments.
func (o *Orchestrator) findFragments(ctx context.Context, f *flow) ([]fragments.Fragment, error) {
	f.enter(StateScanning)
	dir := o.deps.Layout.SourceDir(f.session, f.kind)
	frags, err := o.deps.Scanner.Scan(ctx, dir, f.kind.Extensions())
	if err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		return nil, services.Wrap(services.ErrNoFragments, "scanning", "list", fmt.Sprintf("no fragments found in %s", dir), nil)
	}
	f.logger.Info("fragments ready",
		logging.Int("fragments", len(frags)),
		logging.Int64("bytes", fragments.TotalSize(frags)),
	)
	return frags, nil
}

func (o *Orchestrator) checkDisk(ctx context.Context, f *flow) bool {
	target := o.deps.Layout.OutputDir(f.session, f.kind)
	report, err := o.deps.Guard.Check(target)
	if err != nil {
		f.fail(ctx, services.Wrap(services.ErrTransient, "guard", "statfs", target, err), "")
		return false
	}
	if !report.Sufficient {
		f.fail(ctx, services.Wrap(services.ErrInsufficientDisk, "guard", "free space",
			fmt.Sprintf("%d bytes free on %s, %d required", report.FreeBytes, report.Path, report.RequiredBytes), nil), "")
		return false
	}
	f.enter(StateGuardChecked)
	return true
}

func (o *Orchestrator) verify(ctx context.Context, f *flow, produced assembly.Artifact) bool {
	artifact, err := assembly.Verify(produced.Path, o.minBytes(f.kind))
	if err != nil {
		f.fail(ctx, err, "")
		return false
	}
	artifact.Duration = produced.Duration
	f.out.Artifact = artifact
	f.enter(StateVerified)
	return true
}

// stage copies each fragment into dir and returns the staged paths plus a
// staged-to-source map.
func (o *Orchestrator) stage(frags []fragments.Fragment, dir string) ([]string, map[string]string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "staging", "reset", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "staging", "mkdir", dir, err)
	}
	staged := make([]string, 0, len(frags))
	origin := make(map[string]string, len(frags))
	for _, frag := range frags {
		dst := filepath.Join(dir, frag.Name)
		if _, err := fileutil.CopyVerified(frag.Path, dst); err != nil {
			return nil, nil, services.Wrap(services.ErrTransient, "staging", "copy", frag.Name, err)
		}
		abs, err := filepath.Abs(dst)
		if err != nil {
			return nil, nil, services.Wrap(services.ErrTransient, "staging", "abs", dst, err)
		}
		staged = append(staged, abs)
		origin[abs] = frag.Path
	}
	return staged, origin, nil
}

func (o *Orchestrator) removeStaging(f *flow, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(f.logger, "staging cleanup failed", "staging_cleanup_failed",
			logging.String("dir", dir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "copied fragments remain until the stale-temp sweep"),
		)
	}
}

func (o *Orchestrator) deleteSources(f *flow, paths []string) []string {
	removed, err := assembly.DeleteFragments(paths)
	if err != nil {
		logging.WarnWithContext(f.logger, "fragment cleanup incomplete", "fragment_cleanup_failed",
			logging.Error(err),
			logging.Int("removed", len(removed)),
			logging.String(logging.FieldImpact, "merged fragments remain in the source directory"),
		)
	}
	return removed
}

func (o *Orchestrator) dispatch(ctx context.Context, f *flow) {
	req := dispatch.TranscriptionRequest{
		Expediente: f.session.Expediente,
		SessionID:  f.session.ID,
		Filename:   o.settings.DispatchFilename,
		JobID:      int64(f.out.JobID),
	}
	if err := o.deps.Dispatcher.Publish(ctx, req); err != nil {
		logging.WarnWithContext(f.logger, "transcription dispatch failed", "dispatch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "audio is complete but transcription was not requested"),
			logging.String(logging.FieldErrorHint, "re-run the audio task or publish manually"),
		)
		return
	}
	f.out.Dispatched = true
}
