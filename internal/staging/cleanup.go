// Package staging sweeps temporary files that interrupted assembly runs leave
// under the artifact tree: video2 staging directories, concat manifests and
// partial outputs.
package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"semefo/internal/logging"
	"semefo/internal/media"
)

const partialPrefix = ".partial-"

// CleanStaleResult contains the outcome of a stale leftover cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Leftover describes one temporary artifact found under the output tree.
type Leftover struct {
	Path    string
	Kind    string
	ModTime time.Time
	Size    int64
}

// CleanStale removes leftovers older than maxAge under the layout's output
// tree. Younger leftovers may belong to a run in progress and are kept.
func CleanStale(ctx context.Context, layout media.Layout, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	leftovers, err := ListLeftovers(ctx, layout)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: layout.OutputSessionsRoot(), Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, left := range leftovers {
		if ctx.Err() != nil {
			break
		}
		if !left.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(left.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: left.Path, Error: err})
			logger.Warn("failed to remove stale leftover",
				logging.String("path", left.Path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check storage_root permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, left.Path)
		logger.Info("removed stale leftover",
			logging.String("path", left.Path),
			logging.String("leftover", left.Kind),
			logging.Duration("age", time.Since(left.ModTime)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

// ListLeftovers walks the output tree and reports every temporary artifact.
func ListLeftovers(ctx context.Context, layout media.Layout) ([]Leftover, error) {
	root := layout.OutputSessionsRoot()
	manifests := manifestNames()
	var leftovers []Leftover

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		kind := ""
		switch {
		case entry.IsDir() && name == filepath.Base(layout.Video2StagingDir(media.Session{Expediente: "x", ID: 1})):
			kind = "video2_staging"
		case !entry.IsDir() && strings.HasPrefix(name, partialPrefix):
			kind = "partial_output"
		case !entry.IsDir():
			if _, ok := manifests[name]; ok {
				kind = "manifest"
			}
		}
		if kind == "" {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		size := info.Size()
		if entry.IsDir() {
			size, _ = dirSize(path)
		}
		leftovers = append(leftovers, Leftover{Path: path, Kind: kind, ModTime: info.ModTime(), Size: size})
		if entry.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
	return leftovers, err
}

func manifestNames() map[string]struct{} {
	names := make(map[string]struct{})
	for _, kind := range media.Kinds() {
		if name := kind.ManifestName(); name != "" {
			names[name] = struct{}{}
		}
	}
	return names
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			if info, infoErr := entry.Info(); infoErr == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}
