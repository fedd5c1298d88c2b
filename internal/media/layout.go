package media

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	recordedRoot = "archivos_grabados"
	outputRoot   = "archivos"
	video2Stage  = "video2_fragments"
)

// Session identifies one recording session of an investigation.
type Session struct {
	Expediente string `json:"numero_expediente"`
	ID         int64  `json:"id_sesion"`
}

// Validate rejects identifiers that cannot be used as a single path segment.
func (s Session) Validate() error {
	exp := strings.TrimSpace(s.Expediente)
	if exp == "" {
		return fmt.Errorf("expediente is required")
	}
	if exp != s.Expediente || exp == "." || exp == ".." || strings.ContainsAny(exp, `/\`) {
		return fmt.Errorf("expediente %q is not a valid path segment", s.Expediente)
	}
	if s.ID <= 0 {
		return fmt.Errorf("session id must be positive, got %d", s.ID)
	}
	return nil
}

func (s Session) String() string {
	return s.Expediente + "/" + strconv.FormatInt(s.ID, 10)
}

// Layout resolves session paths under a storage root.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) sessionDir(base string, s Session) string {
	return filepath.Join(l.Root, base, s.Expediente, strconv.FormatInt(s.ID, 10))
}

// SourceDir returns the directory holding recorded fragments for kind.
func (l Layout) SourceDir(s Session, kind Kind) string {
	return filepath.Join(l.sessionDir(recordedRoot, s), kindSpecs[kind].sourceDir)
}

// OutputDir returns the directory that receives the kind's artifact.
func (l Layout) OutputDir(s Session, kind Kind) string {
	return filepath.Join(l.sessionDir(outputRoot, s), kindSpecs[kind].outputDir)
}

// OutputPath returns the absolute artifact path for kind.
func (l Layout) OutputPath(s Session, kind Kind) string {
	return filepath.Join(l.OutputDir(s, kind), kind.Filename())
}

// ManifestPath returns where the concat manifest for kind is written.
func (l Layout) ManifestPath(s Session, kind Kind) string {
	if kind == KindVideo2 {
		return filepath.Join(l.Video2StagingDir(s), kind.ManifestName())
	}
	return filepath.Join(l.OutputDir(s, kind), kind.ManifestName())
}

// Video2StagingDir returns the temporary directory that holds copied video2
// fragments during a merge.
func (l Layout) Video2StagingDir(s Session) string {
	return filepath.Join(l.OutputDir(s, KindVideo), video2Stage)
}

// OutputSessionsRoot returns the root of all artifact directories.
func (l Layout) OutputSessionsRoot() string {
	return filepath.Join(l.Root, outputRoot)
}

// Relative converts an absolute path under the root into the slash-separated
// form stored in the ledger.
func (l Layout) Relative(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
