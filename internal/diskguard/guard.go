// Package diskguard checks free space on the artifact filesystem before the
// pipeline starts an assembly.
package diskguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Report is the outcome of a single check.
type Report struct {
	Path          string
	FreeBytes     uint64
	RequiredBytes uint64
	Sufficient    bool
}

// FreeSpaceFunc returns the bytes available to unprivileged writers at path.
type FreeSpaceFunc func(path string) (uint64, error)

// Guard compares free space against a fixed minimum.
type Guard struct {
	minFree   uint64
	freeSpace FreeSpaceFunc
}

// Option customizes a Guard.
type Option func(*Guard)

// WithFreeSpaceFunc replaces the statfs probe, mainly for tests.
func WithFreeSpaceFunc(fn FreeSpaceFunc) Option {
	return func(g *Guard) {
		if fn != nil {
			g.freeSpace = fn
		}
	}
}

// New returns a guard requiring minFree bytes.
func New(minFree uint64, opts ...Option) *Guard {
	g := &Guard{minFree: minFree, freeSpace: FreeBytes}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check measures the filesystem holding path. A path that does not exist yet
// is measured at its nearest existing ancestor. The check has no side effects.
func (g *Guard) Check(path string) (Report, error) {
	target, err := existingAncestor(path)
	if err != nil {
		return Report{Path: path, RequiredBytes: g.minFree}, err
	}
	free, err := g.freeSpace(target)
	if err != nil {
		return Report{Path: target, RequiredBytes: g.minFree}, fmt.Errorf("free space for %s: %w", target, err)
	}
	return Report{
		Path:          target,
		FreeBytes:     free,
		RequiredBytes: g.minFree,
		Sufficient:    free >= g.minFree,
	}, nil
}

// FreeBytes reports available blocks times block size via statfs(2).
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

func existingAncestor(path string) (string, error) {
	current := filepath.Clean(path)
	for {
		_, err := os.Stat(current)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		current = parent
	}
}
