// Package keylock serializes pipeline runs per (session, kind) across
// processes with advisory file locks.
package keylock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"semefo/internal/media"
	"semefo/internal/services"
)

// Locker hands out non-blocking per-key locks under a directory.
type Locker struct {
	dir string
}

// New returns a Locker rooted at dir.
func New(dir string) *Locker {
	return &Locker{dir: dir}
}

// Path returns the lock file for the key.
func (l *Locker) Path(session media.Session, kind media.Kind) string {
	name := fmt.Sprintf("%s_%s_%s.lock", session.Expediente, strconv.FormatInt(session.ID, 10), kind)
	return filepath.Join(l.dir, name)
}

// TryAcquire takes the key's lock without waiting. A key held elsewhere
// yields services.ErrBusy. The returned func releases the lock.
func (l *Locker) TryAcquire(session media.Session, kind media.Kind) (func(), error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "locking", "mkdir", l.dir, err)
	}
	path := l.Path(session, kind)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "locking", "flock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrBusy, "locking", "flock", fmt.Sprintf("%s %s is already being assembled", session, kind), nil)
	}
	return func() { _ = lock.Unlock() }, nil
}
