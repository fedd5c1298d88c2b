package fragments

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"semefo/internal/logging"
	"semefo/internal/services"
)

// Fragment is one recorded segment. Order is its position in capture
// sequence, which the recorder encodes in the lexicographic filename order.
type Fragment struct {
	Path  string
	Name  string
	Size  int64
	Order int
}

// Options controls stability polling. The first poll waits PollInterval;
// each later one doubles the wait, capped at MaxPollInterval when it is set.
//
// A fragment is settled once its size holds between two consecutive polls.
// Fragments under MinStableBytes must hold across one more poll, since a
// recorder that has just opened a file often pauses after the header. Empty
// files that settle are left out of the result.
type Options struct {
	MinStableBytes  int64
	MaxAttempts     int
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// Scanner lists and stabilizes fragments.
type Scanner struct {
	opts   Options
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewScanner constructs a scanner. MaxAttempts below one is treated as one.
func NewScanner(opts Options, logger *slog.Logger) *Scanner {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Scanner{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "fragments"),
		sleep:  sleepContext,
	}
}

// Scan returns the fragments in dir whose extension is in exts, ordered by
// name, once all of them are settled. A missing directory yields an
// ErrMissingSource error and an empty directory an empty result. Fragments
// still changing when the attempts run out yield an ErrUnstable error and
// no fragments at all.
func (s *Scanner) Scan(ctx context.Context, dir string, exts []string) ([]Fragment, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrMissingSource, "scanning", "stat", fmt.Sprintf("source directory %s does not exist", dir), nil)
		}
		return nil, services.Wrap(services.ErrMissingSource, "scanning", "stat", dir, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrMissingSource, "scanning", "stat", fmt.Sprintf("%s is not a directory", dir), nil)
	}

	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	logger := logging.WithContext(ctx, s.logger)
	previous, err := list(dir, allowed)
	if err != nil {
		return nil, err
	}
	if len(previous) == 0 {
		return nil, nil
	}

	held := make(map[string]int, len(previous))
	var pending []string
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if err := s.sleep(ctx, s.delay(attempt)); err != nil {
			return nil, err
		}
		current, err := list(dir, allowed)
		if err != nil {
			return nil, err
		}
		if len(current) == 0 {
			return nil, nil
		}
		pending = s.unsettled(held, previous, current)
		if len(pending) == 0 {
			return s.settled(logger, dir, current), nil
		}
		logger.Debug("fragments still being written",
			logging.Int("attempt", attempt),
			logging.Int("pending", len(pending)),
			logging.Int("discovered", len(current)),
		)
		previous = current
	}

	return nil, services.Wrap(services.ErrUnstable, "scanning", "poll",
		fmt.Sprintf("%d fragment(s) in %s still changing after %d polls (first: %s)", len(pending), dir, s.opts.MaxAttempts, firstOf(pending)), nil)
}

// delay returns the wait before poll attempt (1-based).
func (s *Scanner) delay(attempt int) time.Duration {
	d := s.opts.PollInterval
	for i := 1; i < attempt && d > 0; i++ {
		d *= 2
		if s.opts.MaxPollInterval > 0 && d >= s.opts.MaxPollInterval {
			return s.opts.MaxPollInterval
		}
	}
	return d
}

// unsettled updates held, the number of consecutive polls each fragment kept
// its size, and returns the names that have not held long enough.
func (s *Scanner) unsettled(held map[string]int, previous, current map[string]int64) []string {
	var pending []string
	for name := range held {
		if _, ok := current[name]; !ok {
			delete(held, name)
		}
	}
	for name, size := range current {
		if before, seen := previous[name]; seen && before == size {
			held[name]++
		} else {
			held[name] = 0
		}
		need := 1
		if size < s.opts.MinStableBytes || size == 0 {
			need = 2
		}
		if held[name] < need {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending
}

func (s *Scanner) settled(logger *slog.Logger, dir string, sizes map[string]int64) []Fragment {
	for name, size := range sizes {
		if size == 0 {
			logger.Info("skipping empty fragment", logging.String("fragment", filepath.Join(dir, name)))
			delete(sizes, name)
		}
	}
	return ordered(dir, sizes)
}

func firstOf(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return names[0]
}

func list(dir string, allowed map[string]struct{}) (map[string]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrMissingSource, "scanning", "read dir", dir, err)
	}
	sizes := make(map[string]int64, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat fragment %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		sizes[name] = info.Size()
	}
	return sizes, nil
}

func ordered(dir string, sizes map[string]int64) []Fragment {
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Fragment, 0, len(names))
	for i, name := range names {
		out = append(out, Fragment{
			Path:  filepath.Join(dir, name),
			Name:  name,
			Size:  sizes[name],
			Order: i,
		})
	}
	return out
}

// Paths returns the fragment paths in order.
func Paths(frags []Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Path
	}
	return out
}

// TotalSize sums fragment sizes.
func TotalSize(frags []Fragment) int64 {
	var total int64
	for _, f := range frags {
		total += f.Size
	}
	return total
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
