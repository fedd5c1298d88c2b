package assembly

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Manifest is a written ffmpeg concat list.
type Manifest struct {
	Path    string
	Entries []string
}

// WriteManifest writes one `file '<path>'` line per input, in order. Entries
// are absolute so the list works regardless of ffmpeg's working directory.
func WriteManifest(path string, inputs []string) (Manifest, error) {
	if len(inputs) == 0 {
		return Manifest{}, errors.New("manifest: no inputs")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Manifest{}, fmt.Errorf("manifest dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("create manifest: %w", err)
	}
	defer file.Close()

	entries := make([]string, 0, len(inputs))
	writer := bufio.NewWriter(file)
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return Manifest{}, fmt.Errorf("manifest entry %s: %w", input, err)
		}
		if _, err := fmt.Fprintf(writer, "file '%s'\n", quoteEntry(abs)); err != nil {
			return Manifest{}, fmt.Errorf("write manifest: %w", err)
		}
		entries = append(entries, abs)
	}
	if err := writer.Flush(); err != nil {
		return Manifest{}, fmt.Errorf("flush manifest: %w", err)
	}
	if err := file.Close(); err != nil {
		return Manifest{}, fmt.Errorf("close manifest: %w", err)
	}
	return Manifest{Path: path, Entries: entries}, nil
}

// Remove deletes the manifest file. Missing files are not an error.
func (m Manifest) Remove() error {
	if m.Path == "" {
		return nil
	}
	if err := os.Remove(m.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// quoteEntry escapes single quotes the way the concat demuxer expects.
func quoteEntry(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// DeleteFragments removes exactly the listed files and reports which ones were
// removed. Files that are already gone are skipped. Nothing else in their
// directories is touched.
func DeleteFragments(paths []string) ([]string, error) {
	removed := make([]string, 0, len(paths))
	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
