// Package checkpoint manages the last-updated marker and the append-only
// update run log.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DateLayout is the date format stored in the marker file and passed to the
// catalog's since parameter.
const DateLayout = "01/02/06"

// File stores the date of the last successful update.
type File struct {
	path string
}

// NewFile returns a File backed by the marker at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the marker file location.
func (f *File) Path() string {
	return f.path
}

// Read returns the stored date string. The marker must exist: on first
// deployment it is seeded with the date to start ingesting from.
func (f *File) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("checkpoint %s does not exist; seed it with the date to start from (%s, e.g. 06/15/26): %w", f.path, DateLayout, err)
		}
		return "", fmt.Errorf("reading checkpoint: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write replaces the marker atomically: the date is written to a temp file
// in the same directory and renamed over the marker, so a crash mid-write
// never leaves a truncated checkpoint.
func (f *File) Write(date string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".last-updated-*")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	if _, err := tmp.WriteString(date); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	// CreateTemp opens the file 0600; the marker must stay world-readable.
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("setting checkpoint permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}

// UpdateLog is the append-only human-readable record of update runs.
type UpdateLog struct {
	path string
}

// NewUpdateLog returns an UpdateLog backed by the file at path.
func NewUpdateLog(path string) *UpdateLog {
	return &UpdateLog{path: path}
}

// Append writes one line for a completed run: the run date, the number of
// images added, and their filenames.
func (l *UpdateLog) Append(date string, filenames []string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating update log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening update log: %w", err)
	}

	line := fmt.Sprintf("%s: Added %d images (%s)\n", date, len(filenames), strings.Join(filenames, " "))
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("appending to update log: %w", err)
	}
	return f.Close()
}
