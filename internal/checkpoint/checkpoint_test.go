package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadMissingFile(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "last-updated"))

	_, err := f.Read()
	if err == nil {
		t.Fatal("expected error for missing checkpoint, got nil")
	}
	if !strings.Contains(err.Error(), "seed it") {
		t.Errorf("error %q missing the seeding hint", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "last-updated"))

	if err := f.Write("06/15/26"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "06/15/26" {
		t.Errorf("Read = %q, want %q", got, "06/15/26")
	}
}

// TestWriteOverwrites verifies the marker holds exactly one value and that
// writes leave no temp files behind.
func TestWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(filepath.Join(dir, "last-updated"))

	if err := f.Write("06/15/26"); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := f.Write("08/31/26"); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "08/31/26" {
		t.Errorf("Read = %q, want %q", got, "08/31/26")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the marker file in %s, found %d entries", dir, len(entries))
	}
}

// TestWriteMarkerIsWorldReadable guards against the temp-file permissions
// leaking through the rename: the marker is read by other tooling and cron
// users, so it must end up 0644 rather than CreateTemp's 0600.
func TestWriteMarkerIsWorldReadable(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "last-updated"))

	if err := f.Write("06/15/26"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(f.Path())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("marker mode = %o, want 644", perm)
	}
}

func TestReadTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-updated")
	if err := os.WriteFile(path, []byte("06/15/26\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewFile(path).Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "06/15/26" {
		t.Errorf("Read = %q, want %q", got, "06/15/26")
	}
}

func TestUpdateLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data-updates-log")
	l := NewUpdateLog(path)

	if err := l.Append("06/15/26", []string{"a.jpg", "b.jpg"}); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := l.Append("06/16/26", []string{"c.jpg"}); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	want := "06/15/26: Added 2 images (a.jpg b.jpg)\n06/16/26: Added 1 images (c.jpg)\n"
	if string(data) != want {
		t.Errorf("log contents = %q, want %q", string(data), want)
	}
}
