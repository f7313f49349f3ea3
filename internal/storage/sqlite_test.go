package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPrediction(filename string) ImagePrediction {
	return ImagePrediction{
		Filename:  filename,
		Stage:     []float32{0.1, 0.7, 0.2},
		Locations: []float32{0.9, 0.05, 0.05, 0.0},
		AddedAt:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestAppendAndGet(t *testing.T) {
	s := openTestStore(t)

	want := testPrediction("embryo-001.jpg")
	if err := s.AppendPredictions([]ImagePrediction{want}); err != nil {
		t.Fatalf("AppendPredictions: %v", err)
	}

	got, err := s.GetPrediction("embryo-001.jpg")
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got.Filename != want.Filename {
		t.Errorf("Filename = %q, want %q", got.Filename, want.Filename)
	}
	if len(got.Stage) != 3 || got.Stage[1] != 0.7 {
		t.Errorf("Stage = %v, want %v", got.Stage, want.Stage)
	}
	if len(got.Locations) != 4 || got.Locations[0] != 0.9 {
		t.Errorf("Locations = %v, want %v", got.Locations, want.Locations)
	}
	if !got.AddedAt.Equal(want.AddedAt) {
		t.Errorf("AddedAt = %v, want %v", got.AddedAt, want.AddedAt)
	}
}

func TestGetPredictionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetPrediction("missing.jpg")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestDuplicateFilenameRejected verifies the uniqueness invariant: inserting
// an already-stored filename fails and leaves the batch unapplied.
func TestDuplicateFilenameRejected(t *testing.T) {
	s := openTestStore(t)

	if err := s.AppendPredictions([]ImagePrediction{testPrediction("a.jpg")}); err != nil {
		t.Fatalf("first append: %v", err)
	}

	err := s.AppendPredictions([]ImagePrediction{
		testPrediction("b.jpg"),
		testPrediction("a.jpg"),
	})
	if err == nil {
		t.Fatal("expected error appending duplicate filename, got nil")
	}

	// The failed batch must not have partially landed.
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d after failed batch, want 1", n)
	}
}

func TestAppendRejectsMissingVector(t *testing.T) {
	s := openTestStore(t)

	p := testPrediction("a.jpg")
	p.Locations = nil
	if err := s.AppendPredictions([]ImagePrediction{p}); err == nil {
		t.Fatal("expected error for missing locations vector, got nil")
	}
}

func TestFilenames(t *testing.T) {
	s := openTestStore(t)

	if err := s.AppendPredictions([]ImagePrediction{
		testPrediction("a.jpg"),
		testPrediction("b.jpg"),
	}); err != nil {
		t.Fatalf("AppendPredictions: %v", err)
	}

	names, err := s.Filenames()
	if err != nil {
		t.Fatalf("Filenames: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("len(names) = %d, want 2", len(names))
	}
	for _, want := range []string{"a.jpg", "b.jpg"} {
		if _, ok := names[want]; !ok {
			t.Errorf("names missing %q", want)
		}
	}
}

func TestVerify(t *testing.T) {
	s := openTestStore(t)

	if err := s.AppendPredictions([]ImagePrediction{
		testPrediction("a.jpg"),
		testPrediction("b.jpg"),
	}); err != nil {
		t.Fatalf("AppendPredictions: %v", err)
	}

	n, err := s.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 2 {
		t.Errorf("Verify scanned %d records, want 2", n)
	}
}

// TestVerifyDetectsCorruptVector plants an undecodable vector directly and
// expects Verify to report it.
func TestVerifyDetectsCorruptVector(t *testing.T) {
	s := openTestStore(t)

	_, err := s.DB().Exec(`
		INSERT INTO image_predictions (filename, stage_preds, locations_preds, added_at)
		VALUES ('bad.jpg', 'not-json', '[0.5]', '2026-08-30T12:00:00Z')`)
	if err != nil {
		t.Fatalf("planting corrupt row: %v", err)
	}

	if _, err := s.Verify(); err == nil {
		t.Fatal("expected Verify to report corrupt vector, got nil")
	}
}
