// Package update runs the incremental catalog update: fetch new image
// metadata, filter out known or missing images, classify the rest, and
// append the results to the prediction catalog.
package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avianatlas/embrysync/internal/catalog"
	"github.com/avianatlas/embrysync/internal/checkpoint"
	"github.com/avianatlas/embrysync/internal/inference"
	"github.com/avianatlas/embrysync/internal/storage"
)

// Catalog fetches image metadata created since a given date.
type Catalog interface {
	FetchSince(ctx context.Context, since string) ([]catalog.ImageRecord, error)
}

// Predictor computes both models' predictions for a set of image files.
type Predictor interface {
	Predict(ctx context.Context, imageDir string, filenames []string) (inference.Predictions, error)
}

// Store is the prediction catalog surface the updater needs.
type Store interface {
	Filenames() (map[string]struct{}, error)
	AppendPredictions(preds []storage.ImagePrediction) error
}

// Deps collects the updater's collaborators and settings.
type Deps struct {
	Catalog    Catalog
	Predictor  Predictor
	Store      Store
	Checkpoint *checkpoint.File
	RunLog     *checkpoint.UpdateLog
	ImageDir   string
	DryRun     bool

	// Now is overridable for tests; defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Updater performs one incremental update pass.
type Updater struct {
	deps Deps
}

// Result summarizes one run.
type Result struct {
	Since          string
	Added          []string
	SkippedSaved   int
	SkippedMissing int
	UpToDate       bool
}

// New creates an Updater from deps, filling in Now and Logger defaults.
func New(deps Deps) *Updater {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Updater{deps: deps}
}

// Run executes a single update pass. The sequencing carries the recovery
// guarantee: the checkpoint only advances after the catalog rows are
// committed, so any aborted run can simply be re-run — already-stored
// filenames are filtered out on the next pass.
func (u *Updater) Run(ctx context.Context) (Result, error) {
	d := u.deps

	since, err := d.Checkpoint.Read()
	if err != nil {
		return Result{}, err
	}
	d.Logger.Info("checking for new images", "since", since)

	records, err := d.Catalog.FetchSince(ctx, since)
	if err != nil {
		return Result{}, fmt.Errorf("fetching image metadata: %w", err)
	}

	existing, err := d.Store.Filenames()
	if err != nil {
		return Result{}, fmt.Errorf("loading stored filenames: %w", err)
	}

	res := Result{Since: since}
	fresh := u.filter(records, existing, &res)

	if len(fresh) == 0 {
		d.Logger.Info("data already up to date", "since", since)
		res.UpToDate = true
		return res, nil
	}

	res.Added = fresh
	if d.DryRun {
		d.Logger.Info("dry run: skipping inference and persistence", "new_images", len(fresh))
		return res, nil
	}

	d.Logger.Info("calculating new predictions", "new_images", len(fresh))
	preds, err := d.Predictor.Predict(ctx, d.ImageDir, fresh)
	if err != nil {
		return Result{}, err
	}
	if len(preds.Stage) != len(fresh) || len(preds.Locations) != len(fresh) {
		return Result{}, fmt.Errorf(
			"prediction count mismatch: %d filenames, %d stage predictions, %d locations predictions",
			len(fresh), len(preds.Stage), len(preds.Locations))
	}

	now := d.Now()
	rows := make([]storage.ImagePrediction, len(fresh))
	for i, name := range fresh {
		rows[i] = storage.ImagePrediction{
			Filename:  name,
			Stage:     preds.Stage[i],
			Locations: preds.Locations[i],
			AddedAt:   now,
		}
	}

	if err := d.Store.AppendPredictions(rows); err != nil {
		return Result{}, fmt.Errorf("appending predictions: %w", err)
	}

	date := now.Format(checkpoint.DateLayout)
	if err := d.Checkpoint.Write(date); err != nil {
		return Result{}, fmt.Errorf("advancing checkpoint: %w", err)
	}
	if err := d.RunLog.Append(date, fresh); err != nil {
		return Result{}, fmt.Errorf("logging update: %w", err)
	}

	d.Logger.Info("update complete", "added", len(fresh), "checkpoint", date)
	return res, nil
}

// filter returns the filenames to process: records not already stored whose
// image file exists under ImageDir. Metadata order is preserved and
// duplicate records within one payload are collapsed. Records missing on
// disk are skipped by policy, but loudly, since they can mask ingestion
// gaps upstream.
func (u *Updater) filter(records []catalog.ImageRecord, existing map[string]struct{}, res *Result) []string {
	d := u.deps
	seen := make(map[string]struct{}, len(records))
	var fresh []string

	for _, rec := range records {
		if rec.Filename == "" {
			continue
		}
		if _, dup := seen[rec.Filename]; dup {
			continue
		}
		seen[rec.Filename] = struct{}{}

		if _, ok := existing[rec.Filename]; ok {
			d.Logger.Debug("skipping already-stored image", "filename", rec.Filename)
			res.SkippedSaved++
			continue
		}
		if _, err := os.Stat(filepath.Join(d.ImageDir, rec.Filename)); err != nil {
			d.Logger.Warn("image listed in catalog but not found on disk, skipping",
				"filename", rec.Filename, "image_dir", d.ImageDir)
			res.SkippedMissing++
			continue
		}
		fresh = append(fresh, rec.Filename)
	}
	return fresh
}
