package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ImagePrediction is one catalog entry: an image filename plus the output
// vectors of the stage and locations classifiers.
type ImagePrediction struct {
	Filename  string
	Stage     []float32
	Locations []float32
	AddedAt   time.Time
}
