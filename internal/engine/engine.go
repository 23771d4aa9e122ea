// Package engine defines the boundary to the object-detection model.
//
// The model itself is an opaque collaborator: it receives the letterboxed
// inference canvas and returns candidate detections in canvas coordinates.
// Whatever tensor names or layouts a concrete runtime uses stay inside its
// adapter; the rest of the pipeline only ever sees detection.Detection values.
//
// Two adapters are provided:
//   - HTTPEngine posts the canvas to a remote inference service
//   - SidecarEngine reads precomputed detections from JSON files
package engine

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/detect-annotate/internal/detection"
)

// Request is one inference call.
type Request struct {
	// Name identifies the source image (file path or "file.pdf#3").
	Name string

	// Key is the image's output stem, unique within a batch. Engines that
	// look up per-image data use it in place of Name when set.
	Key string

	// Canvas is the letterboxed image, already at inference resolution.
	Canvas image.Image
}

// Engine turns an inference canvas into raw candidate detections.
//
// Implementations must honor ctx cancellation and must be safe for concurrent
// use if the pipeline is configured with more than one worker.
type Engine interface {
	Infer(ctx context.Context, req Request) ([]detection.Detection, error)
	Name() string
}

// InferenceError reports a failed engine call or malformed engine output.
type InferenceError struct {
	Engine string
	Image  string
	Err    error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed for %s: %v", e.Engine, e.Image, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// validateAll checks every detection, reporting the first malformed one.
func validateAll(dets []detection.Detection) error {
	for i, d := range dets {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("detection %d: %w", i, err)
		}
	}
	return nil
}
