package pipeline

import (
	"context"
	"errors"

	"github.com/ironsheep/detect-annotate/internal/engine"
	"github.com/ironsheep/detect-annotate/internal/imaging"
)

// Kind classifies why an image was skipped.
type Kind int

const (
	KindNone Kind = iota
	KindImageLoad
	KindInvalidDimension
	KindEngineInference
	KindOutputWrite
	KindCanceled
	KindOther
)

var kindNames = [...]string{
	KindNone:             "none",
	KindImageLoad:        "image_load",
	KindInvalidDimension: "invalid_dimension",
	KindEngineInference:  "engine_inference",
	KindOutputWrite:      "output_write",
	KindCanceled:         "canceled",
	KindOther:            "other",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalText lets Kind be used as a JSON map key.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf classifies err. A nil error is KindNone.
//
// An engine call that failed because its deadline passed is still
// KindEngineInference; only a batch-level cancellation before an image starts
// is KindCanceled.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		loadErr  *imaging.ImageLoadError
		dimErr   *imaging.InvalidDimensionError
		inferErr *engine.InferenceError
		writeErr *imaging.OutputWriteError
	)
	switch {
	case errors.As(err, &loadErr):
		return KindImageLoad
	case errors.As(err, &dimErr):
		return KindInvalidDimension
	case errors.As(err, &inferErr):
		return KindEngineInference
	case errors.As(err, &writeErr):
		return KindOutputWrite
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
