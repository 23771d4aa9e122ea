package engine

import (
	"fmt"

	"github.com/ironsheep/detect-annotate/internal/detection"
)

// RawTensor is a YOLOv8 detection head output without built-in NMS.
//
// Shape is [1, 4+numClasses, anchors] and Data is laid out channel-major:
// row c holds channel c for every anchor. Channels 0-3 are the box center and
// size (cx, cy, w, h) in canvas pixels; the remaining channels are per-class
// scores.
type RawTensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// DecodeYOLOv8 converts a raw tensor into corner-form detections.
//
// Each anchor takes its highest-scoring class. Anchors scoring below minScore
// and anchors with non-positive width or height are skipped. Output order is
// anchor order, which is the arrival order the deduplicator relies on.
func DecodeYOLOv8(t RawTensor, minScore float64) ([]detection.Detection, error) {
	if len(t.Shape) != 3 || t.Shape[0] != 1 {
		return nil, fmt.Errorf("unexpected tensor shape %v, want [1, 4+classes, anchors]", t.Shape)
	}
	channels, anchors := t.Shape[1], t.Shape[2]
	if channels < 5 {
		return nil, fmt.Errorf("tensor has %d channels, need at least 5", channels)
	}
	if anchors < 0 || len(t.Data) != channels*anchors {
		return nil, fmt.Errorf("tensor data length %d does not match shape %v", len(t.Data), t.Shape)
	}

	at := func(c, i int) float64 {
		return float64(t.Data[c*anchors+i])
	}

	out := make([]detection.Detection, 0)
	for i := 0; i < anchors; i++ {
		best, bestScore := 0, at(4, i)
		for c := 5; c < channels; c++ {
			if s := at(c, i); s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if bestScore < minScore {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		if w <= 0 || h <= 0 {
			continue
		}
		if bestScore > 1 {
			bestScore = 1
		}

		out = append(out, detection.Detection{
			ClassID:    best,
			Confidence: bestScore,
			Box: detection.Box{
				X1: cx - w/2,
				Y1: cy - h/2,
				X2: cx + w/2,
				Y2: cy + h/2,
			},
		})
	}
	return out, nil
}
