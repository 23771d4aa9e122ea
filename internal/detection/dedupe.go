package detection

import "math"

// IoU returns the intersection-over-union of two boxes.
//
// The result is in [0, 1]: 0 for disjoint boxes, 1 for identical ones. When
// the union area is zero (both boxes degenerate) IoU is defined as 0, so
// zero-area boxes are never treated as duplicates.
func IoU(a, b Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	inter := math.Max(0, ix2-ix1) * math.Max(0, iy2-iy1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Dedupe removes detections that duplicate an earlier detection.
//
// Parameters:
//   - detections: Candidates in engine arrival order, all in one coordinate space.
//   - iouThreshold: Overlap above which a candidate is a duplicate, in [0, 1].
//
// Returns the kept detections in their original relative order. The input
// slice is not modified. A candidate is discarded when its IoU with any
// already-kept detection is strictly greater than iouThreshold; ties at the
// threshold survive. Class labels are ignored.
//
// The result never has more elements than the input, and an empty input
// yields an empty, non-nil slice. The cost is O(n·k) where k is the number of
// kept detections.
func Dedupe(detections []Detection, iouThreshold float64) []Detection {
	return dedupe(detections, iouThreshold, false)
}

// DedupePerClass behaves like Dedupe but only compares detections that share
// a ClassID. It is opt-in; the default pipeline suppresses across classes.
func DedupePerClass(detections []Detection, iouThreshold float64) []Detection {
	return dedupe(detections, iouThreshold, true)
}

func dedupe(detections []Detection, iouThreshold float64, classAware bool) []Detection {
	kept := make([]Detection, 0, len(detections))

	for _, cand := range detections {
		duplicate := false
		for _, k := range kept {
			if classAware && k.ClassID != cand.ClassID {
				continue
			}
			if IoU(cand.Box, k.Box) > iouThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, cand)
		}
	}

	return kept
}

// FilterByConfidence drops detections whose confidence is below minConfidence.
// Detections exactly at the threshold are kept. Order is preserved.
func FilterByConfidence(detections []Detection, minConfidence float64) []Detection {
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < minConfidence {
			continue
		}
		out = append(out, d)
	}
	return out
}
