package imaging

import (
	"math"

	"github.com/ironsheep/detect-annotate/internal/detection"
)

// ToCanvas maps a box from original image space onto the inference canvas:
//
//	x_canvas = x_orig * Scale + PadX
//
// and analogously for y.
func (t Transform) ToCanvas(b detection.Box) detection.Box {
	return detection.Box{
		X1: b.X1*t.Scale + t.PadX,
		Y1: b.Y1*t.Scale + t.PadY,
		X2: b.X2*t.Scale + t.PadX,
		Y2: b.Y2*t.Scale + t.PadY,
	}
}

// ToOriginal maps a canvas-space box back to original image space. It is the
// algebraic inverse of ToCanvas:
//
//	x_orig = (x_canvas - PadX) / Scale
//
// The result is clamped to [0, SourceWidth] x [0, SourceHeight] to absorb
// rounding drift at the canvas edges and boxes that spill into the padding.
func (t Transform) ToOriginal(b detection.Box) detection.Box {
	w := float64(t.SourceWidth)
	h := float64(t.SourceHeight)
	return detection.Box{
		X1: clampFloat((b.X1-t.PadX)/t.Scale, 0, w),
		Y1: clampFloat((b.Y1-t.PadY)/t.Scale, 0, h),
		X2: clampFloat((b.X2-t.PadX)/t.Scale, 0, w),
		Y2: clampFloat((b.Y2-t.PadY)/t.Scale, 0, h),
	}
}

// DetectionsToOriginal maps every detection through ToOriginal.
// Detections whose box collapses to zero area after clamping (they lay
// entirely in the padding or outside the image) are dropped.
func (t Transform) DetectionsToOriginal(dets []detection.Detection) []detection.Detection {
	out := make([]detection.Detection, 0, len(dets))
	for _, d := range dets {
		mapped := detection.Detection{
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			Box:        t.ToOriginal(d.Box),
		}
		if mapped.Box.Empty() {
			continue
		}
		out = append(out, mapped)
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
