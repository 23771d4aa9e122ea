package detection

import (
	"fmt"
	"image"
	"math"
)

// Box is an axis-aligned bounding box in floating-point pixel coordinates.
//
// A well-formed box has X1 < X2 and Y1 < Y2. Boxes with zero or negative
// extent are tolerated by IoU (they never count as duplicates) but Validate
// rejects them.
type Box struct {
	X1 float64 `json:"x1" yaml:"x1"` // Left edge
	Y1 float64 `json:"y1" yaml:"y1"` // Top edge
	X2 float64 `json:"x2" yaml:"x2"` // Right edge
	Y2 float64 `json:"y2" yaml:"y2"` // Bottom edge
}

// Width returns the horizontal extent, or 0 for an inverted box.
func (b Box) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent, or 0 for an inverted box.
func (b Box) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area returns Width * Height.
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Empty reports whether the box encloses no area.
func (b Box) Empty() bool {
	return b.Area() == 0
}

// Validate checks the X1 < X2, Y1 < Y2 invariant and rejects NaN or infinite
// coordinates.
func (b Box) Validate() error {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("box %v has non-finite coordinate", b)
		}
	}
	if b.X1 >= b.X2 || b.Y1 >= b.Y2 {
		return fmt.Errorf("invalid box %v: x1 must be < x2, y1 must be < y2", b)
	}
	return nil
}

// Rect rounds the box to integer pixel bounds for drawing.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X1)),
		int(math.Round(b.Y1)),
		int(math.Round(b.X2)),
		int(math.Round(b.Y2)),
	)
}

func (b Box) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is a single candidate reported by a detection engine.
//
// Detections are values: once created their class, confidence and box never
// change. Pipeline stages produce new slices instead of editing entries.
type Detection struct {
	// ClassID indexes the model's class list. Always >= 0.
	ClassID int `json:"class_id"`

	// Confidence is the model score in [0, 1].
	Confidence float64 `json:"confidence"`

	// Box is the bounding box, in whatever space the caller is tracking.
	Box Box `json:"box"`
}

// Validate checks the class id, the confidence range and the box.
func (d Detection) Validate() error {
	if d.ClassID < 0 {
		return fmt.Errorf("negative class id %d", d.ClassID)
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	return d.Box.Validate()
}

// Percent returns the confidence as a rounded integer percentage.
func (d Detection) Percent() int {
	return int(math.Round(d.Confidence * 100))
}

// Label formats the confidence the way annotated images show it, e.g. "87%".
func (d Detection) Label() string {
	return fmt.Sprintf("%d%%", d.Percent())
}
