package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// InvalidDimensionError reports a non-positive width, height or target size
// passed to ComputeTransform.
type InvalidDimensionError struct {
	Width      int
	Height     int
	TargetSize int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid dimensions: width=%d height=%d target=%d (all must be > 0)",
		e.Width, e.Height, e.TargetSize)
}

// Transform describes how an original image was placed on the inference canvas.
//
// A Transform is computed once per image by ComputeTransform and is immutable
// afterwards. The same value drives both the raster letterboxing (Letterbox)
// and the coordinate mapping (ToCanvas, ToOriginal), so geometry cannot drift
// between the two.
type Transform struct {
	// Scale is the resize factor, in (0, 1]. Images are never enlarged.
	Scale float64 `json:"scale"`

	// PadX and PadY are the left and top padding on the canvas, >= 0.
	// Both are zero when letterboxing is disabled.
	PadX float64 `json:"pad_x"`
	PadY float64 `json:"pad_y"`

	// TargetSize is the side of the square inference canvas.
	TargetSize int `json:"target_size"`

	// Letterbox records whether the canvas is the padded square.
	Letterbox bool `json:"letterbox"`

	// SourceWidth and SourceHeight are the original image dimensions.
	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`

	// ResizedWidth and ResizedHeight are the image dimensions after scaling.
	ResizedWidth  int `json:"resized_width"`
	ResizedHeight int `json:"resized_height"`
}

// ComputeTransform computes the scale and padding needed to fit a
// width x height image into a targetSize canvas.
//
// Parameters:
//   - width, height: Original image dimensions. Must be > 0.
//   - targetSize: Side of the square inference canvas. Must be > 0.
//   - letterbox: If true, the resized image is centered on a
//     targetSize x targetSize canvas. If false, the canvas is the resized
//     image itself and may be non-square.
//
// # Downscale-Only Policy
//
// Scale is targetSize / max(width, height) when the longest side exceeds
// targetSize, and exactly 1.0 otherwise. Small images keep their native
// resolution.
//
// # Errors
//
// Returns *InvalidDimensionError if any argument is <= 0.
func ComputeTransform(width, height, targetSize int, letterbox bool) (Transform, error) {
	if width <= 0 || height <= 0 || targetSize <= 0 {
		return Transform{}, &InvalidDimensionError{Width: width, Height: height, TargetSize: targetSize}
	}

	maxSide := width
	if height > maxSide {
		maxSide = height
	}

	scale := 1.0
	if maxSide > targetSize {
		scale = float64(targetSize) / float64(maxSide)
	}

	t := Transform{
		Scale:         scale,
		TargetSize:    targetSize,
		Letterbox:     letterbox,
		SourceWidth:   width,
		SourceHeight:  height,
		ResizedWidth:  resizedSide(width, scale),
		ResizedHeight: resizedSide(height, scale),
	}

	if letterbox {
		t.PadX = float64(targetSize-t.ResizedWidth) / 2
		t.PadY = float64(targetSize-t.ResizedHeight) / 2
	}

	return t, nil
}

// resizedSide scales one side, never below one pixel.
func resizedSide(n int, scale float64) int {
	return max(1, int(math.Round(float64(n)*scale)))
}

// CanvasSize returns the dimensions of the image handed to the engine.
func (t Transform) CanvasSize() (int, int) {
	if t.Letterbox {
		return t.TargetSize, t.TargetSize
	}
	return t.ResizedWidth, t.ResizedHeight
}

// Letterbox produces the inference canvas for img according to t.
//
// The source is resized with bicubic (Catmull-Rom) filtering when Scale < 1.
// In letterbox mode it is pasted onto a solid black square at
// (floor(PadX), floor(PadY)). The input image is never modified; a new image
// is always returned.
func Letterbox(img image.Image, t Transform) *image.NRGBA {
	var resized *image.NRGBA
	if t.Scale < 1 {
		resized = imaging.Resize(img, t.ResizedWidth, t.ResizedHeight, imaging.CatmullRom)
	} else {
		resized = imaging.Clone(img)
	}

	if !t.Letterbox {
		return resized
	}

	canvas := imaging.New(t.TargetSize, t.TargetSize, color.Black)
	offset := image.Pt(int(math.Floor(t.PadX)), int(math.Floor(t.PadY)))
	return imaging.Paste(canvas, resized, offset)
}
