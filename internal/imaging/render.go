package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/anthonynsimon/bild/clone"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/detect-annotate/internal/detection"
)

// RenderOptions controls how detections are drawn.
type RenderOptions struct {
	// LineWidth is the outline thickness in pixels. Values < 1 mean 1.
	LineWidth int

	// ShowClassNames prefixes the confidence label with the class name.
	ShowClassNames bool
}

// DefaultRenderOptions returns a 2 px outline with percentage-only labels.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{LineWidth: 2}
}

const (
	// labelOffset is how far above the box's top edge a label starts.
	labelOffset = 14
	labelPadX   = 2
)

// Render draws detections onto a copy of img.
//
// Parameters:
//   - img: Source image. It is never modified.
//   - dets: Detections in img's coordinate space.
//   - palette: Class colors. Class ids wrap modulo the palette size.
//   - opts: Line width and label style.
//
// Each detection gets a rectangle outline in its class color and a label
// with its confidence as an integer percentage, drawn on a filled background
// just above the box's top-left corner. Labels are not moved to avoid each
// other. A label that would leave the image is pulled back inside.
func Render(img image.Image, dets []detection.Detection, palette *ClassPalette, opts RenderOptions) *image.RGBA {
	out := clone.AsRGBA(img)

	lw := opts.LineWidth
	if lw < 1 {
		lw = 1
	}

	for _, d := range dets {
		c := palette.Color(d.ClassID)
		drawOutline(out, d.Box.Rect(), lw, c)

		text := d.Label()
		if opts.ShowClassNames {
			text = palette.Name(d.ClassID) + " " + text
		}
		r := d.Box.Rect()
		drawLabel(out, r.Min.X, r.Min.Y-labelOffset, text, palette.TextColor(d.ClassID), c)
	}

	return out
}

// drawOutline strokes the inside edge of r with the given thickness.
func drawOutline(img *image.RGBA, r image.Rectangle, width int, c color.RGBA) {
	r = r.Canon()
	src := image.NewUniform(c)

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), // top
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), // left
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		e = e.Intersect(r).Intersect(img.Bounds())
		if e.Empty() {
			continue
		}
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}

// drawLabel draws text on a filled background whose top-left corner is (x, y).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	metrics := face.Metrics()

	w := font.MeasureString(face, text).Ceil() + 2*labelPadX
	h := metrics.Height.Ceil()

	bounds := img.Bounds()
	if x+w > bounds.Max.X {
		x = bounds.Max.X - w
	}
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if y+h > bounds.Max.Y {
		y = bounds.Max.Y - h
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}

	bgRect := image.Rect(x, y, x+w, y+h).Intersect(bounds)
	draw.Draw(img, bgRect, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x+labelPadX, y+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
