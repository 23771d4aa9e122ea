package imaging

import (
	"fmt"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// PaletteEntry names a class and the color its boxes are drawn in.
type PaletteEntry struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"` // "#RRGGBB"
}

// ClassColor is a resolved palette slot.
type ClassColor struct {
	ClassID int    `json:"class_id"`
	Name    string `json:"name"`
	Hex     string `json:"hex"`
}

// ClassPalette maps class ids to display colors.
//
// A palette is immutable once built and safe for concurrent use by any number
// of renderers. Class ids beyond the palette size wrap around
// (classID mod size), so out-of-range classes still get a color, although not
// necessarily a distinct one.
type ClassPalette struct {
	names  []string
	colors []colorful.Color
}

// DefaultPaletteEntries is the nine-class table-structure model palette.
func DefaultPaletteEntries() []PaletteEntry {
	return []PaletteEntry{
		{Name: "table", Color: "#1f77b4"},
		{Name: "data_cell", Color: "#ff7f0e"},
		{Name: "header_cell", Color: "#2ca02c"},
		{Name: "description_cell", Color: "#d62728"},
		{Name: "table_title", Color: "#9467bd"},
		{Name: "rowsubtotals_cell", Color: "#8c564b"},
		{Name: "rowtotal_cell", Color: "#e377c2"},
		{Name: "columnsubtotals_cell", Color: "#7f7f7f"},
		{Name: "columntotals_cell", Color: "#bcbd22"},
	}
}

// DefaultPalette returns the palette built from DefaultPaletteEntries.
func DefaultPalette() *ClassPalette {
	p, err := NewClassPalette(DefaultPaletteEntries())
	if err != nil {
		panic(err) // built-in entries are constant
	}
	return p
}

// NewClassPalette builds a palette from entries. Colors must be "#RRGGBB"
// hex strings. An empty entry list is an error.
func NewClassPalette(entries []PaletteEntry) (*ClassPalette, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("palette must contain at least one class")
	}

	p := &ClassPalette{
		names:  make([]string, len(entries)),
		colors: make([]colorful.Color, len(entries)),
	}
	for i, e := range entries {
		c, err := colorful.Hex(e.Color)
		if err != nil {
			return nil, fmt.Errorf("palette entry %d (%s): invalid color %q: %w", i, e.Name, e.Color, err)
		}
		p.names[i] = e.Name
		p.colors[i] = c
	}
	return p, nil
}

// Size returns the number of palette slots.
func (p *ClassPalette) Size() int {
	return len(p.colors)
}

func (p *ClassPalette) index(classID int) int {
	n := len(p.colors)
	i := classID % n
	if i < 0 {
		i += n
	}
	return i
}

// Color returns the drawing color for classID.
func (p *ClassPalette) Color(classID int) color.RGBA {
	r, g, b := p.colors[p.index(classID)].RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Name returns the class name for classID, wrapping like Color.
func (p *ClassPalette) Name(classID int) string {
	return p.names[p.index(classID)]
}

// TextColor returns black or white, whichever reads better on the class color.
// The choice is made on CIE L* lightness rather than raw RGB.
func (p *ClassPalette) TextColor(classID int) color.RGBA {
	l, _, _ := p.colors[p.index(classID)].Lab()
	if l > 0.6 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}

// Legend lists every palette slot in class id order.
func (p *ClassPalette) Legend() []ClassColor {
	out := make([]ClassColor, len(p.colors))
	for i, c := range p.colors {
		out[i] = ClassColor{ClassID: i, Name: p.names[i], Hex: c.Hex()}
	}
	return out
}
