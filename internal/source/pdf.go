package source

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/ironsheep/detect-annotate/internal/imaging"
)

// pdfItems expands a PDF into one item per page.
func pdfItems(path string) []Item {
	n, err := PageCount(path)
	if err != nil || n == 0 {
		return []Item{{Path: path, Page: 1}}
	}
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Path: path, Page: i + 1}
	}
	return items
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// renderPage rasterizes one 1-based page.
//
// Each call opens its own document handle; fitz documents are not safe for
// concurrent use and batch workers render pages in parallel.
func renderPage(path string, page, dpi int) (image.Image, error) {
	name := fmt.Sprintf("%s#%d", path, page)

	doc, err := fitz.New(path)
	if err != nil {
		return nil, &imaging.ImageLoadError{Path: name, Err: err}
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, &imaging.ImageLoadError{Path: name, Err: fmt.Errorf("page %d out of range (document has %d)", page, doc.NumPage())}
	}

	img, err := doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, &imaging.ImageLoadError{Path: name, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &imaging.ImageLoadError{Path: name, Err: fmt.Errorf("page rendered empty")}
	}
	return img, nil
}
