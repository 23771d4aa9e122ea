// Package source turns a user-supplied input path into the ordered list of
// images a batch will process.
//
// An input may be a single image, a single PDF, or a directory tree. Raster
// files (.jpg, .jpeg, .png, any case) become one Item each; every page of a
// PDF becomes its own Item, rendered on demand.
package source

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ironsheep/detect-annotate/internal/imaging"
)

// Item is one image of a batch.
type Item struct {
	// Path is the file on disk.
	Path string

	// Page is the 1-based PDF page number, or 0 for raster files.
	Page int

	// Key names the item's output artifacts, without prefix or extension.
	// Discover sets it from the path relative to the input root; when empty
	// Stem falls back to the file's base name.
	Key string
}

// Name identifies the item in logs and engine requests: the path for raster
// files, "path#N" for PDF pages.
func (it Item) Name() string {
	if it.Page > 0 {
		return fmt.Sprintf("%s#%d", it.Path, it.Page)
	}
	return it.Path
}

// OutputSuffix is inserted between the source stem and ".jpg" in the output
// file name so that pages of one PDF do not collide.
func (it Item) OutputSuffix() string {
	if it.Page > 0 {
		return fmt.Sprintf("_p%03d", it.Page)
	}
	return ""
}

// Stem is the output file stem: Key when set, otherwise the source base name
// without extension plus OutputSuffix.
func (it Item) Stem() string {
	if it.Key != "" {
		return it.Key
	}
	return imaging.Stem(it.Path) + it.OutputSuffix()
}

// Load decodes the item. PDF pages are rasterized at dpi.
//
// Failures are returned as *imaging.ImageLoadError so the caller can skip the
// item and carry on.
func (it Item) Load(dpi int) (image.Image, error) {
	if it.Page > 0 {
		return renderPage(it.Path, it.Page, dpi)
	}
	return imaging.Load(it.Path)
}

func isRaster(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Discover lists the items under path.
//
// Directories are walked recursively; files with other extensions are
// ignored. Results are sorted by path, then page, so repeated runs see the
// same order. A PDF whose page count cannot be read still yields a single
// item; loading it later reports the error for that file alone.
//
// Each item's Key is its path relative to path with separators replaced by
// "_", so "a/page.png" becomes "a_page". Keys that still collide get a
// numeric suffix; see Disambiguate.
//
// A single file argument must be a supported image or PDF.
func Discover(path string) ([]Item, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !fi.IsDir() {
		switch {
		case isRaster(path):
			return Disambiguate([]Item{{Path: path}}), nil
		case isPDF(path):
			return Disambiguate(pdfItems(path)), nil
		default:
			return nil, fmt.Errorf("unsupported input %s: want .jpg, .jpeg, .png or .pdf", path)
		}
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isRaster(p) || isPDF(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	sort.Strings(files)

	items := make([]Item, 0, len(files))
	for _, f := range files {
		var found []Item
		if isPDF(f) {
			found = pdfItems(f)
		} else {
			found = []Item{{Path: f}}
		}
		key := relativeStem(path, f)
		for _, it := range found {
			it.Key = key + it.OutputSuffix()
			items = append(items, it)
		}
	}
	return Disambiguate(items), nil
}

// relativeStem flattens file's path below root into a single file stem.
func relativeStem(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return imaging.Stem(file)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
}

// Disambiguate returns a copy of items whose stems are unique, compared
// case-insensitively. The first item keeps its stem; later ones get "_2",
// "_3" and so on, in input order.
func Disambiguate(items []Item) []Item {
	out := make([]Item, len(items))
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		stem := it.Stem()
		key := stem
		for n := 2; seen[strings.ToLower(key)]; n++ {
			key = fmt.Sprintf("%s_%d", stem, n)
		}
		seen[strings.ToLower(key)] = true
		it.Key = key
		out[i] = it
	}
	return out
}
