package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is the JPEG quality used when none is configured.
const DefaultJPEGQuality = 90

// OutputWriteError reports a destination that could not be created or an
// image that could not be encoded.
type OutputWriteError struct {
	Path string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputName returns the annotated file name for an output stem:
// prefix + stem + ".jpg".
func OutputName(prefix, stem string) string {
	return prefix + stem + ".jpg"
}

// WriteJPEG encodes img as JPEG into dir/name and returns the full path.
//
// The directory is created if absent; creating an existing directory is not
// an error. quality is the JPEG quality in [1, 100]; out-of-range values fall
// back to DefaultJPEGQuality.
//
// # Errors
//
// Returns *OutputWriteError if the directory cannot be created or the file
// cannot be encoded or written.
func WriteJPEG(img image.Image, dir, name string, quality int) (string, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &OutputWriteError{Path: path, Err: err}
	}

	if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
		return "", &OutputWriteError{Path: path, Err: err}
	}
	return path, nil
}
