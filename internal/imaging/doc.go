// Package imaging provides the raster and geometric stages of detection
// post-processing.
//
// This package loads source images, fits them onto the fixed inference canvas,
// maps canvas-space boxes back onto the original image, draws the surviving
// detections and writes the annotated result. All operations work with
// standard Go image.Image types and never modify their inputs.
//
// # Coordinate System
//
// Pixel coordinates have (0,0) at the top-left corner, X increasing rightward
// and Y increasing downward. Two spaces are involved:
//   - Original space: the decoded source image
//   - Canvas space: the image actually given to the detection engine
//
// A Transform records how one became the other. ToCanvas and ToOriginal are
// exact algebraic inverses for the same Transform value.
//
// # Letterboxing
//
// ComputeTransform implements a downscale-only policy: an image whose longest
// side exceeds the target size is shrunk to fit, anything smaller keeps its
// native resolution. With letterboxing enabled the resized image is centered
// on a black square canvas; without it the canvas is the resized image.
//
// # Thread Safety
//
// ClassPalette and Transform are immutable values and may be shared across
// goroutines. ImageCache is safe for concurrent use. Every other function is
// stateless.
//
// # Error Handling
//
// Stage failures are reported with typed errors so callers can tally them:
//   - *ImageLoadError: missing, unreadable or unsupported source
//   - *InvalidDimensionError: non-positive width, height or target size
//   - *OutputWriteError: destination not creatable or encoding failed
package imaging
