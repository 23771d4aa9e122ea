// Package detection provides the engine-neutral detection model and the
// overlap-based suppression applied to raw detector output.
//
// A detector produces many candidate boxes for the same object. This package
// reduces those candidates to a deduplicated set while keeping the order in
// which the engine reported them.
//
// # Coordinate Space
//
// Box and Detection carry no notion of which coordinate space they live in.
// Callers must make sure every detection passed to Dedupe is in the same
// space, normally original-image space after mapping out of the inference
// canvas:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - (X1, Y1) is the top-left corner and (X2, Y2) the bottom-right corner
//
// # Suppression
//
// Dedupe is greedy and order preserving:
//
//  1. Walk candidates in arrival order
//  2. Compare each candidate with every detection kept so far
//  3. Drop the candidate when its IoU with any kept detection exceeds the threshold
//  4. Otherwise keep it
//
// Suppression ignores class labels. Two detections of different classes that
// overlap heavily are duplicates just like two of the same class.
// DedupePerClass exists for callers that opt in to per-class suppression.
//
// # Confidence Scores
//
// Confidence is a probability in [0, 1]. FilterByConfidence removes
// low-confidence candidates and must run before Dedupe, so a weak candidate can
// never suppress a stronger one that arrived after it.
//
// # Thread Safety
//
// All functions are pure: they never mutate their input slices and hold no
// shared state, so they can be called concurrently for different images.
package detection
