// Package pipeline runs the per-image post-processing chain and batches it
// over many images.
//
// The stage order for one image is fixed:
//
//	load -> transform -> letterbox -> infer -> map -> filter -> dedupe -> render -> write
//
// Images share nothing but the read-only palette, options and engine, so a
// batch fans out across a bounded worker pool. Any per-image failure skips
// that image and is tallied in the Report; it never aborts the batch.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/detect-annotate/internal/config"
	"github.com/ironsheep/detect-annotate/internal/detection"
	"github.com/ironsheep/detect-annotate/internal/engine"
	"github.com/ironsheep/detect-annotate/internal/imaging"
	"github.com/ironsheep/detect-annotate/internal/source"
)

// Options are the per-image processing parameters.
type Options struct {
	TargetSize          int
	Letterbox           bool
	ConfidenceThreshold float64
	IoUThreshold        float64
	ClassAwareDedupe    bool
	EngineTimeout       time.Duration // 0 disables the per-image deadline

	OutputDir     string
	OutputPrefix  string
	OutputQuality int
	PDFDPI        int

	Render imaging.RenderOptions
}

// OptionsFromConfig copies the relevant settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		TargetSize:          cfg.TargetSize,
		Letterbox:           cfg.Letterbox,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		IoUThreshold:        cfg.IoUThreshold,
		ClassAwareDedupe:    cfg.ClassAwareDedupe,
		EngineTimeout:       cfg.EngineTimeout,
		OutputDir:           cfg.OutputDir,
		OutputPrefix:        cfg.OutputPrefix,
		OutputQuality:       cfg.OutputQuality,
		PDFDPI:              cfg.PDFDPI,
		Render: imaging.RenderOptions{
			LineWidth:      cfg.LineWidth,
			ShowClassNames: cfg.LabelClassNames,
		},
	}
}

// Processor holds everything shared across images of a run.
type Processor struct {
	engine  engine.Engine
	palette *imaging.ClassPalette
	opts    Options
	log     logrus.FieldLogger
}

// NewProcessor returns a Processor. eng must be safe for concurrent use when
// Run is given more than one worker.
func NewProcessor(eng engine.Engine, palette *imaging.ClassPalette, opts Options, log logrus.FieldLogger) *Processor {
	return &Processor{engine: eng, palette: palette, opts: opts, log: log}
}

// Options returns the processor's options.
func (p *Processor) Options() Options {
	return p.opts
}

// Outcome is the result of the geometric and suppression stages.
type Outcome struct {
	Transform  imaging.Transform
	Candidates int                   // raw engine output count
	Detections []detection.Detection // original-image space, deduplicated
}

// Result describes one successfully processed image.
type Result struct {
	Item       source.Item
	OutputPath string
	Outcome
	Elapsed time.Duration
}

// Detect runs transform, inference, mapping, confidence filtering and
// deduplication on an already-decoded image. name identifies the image to the
// engine.
func (p *Processor) Detect(ctx context.Context, name string, img image.Image) (Outcome, error) {
	return p.detect(ctx, p.log, engine.Request{Name: name}, img)
}

// detect fills in req.Canvas and runs the chain.
func (p *Processor) detect(ctx context.Context, log logrus.FieldLogger, req engine.Request, img image.Image) (Outcome, error) {
	b := img.Bounds()
	t, err := imaging.ComputeTransform(b.Dx(), b.Dy(), p.opts.TargetSize, p.opts.Letterbox)
	if err != nil {
		return Outcome{}, err
	}
	req.Canvas = imaging.Letterbox(img, t)

	inferCtx := ctx
	if p.opts.EngineTimeout > 0 {
		var cancel context.CancelFunc
		inferCtx, cancel = context.WithTimeout(ctx, p.opts.EngineTimeout)
		defer cancel()
	}
	raw, err := p.engine.Infer(inferCtx, req)
	if err != nil {
		return Outcome{}, err
	}

	mapped := t.DetectionsToOriginal(raw)
	confident := detection.FilterByConfidence(mapped, p.opts.ConfidenceThreshold)

	var kept []detection.Detection
	if p.opts.ClassAwareDedupe {
		kept = detection.DedupePerClass(confident, p.opts.IoUThreshold)
	} else {
		kept = detection.Dedupe(confident, p.opts.IoUThreshold)
	}

	log.WithFields(logrus.Fields{
		"scale":      t.Scale,
		"candidates": len(raw),
		"mapped":     len(mapped),
		"confident":  len(confident),
		"kept":       len(kept),
	}).Debug("detections post-processed")

	return Outcome{Transform: t, Candidates: len(raw), Detections: kept}, nil
}

// Annotate draws dets onto a copy of img with the processor's palette.
func (p *Processor) Annotate(img image.Image, dets []detection.Detection) *image.RGBA {
	return imaging.Render(img, dets, p.palette, p.opts.Render)
}

// Process runs the full chain for one item and writes the annotated JPEG.
func (p *Processor) Process(ctx context.Context, item source.Item) (Result, error) {
	return p.process(ctx, p.log, item)
}

func (p *Processor) process(ctx context.Context, log logrus.FieldLogger, item source.Item) (Result, error) {
	start := time.Now()
	log = log.WithField("image", item.Name())

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	img, err := item.Load(p.opts.PDFDPI)
	if err != nil {
		return Result{}, err
	}

	det, err := p.detect(ctx, log, engine.Request{Name: item.Name(), Key: item.Stem()}, img)
	if err != nil {
		return Result{}, err
	}

	annotated := p.Annotate(img, det.Detections)
	name := imaging.OutputName(p.opts.OutputPrefix, item.Stem())
	out, err := imaging.WriteJPEG(annotated, p.opts.OutputDir, name, p.opts.OutputQuality)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Item:       item,
		OutputPath: out,
		Outcome:    det,
		Elapsed:    time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"output":     out,
		"detections": len(det.Detections),
		"elapsed":    res.Elapsed.Round(time.Millisecond),
	}).Info("image annotated")
	return res, nil
}

// describeStage names the stage an error came from, for log fields.
func describeStage(k Kind) string {
	switch k {
	case KindImageLoad:
		return "load"
	case KindInvalidDimension:
		return "transform"
	case KindEngineInference:
		return "infer"
	case KindOutputWrite:
		return "write"
	case KindCanceled:
		return "schedule"
	default:
		return fmt.Sprint(k)
	}
}
