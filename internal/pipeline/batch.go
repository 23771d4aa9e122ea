package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/detect-annotate/internal/source"
)

// Run processes items with at most workers images in flight and returns the
// batch report. workers < 1 means 1.
//
// Per-image failures are logged and tallied; they do not stop other images.
// Once ctx is done no new images are started and the remaining ones are
// reported as KindCanceled. Report.Results and Report.Failures follow input
// order regardless of completion order.
//
// Items whose output stems collide are renamed with source.Disambiguate, so
// every processed image gets its own output file.
func (p *Processor) Run(ctx context.Context, items []source.Item, workers int) Report {
	if workers < 1 {
		workers = 1
	}
	items = source.Disambiguate(items)

	runID := uuid.NewString()
	log := p.log.WithField("run_id", runID)
	log.WithFields(logrus.Fields{
		"images":  len(items),
		"workers": workers,
		"engine":  p.engine.Name(),
	}).Info("batch started")

	start := time.Now()
	results := make([]Result, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			results[i], errs[i] = p.process(ctx, log, item)
			if errs[i] != nil {
				kind := KindOf(errs[i])
				log.WithFields(logrus.Fields{
					"image":      item.Name(),
					"stage":      describeStage(kind),
					"error_kind": kind.String(),
				}).Warnf("image skipped: %v", errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(runID, len(items))
	for i := range items {
		report.add(items[i], results[i], errs[i])
	}
	report.Elapsed = time.Since(start)

	log.WithFields(report.Fields()).Info("batch finished")
	return report
}
