package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/detect-annotate/internal/source"
)

// Failure records one skipped image.
type Failure struct {
	Item source.Item
	Kind Kind
	Err  error
}

// Report summarizes a batch.
type Report struct {
	RunID     string
	Total     int
	Processed int
	Skipped   int
	ByKind    map[Kind]int

	// Detections is the number of boxes drawn across all processed images.
	Detections int

	Results  []Result
	Failures []Failure
	Elapsed  time.Duration
}

func newReport(runID string, total int) Report {
	return Report{
		RunID:  runID,
		Total:  total,
		ByKind: make(map[Kind]int),
	}
}

func (r *Report) add(item source.Item, res Result, err error) {
	if err != nil {
		kind := KindOf(err)
		r.Skipped++
		r.ByKind[kind]++
		r.Failures = append(r.Failures, Failure{Item: item, Kind: kind, Err: err})
		return
	}
	r.Processed++
	r.Detections += len(res.Detections)
	r.Results = append(r.Results, res)
}

// Fields flattens the report into log fields.
func (r Report) Fields() logrus.Fields {
	f := logrus.Fields{
		"total":      r.Total,
		"processed":  r.Processed,
		"skipped":    r.Skipped,
		"detections": r.Detections,
		"elapsed":    r.Elapsed.Round(time.Millisecond),
	}
	for k, n := range r.ByKind {
		f["skipped_"+k.String()] = n
	}
	return f
}
