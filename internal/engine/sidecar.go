package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/detect-annotate/internal/detection"
)

// SidecarEngine serves detections produced earlier by an offline model run.
//
// A request with Key "scans_page 7" reads "<Dir>/scans_page 7.json", which
// must use the same reply format as HTTPEngine. Without a Key the file is
// found from the base name: "scans/page 7.jpeg" maps to "<Dir>/page 7.json"
// and PDF pages ("doc.pdf#3") to "<Dir>/doc_p003.json". Boxes in the file are canvas coordinates, exactly as
// the model produced them.
type SidecarEngine struct {
	Dir        string
	ScoreFloor float64
}

// NewSidecarEngine returns an engine reading JSON files from dir.
func NewSidecarEngine(dir string, scoreFloor float64) *SidecarEngine {
	return &SidecarEngine{Dir: dir, ScoreFloor: scoreFloor}
}

func (e *SidecarEngine) Name() string {
	return "sidecar"
}

// Infer implements Engine.
func (e *SidecarEngine) Infer(ctx context.Context, req Request) ([]detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, &InferenceError{Engine: e.Name(), Image: req.Name, Err: err}
	}

	path := e.SidecarPath(req.Name)
	if req.Key != "" {
		path = filepath.Join(e.Dir, req.Key+".json")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &InferenceError{Engine: e.Name(), Image: req.Name, Err: err}
	}

	dets, err := parseResponse(raw, e.ScoreFloor)
	if err != nil {
		return nil, &InferenceError{Engine: e.Name(), Image: req.Name, Err: fmt.Errorf("%s: %w", path, err)}
	}
	return dets, nil
}

// SidecarPath returns the JSON file consulted for an image name.
func (e *SidecarEngine) SidecarPath(name string) string {
	page := ""
	if i := strings.LastIndex(name, "#"); i >= 0 {
		var n int
		if _, err := fmt.Sscanf(name[i+1:], "%d", &n); err == nil {
			page = fmt.Sprintf("_p%03d", n)
			name = name[:i]
		}
	}
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(e.Dir, stem+page+".json")
}
