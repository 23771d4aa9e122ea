package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironsheep/detect-annotate/internal/detection"
	"github.com/ironsheep/detect-annotate/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "postprocess_image", "map_boxes").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithField("tool", params.Name).Warnf("tool failed: %v", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "postprocess_image":
		return s.handlePostprocessImage(ctx, args)
	case "letterbox_transform":
		return s.handleLetterboxTransform(args)
	case "map_boxes":
		return s.handleMapBoxes(args)
	case "dedupe_detections":
		return s.handleDedupeDetections(args)
	case "palette":
		return s.handlePalette()
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes tool arguments. Missing arguments decode as {}.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// labeledDetection is a detection as reported to clients.
type labeledDetection struct {
	detection.Detection
	ClassName string `json:"class_name"`
	Label     string `json:"label"`
}

func (s *Server) labeled(dets []detection.Detection) []labeledDetection {
	out := make([]labeledDetection, len(dets))
	for i, d := range dets {
		out[i] = labeledDetection{Detection: d, ClassName: s.palette.Name(d.ClassID), Label: d.Label()}
	}
	return out
}

// === Pipeline ===

type postprocessImageArgs struct {
	Path      string `json:"path"`
	Write     *bool  `json:"write"`
	OutputDir string `json:"output_dir"`
	Reload    bool   `json:"reload"`
}

type postprocessImageResult struct {
	Path       string             `json:"path"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Transform  imaging.Transform  `json:"transform"`
	Candidates int                `json:"candidates"`
	Detections []labeledDetection `json:"detections"`
	OutputPath string             `json:"output_path,omitempty"`
}

func (s *Server) handlePostprocessImage(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a postprocessImageArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if a.Reload {
		s.cache.Evict(a.Path)
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	out, err := s.proc.Detect(ctx, a.Path, img)
	if err != nil {
		return nil, err
	}

	res := postprocessImageResult{
		Path:       a.Path,
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		Transform:  out.Transform,
		Candidates: out.Candidates,
		Detections: s.labeled(out.Detections),
	}

	if a.Write == nil || *a.Write {
		opts := s.proc.Options()
		dir := opts.OutputDir
		if a.OutputDir != "" {
			dir = a.OutputDir
		}
		annotated := s.proc.Annotate(img, out.Detections)
		name := imaging.OutputName(opts.OutputPrefix, imaging.Stem(a.Path))
		res.OutputPath, err = imaging.WriteJPEG(annotated, dir, name, opts.OutputQuality)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Geometry ===

type transformArgs struct {
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	TargetSize int   `json:"target_size"`
	Letterbox  *bool `json:"letterbox"`
}

// transform computes the Transform for a, filling unset fields from the
// server's pipeline options.
func (s *Server) transform(a transformArgs) (imaging.Transform, error) {
	opts := s.proc.Options()
	target := a.TargetSize
	if target == 0 {
		target = opts.TargetSize
	}
	letterbox := opts.Letterbox
	if a.Letterbox != nil {
		letterbox = *a.Letterbox
	}
	return imaging.ComputeTransform(a.Width, a.Height, target, letterbox)
}

type letterboxTransformResult struct {
	imaging.Transform
	CanvasWidth  int `json:"canvas_width"`
	CanvasHeight int `json:"canvas_height"`
}

func (s *Server) handleLetterboxTransform(args json.RawMessage) (interface{}, error) {
	var a transformArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	t, err := s.transform(a)
	if err != nil {
		return nil, err
	}
	w, h := t.CanvasSize()
	return letterboxTransformResult{Transform: t, CanvasWidth: w, CanvasHeight: h}, nil
}

type mapBoxesArgs struct {
	transformArgs
	Direction string          `json:"direction"`
	Boxes     []detection.Box `json:"boxes"`
}

type mapBoxesResult struct {
	Direction string            `json:"direction"`
	Transform imaging.Transform `json:"transform"`
	Boxes     []detection.Box   `json:"boxes"`
}

func (s *Server) handleMapBoxes(args json.RawMessage) (interface{}, error) {
	var a mapBoxesArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Direction == "" {
		a.Direction = "to_original"
	}

	t, err := s.transform(a.transformArgs)
	if err != nil {
		return nil, err
	}

	var mapBox func(detection.Box) detection.Box
	switch a.Direction {
	case "to_original":
		mapBox = t.ToOriginal
	case "to_canvas":
		mapBox = t.ToCanvas
	default:
		return nil, fmt.Errorf("direction must be to_original or to_canvas, got %q", a.Direction)
	}

	out := make([]detection.Box, len(a.Boxes))
	for i, b := range a.Boxes {
		out[i] = mapBox(b)
	}
	return mapBoxesResult{Direction: a.Direction, Transform: t, Boxes: out}, nil
}

// === Suppression ===

type dedupeDetectionsArgs struct {
	Detections    []detection.Detection `json:"detections"`
	IoUThreshold  *float64              `json:"iou_threshold"`
	MinConfidence *float64              `json:"min_confidence"`
	ClassAware    *bool                 `json:"class_aware"`
}

type dedupeDetectionsResult struct {
	Input      int                `json:"input"`
	Filtered   int                `json:"filtered"`
	Suppressed int                `json:"suppressed"`
	Detections []labeledDetection `json:"detections"`
}

func (s *Server) handleDedupeDetections(args json.RawMessage) (interface{}, error) {
	var a dedupeDetectionsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}

	opts := s.proc.Options()
	iou := opts.IoUThreshold
	if a.IoUThreshold != nil {
		iou = *a.IoUThreshold
	}
	if iou < 0 || iou > 1 {
		return nil, fmt.Errorf("iou_threshold must be in [0, 1], got %v", iou)
	}
	minConf := opts.ConfidenceThreshold
	if a.MinConfidence != nil {
		minConf = *a.MinConfidence
	}
	if minConf < 0 || minConf > 1 {
		return nil, fmt.Errorf("min_confidence must be in [0, 1], got %v", minConf)
	}
	classAware := opts.ClassAwareDedupe
	if a.ClassAware != nil {
		classAware = *a.ClassAware
	}

	for i, d := range a.Detections {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
	}

	confident := detection.FilterByConfidence(a.Detections, minConf)
	var kept []detection.Detection
	if classAware {
		kept = detection.DedupePerClass(confident, iou)
	} else {
		kept = detection.Dedupe(confident, iou)
	}

	return dedupeDetectionsResult{
		Input:      len(a.Detections),
		Filtered:   len(a.Detections) - len(confident),
		Suppressed: len(confident) - len(kept),
		Detections: s.labeled(kept),
	}, nil
}

// === Palette ===

func (s *Server) handlePalette() (interface{}, error) {
	return map[string]interface{}{
		"classes": s.palette.Legend(),
	}, nil
}
