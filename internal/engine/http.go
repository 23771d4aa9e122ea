package engine

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/ironsheep/detect-annotate/internal/detection"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes bounds the inference service reply. A raw 1600x1600 YOLOv8
// head with 9 classes is ~52k anchors x 13 floats.
const maxResponseBytes = 64 << 20

// wireDetection is one entry of a service reply in detection-list form.
type wireDetection struct {
	Box        []float64 `json:"box"` // [x1, y1, x2, y2] canvas pixels
	Confidence float64   `json:"confidence"`
	ClassID    int       `json:"class_id"`
}

// wireResponse accepts either a detection list or a raw YOLOv8 tensor.
type wireResponse struct {
	Detections []wireDetection `json:"detections"`
	Shape      []int           `json:"shape"`
	Data       []float32       `json:"data"`
	Error      string          `json:"error"`
}

// HTTPEngine sends each canvas as a PNG multipart upload to a remote inference
// service and parses its JSON reply.
//
// The service may answer with
//
//	{"detections": [{"box": [x1,y1,x2,y2], "confidence": 0.9, "class_id": 3}, ...]}
//
// or with the undecoded model head
//
//	{"shape": [1, 13, 52500], "data": [...]}
//
// in which case DecodeYOLOv8 is applied with ScoreFloor as the minimum score.
type HTTPEngine struct {
	URL        string
	ScoreFloor float64
	Client     *http.Client
}

// NewHTTPEngine returns an engine posting to url with the default HTTP client.
// Per-request deadlines come from the caller's context.
func NewHTTPEngine(url string, scoreFloor float64) *HTTPEngine {
	return &HTTPEngine{
		URL:        url,
		ScoreFloor: scoreFloor,
		Client:     &http.Client{},
	}
}

func (e *HTTPEngine) Name() string {
	return "http"
}

// Infer implements Engine. Any transport error, non-2xx status or malformed
// reply is returned as *InferenceError.
func (e *HTTPEngine) Infer(ctx context.Context, req Request) ([]detection.Detection, error) {
	dets, err := e.infer(ctx, req)
	if err != nil {
		return nil, &InferenceError{Engine: e.Name(), Image: req.Name, Err: err}
	}
	return dets, nil
}

func (e *HTTPEngine) infer(ctx context.Context, req Request) ([]detection.Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "canvas.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, req.Canvas); err != nil {
		return nil, fmt.Errorf("encode canvas: %w", err)
	}
	b := req.Canvas.Bounds()
	_ = writer.WriteField("width", fmt.Sprint(b.Dx()))
	_ = writer.WriteField("height", fmt.Sprint(b.Dy()))
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("inference service returned %s: %s", resp.Status, truncate(raw, 200))
	}

	return parseResponse(raw, e.ScoreFloor)
}

// parseResponse decodes a service reply in either supported form.
func parseResponse(raw []byte, scoreFloor float64) ([]detection.Detection, error) {
	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wr.Error != "" {
		return nil, fmt.Errorf("inference service error: %s", wr.Error)
	}

	if len(wr.Shape) > 0 {
		return DecodeYOLOv8(RawTensor{Shape: wr.Shape, Data: wr.Data}, scoreFloor)
	}

	dets := make([]detection.Detection, 0, len(wr.Detections))
	for i, w := range wr.Detections {
		if len(w.Box) != 4 {
			return nil, fmt.Errorf("detection %d: box has %d values, want 4", i, len(w.Box))
		}
		dets = append(dets, detection.Detection{
			ClassID:    w.ClassID,
			Confidence: w.Confidence,
			Box:        detection.Box{X1: w.Box[0], Y1: w.Box[1], X2: w.Box[2], Y2: w.Box[3]},
		})
	}
	if err := validateAll(dets); err != nil {
		return nil, err
	}
	return dets, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
