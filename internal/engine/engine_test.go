package engine

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ironsheep/detect-annotate/internal/detection"
)

func testCanvas() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 64, 64))
}

func TestDecodeYOLOv8(t *testing.T) {
	// 2 classes, 3 anchors.
	// channels: cx, cy, w, h, class0, class1
	data := []float32{
		50, 10, 30, // cx
		50, 10, 30, // cy
		20, 4, 0, // w (anchor 2 degenerate)
		40, 4, 10, // h
		0.9, 0.05, 0.8, // class 0
		0.1, 0.02, 0.95, // class 1
	}

	dets, err := DecodeYOLOv8(RawTensor{Shape: []int{1, 6, 3}, Data: data}, 0.1)
	if err != nil {
		t.Fatalf("DecodeYOLOv8 failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection (low score and zero width skipped), got %d: %v", len(dets), dets)
	}

	d := dets[0]
	if d.ClassID != 0 {
		t.Errorf("ClassID: got %d, want 0", d.ClassID)
	}
	want := detection.Box{X1: 40, Y1: 30, X2: 60, Y2: 70}
	if d.Box != want {
		t.Errorf("Box: got %v, want %v", d.Box, want)
	}
	if d.Confidence < 0.89 || d.Confidence > 0.91 {
		t.Errorf("Confidence: got %v", d.Confidence)
	}
}

func TestDecodeYOLOv8_ArgmaxClass(t *testing.T) {
	data := []float32{
		10, 10, 4, 4, // box
		0.2, 0.7, 0.4, // three classes
	}
	dets, err := DecodeYOLOv8(RawTensor{Shape: []int{1, 7, 1}, Data: data}, 0)
	if err != nil {
		t.Fatalf("DecodeYOLOv8 failed: %v", err)
	}
	if len(dets) != 1 || dets[0].ClassID != 1 {
		t.Errorf("expected class 1, got %v", dets)
	}
}

func TestDecodeYOLOv8_BadShape(t *testing.T) {
	tests := []RawTensor{
		{Shape: []int{6, 3}, Data: make([]float32, 18)},
		{Shape: []int{1, 4, 3}, Data: make([]float32, 12)},
		{Shape: []int{1, 6, 3}, Data: make([]float32, 17)},
		{Shape: []int{2, 6, 3}, Data: make([]float32, 36)},
	}
	for _, tt := range tests {
		if _, err := DecodeYOLOv8(tt, 0.1); err == nil {
			t.Errorf("shape %v with %d values should fail", tt.Shape, len(tt.Data))
		}
	}
}

func TestHTTPEngine_DetectionList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		img, err := png.Decode(file)
		if err != nil {
			t.Errorf("canvas is not a PNG: %v", err)
		} else if img.Bounds().Dx() != 64 {
			t.Errorf("canvas width: got %d", img.Bounds().Dx())
		}
		if got := r.FormValue("width"); got != "64" {
			t.Errorf("width field: got %q", got)
		}

		io.WriteString(w, `{"detections":[
			{"box":[10,10,110,110],"confidence":0.9,"class_id":0},
			{"box":[15,15,115,115],"confidence":0.8,"class_id":4}
		]}`)
	}))
	defer srv.Close()

	eng := NewHTTPEngine(srv.URL, 0.01)
	dets, err := eng.Infer(context.Background(), Request{Name: "a.jpg", Canvas: testCanvas()})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}
	if dets[1].ClassID != 4 || dets[1].Box.X2 != 115 {
		t.Errorf("second detection: got %+v", dets[1])
	}
}

func TestHTTPEngine_RawTensor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"shape":[1,5,2],"data":[10,20, 10,20, 4,4, 4,4, 0.9,0.001]}`)
	}))
	defer srv.Close()

	dets, err := NewHTTPEngine(srv.URL, 0.01).Infer(context.Background(), Request{Name: "a.jpg", Canvas: testCanvas()})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection above floor, got %d", len(dets))
	}
}

func TestHTTPEngine_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"not json", http.StatusOK, "<html>"},
		{"service error field", http.StatusOK, `{"error":"model not loaded"}`},
		{"short box", http.StatusOK, `{"detections":[{"box":[1,2,3],"confidence":0.5,"class_id":0}]}`},
		{"inverted box", http.StatusOK, `{"detections":[{"box":[10,10,5,5],"confidence":0.5,"class_id":0}]}`},
		{"confidence out of range", http.StatusOK, `{"detections":[{"box":[0,0,5,5],"confidence":1.5,"class_id":0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewHTTPEngine(srv.URL, 0.01).Infer(context.Background(), Request{Name: "x.png", Canvas: testCanvas()})
			var infErr *InferenceError
			if !errors.As(err, &infErr) {
				t.Fatalf("expected *InferenceError, got %v", err)
			}
			if infErr.Image != "x.png" || infErr.Engine != "http" {
				t.Errorf("error fields: %+v", infErr)
			}
		})
	}
}

func TestHTTPEngine_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPEngine(srv.URL, 0.01).Infer(ctx, Request{Name: "slow.png", Canvas: testCanvas()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSidecarEngine(t *testing.T) {
	dir := t.TempDir()
	body := `{"detections":[{"box":[0,0,50,50],"confidence":0.7,"class_id":2}]}`
	if err := os.WriteFile(filepath.Join(dir, "scan 01.json"), []byte(body), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	eng := NewSidecarEngine(dir, 0.01)
	dets, err := eng.Infer(context.Background(), Request{Name: "/in/scan 01.jpeg", Canvas: testCanvas()})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(dets) != 1 || dets[0].ClassID != 2 {
		t.Errorf("got %v", dets)
	}

	_, err = eng.Infer(context.Background(), Request{Name: "/in/missing.png", Canvas: testCanvas()})
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Errorf("missing sidecar: expected *InferenceError, got %v", err)
	}
}

func TestSidecarEngine_Key(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a_page.json": `{"detections":[{"box":[0,0,5,5],"confidence":0.7,"class_id":1}]}`,
		"b_page.json": `{"detections":[{"box":[0,0,5,5],"confidence":0.7,"class_id":2}]}`,
		"page.json":   `{"detections":[]}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	eng := NewSidecarEngine(dir, 0.01)
	for _, tt := range []struct {
		name, key string
		class     int
	}{
		{"/in/a/page.png", "a_page", 1},
		{"/in/b/page.png", "b_page", 2},
	} {
		dets, err := eng.Infer(context.Background(), Request{Name: tt.name, Key: tt.key, Canvas: testCanvas()})
		if err != nil {
			t.Fatalf("Infer(%s) failed: %v", tt.key, err)
		}
		if len(dets) != 1 || dets[0].ClassID != tt.class {
			t.Errorf("Infer(%s): got %v, want class %d", tt.key, dets, tt.class)
		}
	}
}

func TestSidecarEngine_Path(t *testing.T) {
	eng := NewSidecarEngine("/dets", 0)
	tests := []struct {
		name string
		want string
	}{
		{"/in/a.jpg", "/dets/a.json"},
		{"report.pdf#3", "/dets/report_p003.json"},
		{"odd#name.png", "/dets/odd#name.json"},
	}
	for _, tt := range tests {
		if got := eng.SidecarPath(tt.name); got != tt.want {
			t.Errorf("SidecarPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSidecarEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSidecarEngine(t.TempDir(), 0).Infer(ctx, Request{Name: "a.png"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
