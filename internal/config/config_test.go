package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/detect-annotate/internal/imaging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.TargetSize != 1600 || !cfg.Letterbox {
		t.Errorf("canvas defaults: got %d letterbox=%v", cfg.TargetSize, cfg.Letterbox)
	}
	if cfg.IoUThreshold != 0.6 || cfg.ConfidenceThreshold != 0.3 {
		t.Errorf("threshold defaults: iou=%v conf=%v", cfg.IoUThreshold, cfg.ConfidenceThreshold)
	}
	if cfg.ClassAwareDedupe {
		t.Error("dedupe must be cross-class by default")
	}
	if cfg.OutputQuality != 90 || cfg.OutputPrefix != "pred_" || cfg.OutputDir != "predicted_images" {
		t.Errorf("output defaults: %d %q %q", cfg.OutputQuality, cfg.OutputPrefix, cfg.OutputDir)
	}
	if cfg.Workers < 1 {
		t.Errorf("workers: got %d", cfg.Workers)
	}
	if len(cfg.Palette) != 9 {
		t.Errorf("palette size: got %d, want 9", len(cfg.Palette))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "detect.yaml", `
target_size: 1280
letterbox: false
iou_threshold: 0.45
class_aware_dedupe: true
engine_timeout: 15s
engine:
  kind: sidecar
  sidecar_dir: /tmp/dets
palette:
  - name: cat
    color: "#ff0000"
  - name: dog
    color: "#00ff00"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TargetSize != 1280 || cfg.Letterbox {
		t.Errorf("canvas: got %d letterbox=%v", cfg.TargetSize, cfg.Letterbox)
	}
	if cfg.IoUThreshold != 0.45 || !cfg.ClassAwareDedupe {
		t.Errorf("dedupe: iou=%v classAware=%v", cfg.IoUThreshold, cfg.ClassAwareDedupe)
	}
	if cfg.EngineTimeout != 15*time.Second {
		t.Errorf("engine_timeout: got %v", cfg.EngineTimeout)
	}
	if cfg.Engine.Kind != "sidecar" || cfg.Engine.SidecarDir != "/tmp/dets" {
		t.Errorf("engine: %+v", cfg.Engine)
	}
	if len(cfg.Palette) != 2 || cfg.Palette[1].Name != "dog" {
		t.Errorf("palette: %+v", cfg.Palette)
	}
	// Untouched keys keep their defaults.
	if cfg.OutputPrefix != "pred_" || cfg.ConfidenceThreshold != 0.3 {
		t.Errorf("defaults lost: prefix=%q conf=%v", cfg.OutputPrefix, cfg.ConfidenceThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EmptyAndMissing(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	if err != nil {
		t.Fatalf("empty file should load: %v", err)
	}
	if cfg.TargetSize != Default().TargetSize {
		t.Errorf("empty file changed defaults")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeFile(t, "typo.yaml", "iou_treshold: 0.5\n"))
	if err == nil {
		t.Fatal("unknown key should be rejected")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"DETECT_TARGET_SIZE":    "1280",
		"DETECT_LETTERBOX":      "false",
		"DETECT_IOU_THRESHOLD":  "0.5",
		"DETECT_WORKERS":        "3",
		"DETECT_ENGINE_TIMEOUT": "2m",
		"DETECT_ENGINE_URL":     "http://infer:9000/detect",
		"DETECT_LOG_LEVEL":      "DEBUG",
		"UNRELATED":             "x",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.TargetSize != 1280 || cfg.Letterbox || cfg.IoUThreshold != 0.5 || cfg.Workers != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.EngineTimeout != 2*time.Minute {
		t.Errorf("engine timeout: got %v", cfg.EngineTimeout)
	}
	if cfg.Engine.URL != "http://infer:9000/detect" {
		t.Errorf("engine url: got %q", cfg.Engine.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level should be normalized, got %q", cfg.Log.Level)
	}
}

func TestApplyEnv_Malformed(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"DETECT_TARGET_SIZE":   "big",
		"DETECT_IOU_THRESHOLD": "high",
		"DETECT_LETTERBOX":     "maybe",
	}))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Problems) != 3 {
		t.Errorf("expected 3 problems, got %v", verr.Problems)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}

	path := writeFile(t, ".env", "DETECT_TEST_DOTENV_KEY=from-file\n")
	t.Setenv("DETECT_TEST_DOTENV_KEY", "")
	os.Unsetenv("DETECT_TEST_DOTENV_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("DETECT_TEST_DOTENV_KEY"); got != "from-file" {
		t.Errorf("got %q, want from-file", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero target", func(c *Config) { c.TargetSize = 0 }, "target_size"},
		{"iou above one", func(c *Config) { c.IoUThreshold = 1.2 }, "iou_threshold"},
		{"negative confidence", func(c *Config) { c.ConfidenceThreshold = -0.1 }, "confidence_threshold"},
		{"quality zero", func(c *Config) { c.OutputQuality = 0 }, "output_quality"},
		{"quality too high", func(c *Config) { c.OutputQuality = 101 }, "output_quality"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"bad engine kind", func(c *Config) { c.Engine.Kind = "onnx" }, "engine.kind"},
		{"http without url", func(c *Config) { c.Engine.URL = "" }, "engine.url"},
		{"url not http", func(c *Config) { c.Engine.URL = "ftp://host/x" }, "engine.url"},
		{"sidecar without dir", func(c *Config) { c.Engine = EngineConfig{Kind: "sidecar"} }, "engine.sidecar_dir"},
		{"empty palette", func(c *Config) { c.Palette = nil }, "palette"},
		{"bad palette color", func(c *Config) { c.Palette = []imaging.PaletteEntry{{Name: "x", Color: "red"}} }, "palette"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"zero timeout", func(c *Config) { c.EngineTimeout = 0 }, "engine_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !strings.Contains(verr.Error(), tt.field+":") {
				t.Errorf("error should name %s: %v", tt.field, verr)
			}
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.TargetSize = -1
	cfg.IoUThreshold = 2
	cfg.Workers = 0

	var verr *ValidationError
	if !errors.As(cfg.Validate(), &verr) {
		t.Fatal("expected *ValidationError")
	}
	if len(verr.Problems) != 3 {
		t.Errorf("expected 3 problems, got %v", verr.Problems)
	}
}
