// Package config holds the run-time settings of the annotation pipeline.
//
// Settings are layered, lowest precedence first:
//
//  1. Default()
//  2. a YAML file (Load)
//  3. a .env file and DETECT_* environment variables (ApplyEnv)
//  4. command-line flags, applied by the caller
//
// Validate must be called once all layers are applied. An invalid
// configuration is the only fatal error of a run.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/detect-annotate/internal/imaging"
)

// EnvPrefix prefixes every environment variable the pipeline reads.
const EnvPrefix = "DETECT_"

// EngineConfig selects and configures the detection engine adapter.
type EngineConfig struct {
	Kind       string `yaml:"kind" validate:"oneof=http sidecar"`
	URL        string `yaml:"url" validate:"required_if=Kind http"`
	SidecarDir string `yaml:"sidecar_dir" validate:"required_if=Kind sidecar"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	File  string `yaml:"file"`
}

// Config is the complete pipeline configuration.
type Config struct {
	TargetSize          int           `yaml:"target_size" validate:"gt=0"`
	Letterbox           bool          `yaml:"letterbox"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	IoUThreshold        float64       `yaml:"iou_threshold" validate:"gte=0,lte=1"`
	ClassAwareDedupe    bool          `yaml:"class_aware_dedupe"`
	OutputQuality       int           `yaml:"output_quality" validate:"gte=1,lte=100"`
	OutputDir           string        `yaml:"output_dir" validate:"required"`
	OutputPrefix        string        `yaml:"output_prefix"`
	Workers             int           `yaml:"workers" validate:"gte=1"`
	EngineTimeout       time.Duration `yaml:"engine_timeout" validate:"gt=0"`
	PDFDPI              int           `yaml:"pdf_dpi" validate:"gte=36,lte=1200"`
	LineWidth           int           `yaml:"line_width" validate:"gte=1,lte=32"`
	LabelClassNames     bool          `yaml:"label_class_names"`

	Engine  EngineConfig           `yaml:"engine"`
	Palette []imaging.PaletteEntry `yaml:"palette"`
	Log     LogConfig              `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TargetSize:          1600,
		Letterbox:           true,
		ConfidenceThreshold: 0.3,
		IoUThreshold:        0.6,
		OutputQuality:       imaging.DefaultJPEGQuality,
		OutputDir:           "predicted_images",
		OutputPrefix:        "pred_",
		Workers:             DefaultWorkers(),
		EngineTimeout:       60 * time.Second,
		PDFDPI:              200,
		LineWidth:           2,
		Engine: EngineConfig{
			Kind: "http",
			URL:  "http://127.0.0.1:8000/predict",
		},
		Palette: imaging.DefaultPaletteEntries(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultWorkers returns the number of physical CPU cores, falling back to
// the logical count when it cannot be determined.
func DefaultWorkers() int {
	n, err := cpu.Counts(false)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// Load reads a YAML file over Default(). An empty path returns Default().
// Unknown keys are rejected so that typos do not silently fall back to
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from DETECT_* variables found by lookup
// (normally os.LookupEnv). Malformed values are reported together.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var problems []string

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s: %q is not an integer", EnvPrefix, key, v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s: %q is not a number", EnvPrefix, key, v))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s: %q is not a boolean", EnvPrefix, key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s: %q is not a duration", EnvPrefix, key, v))
				return
			}
			*dst = d
		}
	}

	integer("TARGET_SIZE", &c.TargetSize)
	boolean("LETTERBOX", &c.Letterbox)
	float("CONFIDENCE_THRESHOLD", &c.ConfidenceThreshold)
	float("IOU_THRESHOLD", &c.IoUThreshold)
	boolean("CLASS_AWARE_DEDUPE", &c.ClassAwareDedupe)
	integer("OUTPUT_QUALITY", &c.OutputQuality)
	str("OUTPUT_DIR", &c.OutputDir)
	str("OUTPUT_PREFIX", &c.OutputPrefix)
	integer("WORKERS", &c.Workers)
	duration("ENGINE_TIMEOUT", &c.EngineTimeout)
	integer("PDF_DPI", &c.PDFDPI)
	integer("LINE_WIDTH", &c.LineWidth)
	boolean("LABEL_CLASS_NAMES", &c.LabelClassNames)
	str("ENGINE_KIND", &c.Engine.Kind)
	str("ENGINE_URL", &c.Engine.URL)
	str("SIDECAR_DIR", &c.Engine.SidecarDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	c.Log.Level = strings.ToLower(c.Log.Level)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML key, which is what users write.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and returns *ValidationError describing all
// violations, or nil.
func (c Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if _, err := imaging.NewClassPalette(c.Palette); err != nil {
		problems = append(problems, "palette: "+err.Error())
	}

	if c.Engine.Kind == "http" && c.Engine.URL != "" {
		u, err := url.Parse(c.Engine.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("engine.url: %q is not an http(s) URL", c.Engine.URL))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// describe turns a validator failure into "key: reason".
func describe(fe validator.FieldError) string {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s: is required", key)
	case "oneof":
		return fmt.Sprintf("%s: %v is not one of [%s]", key, fe.Value(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s: must be greater than %s (got %v)", key, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s: must be at least %s (got %v)", key, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s: must be at most %s (got %v)", key, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s: failed %s check", key, fe.Tag())
	}
}

// ClassPalette builds the class palette described by the configuration.
func (c Config) ClassPalette() (*imaging.ClassPalette, error) {
	return imaging.NewClassPalette(c.Palette)
}
