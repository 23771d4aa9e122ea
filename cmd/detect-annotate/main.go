package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/detect-annotate/internal/config"
	"github.com/ironsheep/detect-annotate/internal/engine"
	"github.com/ironsheep/detect-annotate/internal/imaging"
	"github.com/ironsheep/detect-annotate/internal/logging"
	"github.com/ironsheep/detect-annotate/internal/pipeline"
	"github.com/ironsheep/detect-annotate/internal/server"
	"github.com/ironsheep/detect-annotate/internal/source"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `detect-annotate - draw deduplicated object detections onto images

Usage:
  detect-annotate run [flags] <image|pdf|directory>
  detect-annotate serve [flags]
  detect-annotate --version
  detect-annotate --help

run    processes every .jpg/.jpeg/.png (and every PDF page) under the input
       and writes <prefix><name>.jpg files into the output directory.
serve  exposes the pipeline as MCP tools over stdin/stdout.

Configuration is layered: built-in defaults, -config YAML file, .env file and
DETECT_* environment variables, then flags.

Flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		newFlagSet("run", &cliFlags{}).PrintDefaults()
		return 2
	}

	switch args[0] {
	case "--version", "-v", "version":
		fmt.Printf("detect-annotate %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return 0
	case "--help", "-h", "help":
		fmt.Print(usage)
		fs := newFlagSet("run", &cliFlags{})
		fs.SetOutput(os.Stdout)
		fs.PrintDefaults()
		return 0
	case "run", "serve":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	mode := args[0]
	var cf cliFlags
	fs := newFlagSet(mode, &cf)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := loadConfig(fs, &cf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "detect-annotate: %v\n", err)
		return 1
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "detect-annotate: %v\n", err)
		return 1
	}

	palette, err := cfg.ClassPalette()
	if err != nil {
		logger.Errorf("palette: %v", err)
		return 1
	}
	logLegend(logger, palette)

	eng := newEngine(cfg)
	proc := pipeline.NewProcessor(eng, palette, pipeline.OptionsFromConfig(cfg), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "serve" {
		logger.Infof("detect-annotate %s serving MCP on stdio (engine %s)", Version, eng.Name())
		if err := server.New(proc, palette, logger, Version).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Server error: %v", err)
			return 1
		}
		return 0
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "detect-annotate run: exactly one input path is required")
		return 2
	}
	items, err := source.Discover(fs.Arg(0))
	if err != nil {
		logger.Errorf("input: %v", err)
		return 1
	}
	if len(items) == 0 {
		logger.Warnf("no images found under %s", fs.Arg(0))
		return 0
	}

	report := proc.Run(ctx, items, cfg.Workers)
	fmt.Printf("processed %d of %d images (%d skipped), %d detections, outputs in %s\n",
		report.Processed, report.Total, report.Skipped, report.Detections, cfg.OutputDir)
	for _, f := range report.Failures {
		fmt.Printf("  skipped %s [%s]: %v\n", f.Item.Name(), f.Kind, f.Err)
	}
	return 0
}

// cliFlags mirrors the configuration options that can be set per run.
type cliFlags struct {
	configPath string
	envPath    string

	targetSize      int
	letterbox       bool
	confidence      float64
	iou             float64
	classAware      bool
	quality         int
	outputDir       string
	prefix          string
	workers         int
	engineTimeout   time.Duration
	pdfDPI          int
	engineKind      string
	engineURL       string
	sidecarDir      string
	lineWidth       int
	labelClassNames bool
	logLevel        string
	logFile         string
}

func newFlagSet(name string, cf *cliFlags) *flag.FlagSet {
	d := config.Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&cf.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&cf.envPath, "env", ".env", "dotenv file with DETECT_* variables (ignored if missing)")

	fs.IntVar(&cf.targetSize, "target-size", d.TargetSize, "inference canvas size in pixels")
	fs.BoolVar(&cf.letterbox, "letterbox", d.Letterbox, "pad the resized image to a square canvas")
	fs.Float64Var(&cf.confidence, "conf", d.ConfidenceThreshold, "drop detections below this confidence")
	fs.Float64Var(&cf.iou, "iou", d.IoUThreshold, "IoU above which an overlapping detection is a duplicate")
	fs.BoolVar(&cf.classAware, "class-aware", d.ClassAwareDedupe, "only suppress overlaps within the same class")
	fs.IntVar(&cf.quality, "quality", d.OutputQuality, "JPEG quality 1-100")
	fs.StringVar(&cf.outputDir, "out", d.OutputDir, "output directory")
	fs.StringVar(&cf.prefix, "prefix", d.OutputPrefix, "output file name prefix")
	fs.IntVar(&cf.workers, "workers", d.Workers, "images processed in parallel")
	fs.DurationVar(&cf.engineTimeout, "timeout", d.EngineTimeout, "per-image inference timeout")
	fs.IntVar(&cf.pdfDPI, "dpi", d.PDFDPI, "PDF rasterization resolution")
	fs.StringVar(&cf.engineKind, "engine", d.Engine.Kind, "detection engine: http or sidecar")
	fs.StringVar(&cf.engineURL, "engine-url", d.Engine.URL, "inference service URL (http engine)")
	fs.StringVar(&cf.sidecarDir, "sidecar-dir", d.Engine.SidecarDir, "directory of precomputed detections (sidecar engine)")
	fs.IntVar(&cf.lineWidth, "line-width", d.LineWidth, "box outline width in pixels")
	fs.BoolVar(&cf.labelClassNames, "class-names", d.LabelClassNames, "include class names in labels")
	fs.StringVar(&cf.logLevel, "log-level", d.Log.Level, "log level")
	fs.StringVar(&cf.logFile, "log-file", d.Log.File, "also log to this rotating file")

	return fs
}

// loadConfig layers defaults, YAML, .env, environment and explicitly set
// flags, then validates the result.
func loadConfig(fs *flag.FlagSet, cf *cliFlags) (config.Config, error) {
	if err := config.LoadDotEnv(cf.envPath); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target-size":
			cfg.TargetSize = cf.targetSize
		case "letterbox":
			cfg.Letterbox = cf.letterbox
		case "conf":
			cfg.ConfidenceThreshold = cf.confidence
		case "iou":
			cfg.IoUThreshold = cf.iou
		case "class-aware":
			cfg.ClassAwareDedupe = cf.classAware
		case "quality":
			cfg.OutputQuality = cf.quality
		case "out":
			cfg.OutputDir = cf.outputDir
		case "prefix":
			cfg.OutputPrefix = cf.prefix
		case "workers":
			cfg.Workers = cf.workers
		case "timeout":
			cfg.EngineTimeout = cf.engineTimeout
		case "dpi":
			cfg.PDFDPI = cf.pdfDPI
		case "engine":
			cfg.Engine.Kind = cf.engineKind
		case "engine-url":
			cfg.Engine.URL = cf.engineURL
		case "sidecar-dir":
			cfg.Engine.SidecarDir = cf.sidecarDir
		case "line-width":
			cfg.LineWidth = cf.lineWidth
		case "class-names":
			cfg.LabelClassNames = cf.labelClassNames
		case "log-level":
			cfg.Log.Level = cf.logLevel
		case "log-file":
			cfg.Log.File = cf.logFile
		}
	})

	return cfg, cfg.Validate()
}

func newEngine(cfg config.Config) engine.Engine {
	if cfg.Engine.Kind == "sidecar" {
		return engine.NewSidecarEngine(cfg.Engine.SidecarDir, cfg.ConfidenceThreshold)
	}
	return engine.NewHTTPEngine(cfg.Engine.URL, cfg.ConfidenceThreshold)
}

// logLegend prints the class color key once per process.
func logLegend(logger *logrus.Logger, palette *imaging.ClassPalette) {
	for _, c := range palette.Legend() {
		logger.WithFields(logrus.Fields{
			"class_id": c.ClassID,
			"class":    c.Name,
			"color":    c.Hex,
		}).Info("palette")
	}
}
