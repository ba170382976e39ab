// Package main is the gwatermark command line tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	watermark "github.com/thxnhi/watermark-detection"
	"github.com/thxnhi/watermark-detection/figma"
	"github.com/thxnhi/watermark-detection/inference"
)

// gwatermark detect --input-dir input_images --output-dir output_images
// gwatermark detect --detector luma input_images/a.png input_images/b.jpg
// gwatermark enhance --in image.png --out image_enhanced.png
// gwatermark figma --file-key KEY --token TOKEN --batch-size 10

const (
	flagConfig       = "config"
	flagDebug        = "debug"
	flagInputDir     = "input-dir"
	flagOutputDir    = "output-dir"
	flagReport       = "report"
	flagConf         = "conf"
	flagIoU          = "iou"
	flagThreshold    = "threshold"
	flagDetector     = "detector"
	flagInferenceURL = "inference-url"
	flagTimeout      = "timeout"
	flagPolicy       = "policy"
	flagAppend       = "append"
	flagMkdir        = "mkdir"
	flagIn           = "in"
	flagOut          = "out"
	flagFileKey      = "file-key"
	flagToken        = "token"
	flagBatchSize    = "batch-size"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "gwatermark",
		Usage: "flag visible watermarks in batches of images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` (.yaml, .yml or .json)",
				EnvVars: []string{"GWATERMARK_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = golog.NewDebugLogger("gwatermark")
			} else {
				logger = golog.NewDevelopmentLogger("gwatermark")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "detect watermarks in the input directory or the given files",
				ArgsUsage: "[image ...]",
				Flags:     batchFlags(),
				Action: func(c *cli.Context) error {
					return detectAction(c, logger)
				},
			},
			{
				Name:  "enhance",
				Usage: "write the enhanced variant of one image, as the detector sees it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagIn, Usage: "input image `PATH`", Required: true},
					&cli.StringFlag{Name: flagOut, Usage: "output image `PATH`", Required: true},
					&cli.IntFlag{Name: flagThreshold, Usage: "binarization threshold", Value: watermark.DefaultEnhanceThreshold},
				},
				Action: enhanceAction,
			},
			{
				Name:  "figma",
				Usage: "download the image fills of a Figma file and check them in batches",
				Flags: append(batchFlags(),
					&cli.StringFlag{Name: flagFileKey, Usage: "Figma file key", Required: true, EnvVars: []string{"FIGMA_FILE_KEY"}},
					&cli.StringFlag{Name: flagToken, Usage: "Figma access token", Required: true, EnvVars: []string{"FIGMA_ACCESS_TOKEN"}},
					&cli.IntFlag{Name: flagBatchSize, Usage: "images per batch", Value: 10},
				),
				Action: func(c *cli.Context) error {
					return figmaAction(c, logger)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if logger != nil {
			logger.Error(err)
		}
		os.Exit(1)
	}
}

func batchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagInputDir, Usage: "input root `DIR`", EnvVars: []string{"GWATERMARK_INPUT_DIR"}},
		&cli.StringFlag{Name: flagOutputDir, Usage: "output root `DIR`", EnvVars: []string{"GWATERMARK_OUTPUT_DIR"}},
		&cli.StringFlag{Name: flagReport, Usage: "report `FILE`", EnvVars: []string{"GWATERMARK_REPORT"}},
		&cli.Float64Flag{Name: flagConf, Usage: "detector confidence floor"},
		&cli.Float64Flag{Name: flagIoU, Usage: "overlap suppression threshold, 0 disables"},
		&cli.IntFlag{Name: flagThreshold, Usage: "enhancement binarization threshold"},
		&cli.StringFlag{Name: flagDetector, Usage: "detector backend: http or luma"},
		&cli.StringFlag{Name: flagInferenceURL, Usage: "inference server `URL`", EnvVars: []string{"GWATERMARK_INFERENCE_URL"}},
		&cli.DurationFlag{Name: flagTimeout, Usage: "per-request inference timeout"},
		&cli.StringFlag{Name: flagPolicy, Usage: "on image failure: skip or abort"},
		&cli.BoolFlag{Name: flagAppend, Usage: "append to an existing report instead of replacing it"},
		&cli.BoolFlag{Name: flagMkdir, Usage: "create missing output directories"},
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(c *cli.Context) (watermark.Config, error) {
	cfg, err := watermark.LoadConfig(c.String(flagConfig))
	if err != nil {
		return cfg, err
	}
	if c.IsSet(flagInputDir) {
		cfg.InputDir = c.String(flagInputDir)
	}
	if c.IsSet(flagOutputDir) {
		cfg.OutputDir = c.String(flagOutputDir)
	}
	if c.IsSet(flagReport) {
		cfg.ReportPath = c.String(flagReport)
	}
	if c.IsSet(flagConf) {
		cfg.Confidence = c.Float64(flagConf)
	}
	if c.IsSet(flagIoU) {
		cfg.IoU = c.Float64(flagIoU)
	}
	if c.IsSet(flagThreshold) {
		cfg.EnhanceThreshold = c.Int(flagThreshold)
	}
	if c.IsSet(flagDetector) {
		cfg.Detector.Kind = c.String(flagDetector)
	}
	if c.IsSet(flagInferenceURL) {
		cfg.Detector.URL = c.String(flagInferenceURL)
	}
	if c.IsSet(flagTimeout) {
		cfg.Detector.Timeout = c.Duration(flagTimeout)
	}
	if c.IsSet(flagPolicy) {
		cfg.Policy = watermark.FailurePolicy(c.String(flagPolicy))
	}
	if c.IsSet(flagAppend) {
		cfg.AppendReport = c.Bool(flagAppend)
	}
	if c.IsSet(flagMkdir) {
		cfg.CreateDirs = c.Bool(flagMkdir)
	}
	return cfg, cfg.Validate()
}

// newDetector loads the configured backend once for the whole process.
func newDetector(ctx context.Context, cfg watermark.Config, logger golog.Logger) (watermark.Detector, func(), error) {
	switch cfg.Detector.Kind {
	case watermark.DetectorLuma:
		return watermark.LumaDetector{}, func() {}, nil
	case watermark.DetectorHTTP:
		client, err := inference.NewClient(cfg.Detector.URL, cfg.Detector.Timeout, logger)
		if err != nil {
			return nil, nil, err
		}
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.CheckHealth(healthCtx); err != nil {
			logger.Warnw("inference server not available", "url", cfg.Detector.URL, "error", err)
		}
		return client, client.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown detector kind %q", cfg.Detector.Kind)
	}
}

func detectAction(c *cli.Context, logger golog.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths, err = watermark.ListImages(cfg.InputDir)
		if err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		logger.Infow("no images to process", "input_dir", cfg.InputDir)
		return nil
	}

	det, closeDet, err := newDetector(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDet()

	runner, err := watermark.NewRunner(det, watermark.RunnerConfigFrom(cfg), logger)
	if err != nil {
		return err
	}

	logger.Infow("processing images", "count", len(paths), "detector", cfg.Detector.Kind,
		"conf", cfg.Confidence, "iou", cfg.IoU)
	_, err = runner.Run(ctx, paths)
	return err
}

func enhanceAction(c *cli.Context) error {
	img, err := watermark.LoadImage(c.String(flagIn))
	if err != nil {
		return err
	}
	return watermark.SaveImage(c.String(flagOut), watermark.Enhance(img, c.Int(flagThreshold)))
}

func figmaAction(c *cli.Context, logger golog.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	// Successive batches accumulate into one report.
	cfg.AppendReport = true
	cfg.CreateDirs = true

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	client, err := figma.NewClient(c.String(flagFileKey), c.String(flagToken), logger)
	if err != nil {
		return err
	}
	refs, err := client.ImageRefs(ctx)
	if err != nil {
		return err
	}
	urls, err := client.ImageURLs(ctx, refs)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		logger.Info("no image fills found in the file")
		return nil
	}

	det, closeDet, err := newDetector(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDet()

	runner, err := watermark.NewRunner(det, watermark.RunnerConfigFrom(cfg), logger)
	if err != nil {
		return err
	}

	size := c.Int(flagBatchSize)
	if size <= 0 {
		return errors.Errorf("batch size must be positive, got %d", size)
	}
	var failed bool
	for start, batch := 0, 1; start < len(urls); start, batch = start+size, batch+1 {
		end := start + size
		if end > len(urls) {
			end = len(urls)
		}
		paths, err := client.Download(ctx, urls[start:end], cfg.InputDir, batch)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			if _, err := runner.Run(ctx, paths); err != nil {
				logger.Errorw("batch had failures", "batch", batch, "error", err)
				failed = true
			}
			if err := figma.ClearDir(cfg.InputDir); err != nil {
				return err
			}
		}
		logger.Infow("completed batch", "batch", batch)
	}
	if failed {
		return errors.New("one or more batches had failures")
	}
	return nil
}
