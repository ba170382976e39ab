package watermark

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RunnerConfig configures a Runner. An empty ReportPath or Policy falls back
// to DefaultReportPath and SkipAndContinue; other fields are used as given.
type RunnerConfig struct {
	InputRoot        string
	OutputRoot       string
	ReportPath       string
	Params           Params
	EnhanceThreshold int
	Policy           FailurePolicy
	AppendReport     bool
	CreateDirs       bool
}

// RunnerConfigFrom converts a loaded Config into a RunnerConfig.
func RunnerConfigFrom(cfg Config) RunnerConfig {
	return RunnerConfig{
		InputRoot:        cfg.InputDir,
		OutputRoot:       cfg.OutputDir,
		ReportPath:       cfg.ReportPath,
		Params:           cfg.Params(),
		EnhanceThreshold: cfg.EnhanceThreshold,
		Policy:           cfg.Policy,
		AppendReport:     cfg.AppendReport,
		CreateDirs:       cfg.CreateDirs,
	}
}

// ImageResult is the outcome for one input image.
type ImageResult struct {
	Input   string
	Output  string
	Status  bool
	Regions []Region
	// Err is nil on success and an *ImageError otherwise.
	Err error
}

// Result is everything a batch run produced.
type Result struct {
	// Images has one entry per processed input, in input order. With
	// AbortOnError it stops at the failing image.
	Images []ImageResult
	// Report holds the verdicts of the successful images, in input order.
	Report Report
	// ReportWritten is set once the report file is on disk.
	ReportWritten bool
}

// Failed returns the results that carry an error.
func (r *Result) Failed() []ImageResult {
	var failed []ImageResult
	for _, ir := range r.Images {
		if ir.Err != nil {
			failed = append(failed, ir)
		}
	}
	return failed
}

// Runner drives enhancement, detection and annotation over a list of images.
// Images are processed one at a time in the order given.
type Runner struct {
	detector Detector
	cfg      RunnerConfig
	logger   golog.Logger
}

// NewRunner returns a Runner that uses det for every image. det is loaded by
// the caller and shared across runs.
func NewRunner(det Detector, cfg RunnerConfig, logger golog.Logger) (*Runner, error) {
	if det == nil {
		return nil, errors.New("runner must have a Detector")
	}
	if cfg.InputRoot == "" || cfg.OutputRoot == "" {
		return nil, errors.New("runner needs both an input root and an output root")
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = DefaultReportPath
	}
	if cfg.Policy == "" {
		cfg.Policy = SkipAndContinue
	}
	if cfg.Policy != SkipAndContinue && cfg.Policy != AbortOnError {
		return nil, errors.Errorf("unknown failure policy %q", cfg.Policy)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{detector: det, cfg: cfg, logger: logger}, nil
}

// Run processes paths and writes the report. The returned Result is never nil.
//
// Under SkipAndContinue, failed images are left out of the report and their
// errors are combined into the returned error once the report is written.
// Under AbortOnError the first failure is returned immediately and no report
// is written. A cancelled context stops the run between images the same way.
func (r *Runner) Run(ctx context.Context, paths []string) (*Result, error) {
	res := &Result{
		Images: make([]ImageResult, 0, len(paths)),
		Report: make(Report, 0, len(paths)),
	}

	var errs error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, "batch interrupted")
		}

		ir := r.processImage(ctx, path)
		res.Images = append(res.Images, ir)

		if ir.Err != nil {
			r.logger.Errorw("image failed", "path", path, "error", ir.Err)
			if r.cfg.Policy == AbortOnError {
				return res, ir.Err
			}
			errs = multierr.Append(errs, ir.Err)
			continue
		}

		r.logger.Debugw("image processed", "path", path, "output", ir.Output,
			"regions", len(ir.Regions), "status", ir.Status)
		res.Report = append(res.Report, WatermarkStatus{Image: ir.Input, Status: ir.Status})
	}

	if err := WriteReport(r.cfg.ReportPath, res.Report, r.cfg.AppendReport); err != nil {
		return res, multierr.Append(errs, &ImageError{Kind: KindReport, Err: err})
	}
	res.ReportWritten = true

	r.logger.Infow("batch complete", "images", len(paths),
		"watermarked", countWatermarked(res.Report), "failed", len(multierr.Errors(errs)),
		"report", r.cfg.ReportPath)
	return res, errs
}

// processImage runs the full pipeline for one path.
func (r *Runner) processImage(ctx context.Context, path string) ImageResult {
	ir := ImageResult{Input: path}
	fail := func(kind ErrorKind, err error) ImageResult {
		ir.Err = &ImageError{Path: path, Kind: kind, Err: err}
		return ir
	}

	out, err := OutputPath(path, r.cfg.InputRoot, r.cfg.OutputRoot)
	if err != nil {
		return fail(KindPath, err)
	}
	ir.Output = out

	original, err := LoadImage(path)
	if err != nil {
		return fail(KindDecode, err)
	}

	enhanced := Enhance(original, r.cfg.EnhanceThreshold)
	regions, err := r.detect(ctx, enhanced)
	if err != nil {
		return fail(KindDetect, err)
	}
	ir.Regions = regions

	status, annotated, err := classifySafe(path, original, regions)
	if err != nil {
		return fail(KindAnnotate, err)
	}
	ir.Status = status.Status

	if r.cfg.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fail(KindWrite, errors.Wrap(err, "create output directory"))
		}
	}
	if err := SaveImage(out, annotated); err != nil {
		return fail(KindWrite, err)
	}
	return ir
}

func (r *Runner) detect(ctx context.Context, img image.Image) (regions []Region, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("detector panicked: %v", p)
		}
	}()
	return r.detector.Detect(ctx, img, r.cfg.Params)
}

// classifySafe turns a drawing panic (for example on absurd coordinates) into
// an error so one image cannot take down the batch.
func classifySafe(path string, original image.Image, regions []Region) (
	status WatermarkStatus, annotated image.Image, err error,
) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("annotate panicked: %v", p)
		}
	}()
	status, annotated = Classify(path, original, regions)
	return status, annotated, nil
}

func countWatermarked(report Report) int {
	n := 0
	for _, s := range report {
		if s.Status {
			n++
		}
	}
	return n
}
