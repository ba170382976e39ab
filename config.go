package watermark

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FailurePolicy decides what a Runner does when an image fails.
type FailurePolicy string

const (
	// SkipAndContinue records the failure and moves on to the next image.
	SkipAndContinue FailurePolicy = "skip"
	// AbortOnError stops the batch at the first failure without writing a
	// report.
	AbortOnError FailurePolicy = "abort"
)

// Detector backends selectable from configuration.
const (
	DetectorHTTP = "http"
	DetectorLuma = "luma"
)

// DetectorConfig selects and configures the detection backend.
type DetectorConfig struct {
	Kind    string        `yaml:"kind" json:"kind"`
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Config is the on-disk configuration of a batch run.
type Config struct {
	InputDir         string         `yaml:"input_dir" json:"input_dir"`
	OutputDir        string         `yaml:"output_dir" json:"output_dir"`
	ReportPath       string         `yaml:"report_path" json:"report_path"`
	Confidence       float64        `yaml:"confidence" json:"confidence"`
	IoU              float64        `yaml:"iou" json:"iou"`
	EnhanceThreshold int            `yaml:"enhance_threshold" json:"enhance_threshold"`
	Policy           FailurePolicy  `yaml:"policy" json:"policy"`
	AppendReport     bool           `yaml:"append_report" json:"append_report"`
	CreateDirs       bool           `yaml:"create_dirs" json:"create_dirs"`
	Detector         DetectorConfig `yaml:"detector" json:"detector"`
}

// DefaultConfig returns the settings the tool runs with when nothing is
// configured.
func DefaultConfig() Config {
	return Config{
		InputDir:         "input_images",
		OutputDir:        "output_images",
		ReportPath:       DefaultReportPath,
		Confidence:       DefaultConfidence,
		IoU:              DefaultIoU,
		EnhanceThreshold: DefaultEnhanceThreshold,
		Policy:           SkipAndContinue,
		Detector: DetectorConfig{
			Kind:    DetectorHTTP,
			URL:     "http://localhost:5000",
			Timeout: 60 * time.Second,
		},
	}
}

// LoadConfig reads a YAML or JSON config file on top of DefaultConfig. An
// empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, errors.Errorf("unsupported config file format %q (supported: .yaml, .yml, .json)", ext)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the config describes a runnable batch.
func (c Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("input_dir is required")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return errors.Errorf("confidence must be in [0, 1], got %v", c.Confidence)
	}
	if c.IoU < 0 || c.IoU > 1 {
		return errors.Errorf("iou must be in [0, 1], got %v", c.IoU)
	}
	if c.EnhanceThreshold < 0 || c.EnhanceThreshold > 255 {
		return errors.Errorf("enhance_threshold must be in [0, 255], got %d", c.EnhanceThreshold)
	}
	switch c.Policy {
	case SkipAndContinue, AbortOnError:
	default:
		return errors.Errorf("unknown failure policy %q", c.Policy)
	}
	switch c.Detector.Kind {
	case DetectorHTTP:
		if c.Detector.URL == "" {
			return errors.New("detector.url is required for the http detector")
		}
	case DetectorLuma:
	default:
		return errors.Errorf("unknown detector kind %q", c.Detector.Kind)
	}
	return nil
}

// Params returns the detector parameters from the config.
func (c Config) Params() Params {
	return Params{Confidence: c.Confidence, IoU: c.IoU}
}
