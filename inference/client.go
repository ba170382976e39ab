// Package inference talks to an external object-detection server holding the
// watermark model weights.
//
// The server is expected to expose:
//
//	POST /predict   multipart form: file (PNG), conf, iou
//	                -> {"detections": [{"box": [x1, y1, x2, y2], "confidence": c}]}
//	GET  /health    -> 200 when the model is loaded
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	watermark "github.com/thxnhi/watermark-detection"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// Detection is one box as returned by the server.
type Detection struct {
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
	Class      string     `json:"class,omitempty"`
}

type predictResponse struct {
	Detections []Detection `json:"detections"`
}

// Client is a watermark.Detector backed by an inference server. A Client is
// created once per process and is safe for reuse across images.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     golog.Logger
}

var _ watermark.Detector = (*Client)(nil)

// NewClient returns a Client for the server at baseURL. A zero timeout means
// requests are bounded only by their context.
func NewClient(baseURL string, timeout time.Duration, logger golog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("inference server URL is required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Detect sends img to the server and returns the regions it found. Boxes are
// passed through as returned; the server applies params.
func (c *Client) Detect(ctx context.Context, img image.Image, params watermark.Params) ([]watermark.Region, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if err := watermark.EncodePNG(part, img); err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(params.Confidence, 'f', -1, 64)); err != nil {
		return nil, errors.Wrap(err, "write conf")
	}
	if err := writer.WriteField("iou", strconv.FormatFloat(params.IoU, 'f', -1, 64)); err != nil {
		return nil, errors.Wrap(err, "write iou")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	c.logger.Debugw("inference done", "detections", len(result.Detections), "took", time.Since(start))
	return toRegions(result.Detections), nil
}

func toRegions(dets []Detection) []watermark.Region {
	regions := make([]watermark.Region, 0, len(dets))
	for _, d := range dets {
		regions = append(regions, watermark.Region{
			Box: watermark.BoundingBox{
				XMin: d.Box[0],
				YMin: d.Box[1],
				XMax: d.Box[2],
				YMax: d.Box[3],
			},
			Confidence: d.Confidence,
		})
	}
	return regions
}

// CheckHealth reports whether the server is up and has its model loaded.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "inference server unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("inference server unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
