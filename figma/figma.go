// Package figma pulls image fills out of a Figma file so they can be checked
// for watermarks.
package figma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	watermark "github.com/thxnhi/watermark-detection"
)

// DefaultBaseURL is the Figma REST API root.
const DefaultBaseURL = "https://api.figma.com"

// downloadParallelism bounds concurrent image downloads within a batch.
const downloadParallelism = 4

// maxImageBytes caps the size of a single downloaded image.
const maxImageBytes = 64 << 20

// imageNodeTypes are the node types whose fills may hold images.
var imageNodeTypes = map[string]bool{
	"FRAME":     true,
	"COMPONENT": true,
	"INSTANCE":  true,
	"IMAGE":     true,
	"RECTANGLE": true,
}

// Node is the subset of a Figma document node the walker needs.
type Node struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Fills    []Paint `json:"fills"`
	Children []Node  `json:"children"`
}

// Paint is a node fill.
type Paint struct {
	Type     string `json:"type"`
	ImageRef string `json:"imageRef"`
}

// Client reads one Figma file.
type Client struct {
	FileKey string
	Token   string
	BaseURL string

	httpClient *http.Client
	logger     golog.Logger
}

// NewClient returns a Client for fileKey authenticated with token.
func NewClient(fileKey, token string, logger golog.Logger) (*Client, error) {
	if fileKey == "" || token == "" {
		return nil, errors.New("figma file key and access token are required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		FileKey:    fileKey,
		Token:      token,
		BaseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("X-Figma-Token", c.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "get %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("get %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", url)
	}
	return nil
}

// ImageRefs returns the image references of every image fill in the file,
// in document order.
func (c *Client) ImageRefs(ctx context.Context) ([]string, error) {
	var file struct {
		Document Node `json:"document"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/files/%s", c.BaseURL, c.FileKey), &file); err != nil {
		return nil, err
	}
	refs := CollectImageRefs(file.Document)
	c.logger.Infow("found image fills", "file", c.FileKey, "count", len(refs))
	return refs, nil
}

// CollectImageRefs walks the node tree depth first. Only the first image fill
// of a node is taken.
func CollectImageRefs(root Node) []string {
	var refs []string
	var walk func(n Node)
	walk = func(n Node) {
		if imageNodeTypes[n.Type] {
			for _, fill := range n.Fills {
				if fill.Type != "IMAGE" {
					continue
				}
				if fill.ImageRef != "" {
					refs = append(refs, fill.ImageRef)
				}
				break
			}
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return refs
}

// ImageURLs resolves image references to download URLs. References Figma
// does not know are dropped.
func (c *Client) ImageURLs(ctx context.Context, refs []string) ([]string, error) {
	var fills struct {
		Meta struct {
			Images map[string]string `json:"images"`
		} `json:"meta"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/files/%s/images", c.BaseURL, c.FileKey), &fills); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		url, ok := fills.Meta.Images[ref]
		if !ok || url == "" {
			c.logger.Warnw("image reference has no download URL", "ref", ref)
			continue
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// Download fetches urls into dir as image_batch<batch>_<i>.png and returns
// the paths that were written, in url order. Individual failures, including
// payloads that do not decode as images, are logged and skipped.
func (c *Client) Download(ctx context.Context, urls []string, dir string, batch int) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}

	paths := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadParallelism)
	for i, url := range urls {
		g.Go(func() error {
			path := filepath.Join(dir, fmt.Sprintf("image_batch%d_%d.png", batch, i))
			if err := c.downloadOne(gctx, url, path); err != nil {
				c.logger.Warnw("download failed", "url", url, "error", err)
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			written = append(written, p)
		}
	}
	c.logger.Infow("downloaded batch", "batch", batch, "ok", len(written), "total", len(urls))
	return written, nil
}

func (c *Client) downloadOne(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	// Only keep payloads the batch runner can decode.
	_, format, err := watermark.DecodeImageBytes(data)
	if err != nil {
		return err
	}
	c.logger.Debugw("downloaded image", "url", url, "format", format, "bytes", len(data))
	return os.WriteFile(path, data, 0o644)
}

// ClearDir removes the regular files directly inside dir.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read %s", dir)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return errors.Wrapf(err, "remove %s", e.Name())
		}
	}
	return nil
}
