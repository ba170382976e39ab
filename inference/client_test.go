package inference

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	watermark "github.com/thxnhi/watermark-detection"
)

func TestNewClient(t *testing.T) {
	_, err := NewClient("", time.Second, nil)
	test.That(t, err, test.ShouldNotBeNil)

	c, err := NewClient("http://localhost:5000/", time.Second, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.baseURL, test.ShouldEqual, "http://localhost:5000")
}

func TestDetect(t *testing.T) {
	var gotConf, gotIoU string
	var gotSize image.Point
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotConf = r.FormValue("conf")
		gotIoU = r.FormValue("iou")

		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		img, format, err := image.Decode(file)
		if err != nil || format != "png" {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		gotSize = img.Bounds().Size()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detections": []map[string]interface{}{
				{"box": []float64{1.5, 2, 30.25, 40}, "confidence": 0.7, "class": "watermark"},
				{"box": []float64{5, 6, 35, 41}, "confidence": 0.01},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 5*time.Second, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer c.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	img.Set(3, 3, color.White)

	regions, err := c.Detect(context.Background(), img, watermark.DefaultParams())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotConf, test.ShouldEqual, "0.004")
	test.That(t, gotIoU, test.ShouldEqual, "0")
	test.That(t, gotSize, test.ShouldResemble, image.Pt(64, 48))
	test.That(t, regions, test.ShouldResemble, []watermark.Region{
		{Box: watermark.BoundingBox{XMin: 1.5, YMin: 2, XMax: 30.25, YMax: 40}, Confidence: 0.7},
		{Box: watermark.BoundingBox{XMin: 5, YMin: 6, XMax: 35, YMax: 41}, Confidence: 0.01},
	})
}

func TestDetectNoDetections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detections": []}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 0, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	regions, err := c.Detect(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), watermark.DefaultParams())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, regions, test.ShouldBeEmpty)
}

func TestDetectErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = c.Detect(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), watermark.DefaultParams())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "500")
	test.That(t, err.Error(), test.ShouldContainSubstring, "model not loaded")

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer garbage.Close()
	c, err = NewClient(garbage.URL, time.Second, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = c.Detect(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), watermark.DefaultParams())
	test.That(t, err.Error(), test.ShouldContainSubstring, "decode response")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Detect(ctx, image.NewGray(image.Rect(0, 0, 4, 4)), watermark.DefaultParams())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCheckHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.CheckHealth(context.Background()), test.ShouldBeNil)

	healthy = false
	err = c.CheckHealth(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "503")
}
