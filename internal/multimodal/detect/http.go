package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/imageio"
)

// HTTPDetectorConfig holds configuration for a remote YOLO-style inference server.
type HTTPDetectorConfig struct {
	URL           string  // e.g. http://detector:8001/predict
	MinConfidence float64 // detections below this are dropped; 0 keeps everything
	Labels        Labels  // used when the server returns only class ids
}

// HTTPDetector posts images to an inference server as a multipart "file" field and reads
// back {"detections": [{"class_id", "class", "confidence", "box"}]}.
type HTTPDetector struct {
	cfg        HTTPDetectorConfig
	httpClient *http.Client
}

func NewHTTPDetector(cfg HTTPDetectorConfig) *HTTPDetector {
	if cfg.Labels == nil {
		cfg.Labels = COCOLabels
	}
	return &HTTPDetector{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (d *HTTPDetector) Name() string { return "http-yolo" }

type inferenceDetection struct {
	ClassID    *int       `json:"class_id"`
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2 in pixels
}

func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	const op = "detect.http"

	if d.cfg.URL == "" {
		return nil, apperr.Unavailable(op, apperr.ErrNotConfigured)
	}

	encoded, err := imageio.EncodeJPEG(img)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(encoded); err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("copy image data: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, body)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream(op, 0, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperr.Upstream(op, resp.StatusCode,
			fmt.Errorf("inference failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var result struct {
		Detections []inferenceDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.UpstreamError(op, fmt.Errorf("decode response: %w", err))
	}

	detections := make([]Detection, 0, len(result.Detections))
	for _, det := range result.Detections {
		if det.Confidence < d.cfg.MinConfidence {
			continue
		}
		detections = append(detections, d.toDetection(det))
	}
	return detections, nil
}

func (d *HTTPDetector) toDetection(det inferenceDetection) Detection {
	classID := -1
	if det.ClassID != nil {
		classID = *det.ClassID
	}
	label := det.Class
	if label == "" {
		label = d.cfg.Labels.Name(classID)
	}
	return Detection{
		ClassID:    classID,
		Label:      label,
		Confidence: det.Confidence,
		Box: image.Rect(
			int(det.Box[0]), int(det.Box[1]),
			int(det.Box[2]), int(det.Box[3]),
		),
	}
}

// CheckHealth calls <scheme>://<host>/health on the inference server.
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	if d.cfg.URL == "" {
		return apperr.ErrNotConfigured
	}
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse detector url: %w", err)
	}
	u.Path = "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector unhealthy: %d", resp.StatusCode)
	}
	return nil
}
