package detect

import (
	"context"
	"image"
)

// Detection is one object instance found by the detector.
type Detection struct {
	ClassID    int             `json:"class_id"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Detector maps a pixel array to labeled detections, in the detector's own ranking order.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
	Name() string
}
