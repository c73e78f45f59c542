//go:build !opencv

package vision

import (
	"context"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
)

// VideoSource is unavailable without the "opencv" build tag.
type VideoSource struct{}

// OpenVideo returns ErrNoOpenCV.
func OpenVideo(string) (*VideoSource, error) { return nil, ErrNoOpenCV }

// FPS returns zero.
func (*VideoSource) FPS() float64 { return 0 }

// Next returns ErrNoOpenCV.
func (*VideoSource) Next(context.Context) (l1detections.Frame, error) {
	return l1detections.Frame{}, ErrNoOpenCV
}

// Close is a no-op.
func (*VideoSource) Close() error { return nil }

// ONNXDetector is unavailable without the "opencv" build tag.
type ONNXDetector struct{}

// NewONNXDetector returns ErrNoOpenCV.
func NewONNXDetector(DetectorConfig) (*ONNXDetector, error) { return nil, ErrNoOpenCV }

// Detect returns ErrNoOpenCV.
func (*ONNXDetector) Detect(context.Context, l1detections.Frame, float64) ([]l1detections.RawDetection, error) {
	return nil, ErrNoOpenCV
}

// Close is a no-op.
func (*ONNXDetector) Close() error { return nil }
