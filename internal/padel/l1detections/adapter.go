package l1detections

import (
	"fmt"
	"math"

	"github.com/banshee-data/padel.report/internal/config"
)

// DetectionAdapterError reports a malformed raw detection. The detection
// is dropped; the frame continues.
type DetectionAdapterError struct {
	FrameIndex int
	Label      string
	Reason     string
}

func (e *DetectionAdapterError) Error() string {
	return fmt.Sprintf("frame %d: dropped detection %q: %s", e.FrameIndex, e.Label, e.Reason)
}

// AdapterConfig holds normalisation parameters.
type AdapterConfig struct {
	ConfidenceFloor float64
	// FrameWidth and FrameHeight are the calibrated frame size, used to clip
	// boxes of frames that carry no size of their own.
	FrameWidth  int
	FrameHeight int
}

// DefaultAdapterConfig returns adapter configuration loaded from the
// canonical tuning defaults file.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfigFromTuning(config.MustLoadDefaultConfig())
}

// AdapterConfigFromTuning builds an AdapterConfig from a loaded TuningConfig.
func AdapterConfigFromTuning(cfg *config.TuningConfig) AdapterConfig {
	return AdapterConfig{ConfidenceFloor: cfg.GetConfidenceFloor()}
}

// Adapter turns raw detector output into Detections.
type Adapter struct {
	Config AdapterConfig
}

// NewAdapter creates an adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	return &Adapter{Config: cfg}
}

// Normalize converts one frame's raw detections. Malformed detections are
// returned as *DetectionAdapterError values alongside the accepted set;
// low-confidence detections are dropped without a warning.
func (a *Adapter) Normalize(frame Frame, raw []RawDetection) ([]Detection, []error) {
	var (
		out  []Detection
		errs []error
	)
	reject := func(r RawDetection, format string, args ...interface{}) {
		errs = append(errs, &DetectionAdapterError{
			FrameIndex: frame.Index,
			Label:      r.Label,
			Reason:     fmt.Sprintf(format, args...),
		})
	}

	for _, r := range raw {
		if !isFinite(r.Confidence) {
			reject(r, "non-finite confidence")
			continue
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			reject(r, "confidence %.3f outside [0,1]", r.Confidence)
			continue
		}
		if r.Confidence < a.Config.ConfidenceFloor {
			continue
		}
		class, err := ParseClass(r.Label)
		if err != nil {
			reject(r, "unknown class")
			continue
		}
		finite := true
		for _, v := range r.BBox {
			if !isFinite(v) {
				finite = false
				break
			}
		}
		if !finite {
			reject(r, "non-finite bbox %v", r.BBox)
			continue
		}
		box := BBox{X: r.BBox[0], Y: r.BBox[1], W: r.BBox[2], H: r.BBox[3]}
		if box.W < 0 || box.H < 0 {
			reject(r, "negative bbox size %.1fx%.1f", box.W, box.H)
			continue
		}
		width, height := a.frameSize(frame)
		if width <= 0 || height <= 0 {
			reject(r, "frame size unknown, cannot clip bbox")
			continue
		}
		box = box.Clip(float64(width), float64(height))
		if box.Area() == 0 {
			reject(r, "empty bbox after clipping")
			continue
		}
		out = append(out, Detection{
			FrameIndex: frame.Index,
			Class:      class,
			BBox:       box,
			Confidence: r.Confidence,
		})
	}
	return out, errs
}

// frameSize returns the frame's own size, falling back to the configured
// one.
func (a *Adapter) frameSize(frame Frame) (int, int) {
	if frame.Width > 0 && frame.Height > 0 {
		return frame.Width, frame.Height
	}
	return a.Config.FrameWidth, a.Config.FrameHeight
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
