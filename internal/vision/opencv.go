//go:build opencv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
)

// VideoSource decodes a video file frame by frame. It is not safe for
// concurrent use; the pipeline reads it from a single goroutine.
type VideoSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	next    int
	fps     float64
}

// OpenVideo opens the video file at path.
func OpenVideo(path string) (*VideoSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	v := &VideoSource{
		capture: capture,
		mat:     gocv.NewMat(),
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}
	diagf("opened %s: %.0fx%.0f at %.2f fps, %.0f frames", path,
		capture.Get(gocv.VideoCaptureFrameWidth), capture.Get(gocv.VideoCaptureFrameHeight),
		v.fps, capture.Get(gocv.VideoCaptureFrameCount))
	return v, nil
}

// FPS returns the frame rate reported by the container, zero if unknown.
func (v *VideoSource) FPS() float64 { return v.fps }

// Next decodes the next frame. It returns io.EOF at the end of the video.
func (v *VideoSource) Next(ctx context.Context) (l1detections.Frame, error) {
	if err := ctx.Err(); err != nil {
		return l1detections.Frame{}, err
	}
	if ok := v.capture.Read(&v.mat); !ok || v.mat.Empty() {
		return l1detections.Frame{}, io.EOF
	}
	img, err := v.mat.ToImage()
	if err != nil {
		return l1detections.Frame{}, fmt.Errorf("frame %d: decode: %w", v.next, err)
	}
	f := l1detections.Frame{
		Index:  v.next,
		Width:  v.mat.Cols(),
		Height: v.mat.Rows(),
		Image:  img,
	}
	v.next++
	return f, nil
}

// Close releases the decoder.
func (v *VideoSource) Close() error {
	v.mat.Close()
	return v.capture.Close()
}

// ONNXDetector runs a YOLOv8-layout ONNX model with OpenCV DNN. Inference
// on one network is serialised; run one detector per worker for parallel
// inference on separate networks.
type ONNXDetector struct {
	cfg DetectorConfig

	mu  sync.Mutex
	net gocv.Net
}

// NewONNXDetector loads the model named by cfg.ModelPath.
func NewONNXDetector(cfg DetectorConfig) (*ONNXDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if len(cfg.Labels) == 0 {
		return nil, errors.New("detector needs at least one label")
	}
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	opsf("loaded model %s (%d labels, input %d)", cfg.ModelPath, len(cfg.Labels), cfg.InputSize)
	return &ONNXDetector{cfg: cfg, net: net}, nil
}

// Detect runs the model on frame.Image.
func (d *ONNXDetector) Detect(ctx context.Context, frame l1detections.Frame, confidenceFloor float64) ([]l1detections.RawDetection, error) {
	if frame.Image == nil {
		return nil, fmt.Errorf("frame %d has no image", frame.Index)
	}
	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("frame %d: convert image: %w", frame.Index, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("frame %d: empty image", frame.Index)
	}

	size := d.cfg.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	// [1, 4+classes, n]
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("frame %d: unexpected output shape %v", frame.Index, dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("frame %d: read output: %w", frame.Index, err)
	}

	scaleX := float64(img.Cols()) / float64(size)
	scaleY := float64(img.Rows()) / float64(size)
	cands := decodeYOLOv8(data, dims[1], dims[2], scaleX, scaleY, confidenceFloor)
	return rawDetections(suppress(cands, d.cfg.NMSThreshold), d.cfg.Labels), nil
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
