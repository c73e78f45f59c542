package vision

import (
	"errors"
	"sort"

	"github.com/banshee-data/padel.report/internal/config"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
)

// ErrNoOpenCV is returned by the video and model constructors in builds
// without the "opencv" tag.
var ErrNoOpenCV = errors.New("vision: built without opencv support (rebuild with -tags opencv)")

// DefaultLabels are the output classes of a padel-finetuned model, in
// model class-id order.
var DefaultLabels = []string{"player_1", "player_2", "player_3", "player_4", "ball"}

// DetectorConfig configures ONNXDetector.
type DetectorConfig struct {
	ModelPath string
	// Labels maps model class ids to detector labels. Ids past the end are
	// dropped.
	Labels       []string
	NMSThreshold float64
	InputSize    int
}

// DefaultDetectorConfig returns the built-in defaults for a 640x640 model.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfigFromTuning(config.EmptyTuningConfig())
}

// DetectorConfigFromTuning builds a DetectorConfig from tuning values.
func DetectorConfigFromTuning(t *config.TuningConfig) DetectorConfig {
	return DetectorConfig{
		Labels:       append([]string(nil), DefaultLabels...),
		NMSThreshold: t.GetNMSThreshold(),
		InputSize:    t.GetModelInputSize(),
	}
}

// candidate is one decoded model output row, in source-image pixels.
type candidate struct {
	box   l1detections.BBox
	score float64
	class int
}

// decodeYOLOv8 reads a YOLOv8 output tensor laid out as [4+classes, n]:
// rows 0-3 hold centre x, centre y, width and height in model input
// pixels, the rest hold per-class scores. scaleX and scaleY map model input
// pixels to source pixels. Rows whose best score is below floor are
// dropped.
func decodeYOLOv8(data []float32, attrs, n int, scaleX, scaleY, floor float64) []candidate {
	if attrs <= 4 || n <= 0 || len(data) < attrs*n {
		return nil
	}
	var out []candidate
	for i := 0; i < n; i++ {
		best, class := float32(0), -1
		for c := 4; c < attrs; c++ {
			if s := data[c*n+i]; s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || float64(best) < floor {
			continue
		}
		cx := float64(data[i]) * scaleX
		cy := float64(data[n+i]) * scaleY
		w := float64(data[2*n+i]) * scaleX
		h := float64(data[3*n+i]) * scaleY
		out = append(out, candidate{
			box:   l1detections.CenteredBBox(cx, cy, w, h),
			score: float64(best),
			class: class,
		})
	}
	return out
}

// suppress applies greedy per-class non-maximum suppression: candidates
// are taken in descending score order and any later candidate of the same
// class overlapping a kept one by more than threshold IoU is dropped.
func suppress(cands []candidate, threshold float64) []candidate {
	sorted := append([]candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })

	kept := make([]candidate, 0, len(sorted))
	for _, c := range sorted {
		overlaps := false
		for _, k := range kept {
			if k.class == c.class && k.box.IoU(c.box) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

// rawDetections labels the candidates for the detection adapter.
func rawDetections(cands []candidate, labels []string) []l1detections.RawDetection {
	out := make([]l1detections.RawDetection, 0, len(cands))
	for _, c := range cands {
		if c.class >= len(labels) {
			continue
		}
		out = append(out, l1detections.RawDetection{
			Label:      labels[c.class],
			BBox:       [4]float64{c.box.X, c.box.Y, c.box.W, c.box.H},
			Confidence: c.score,
		})
	}
	return out
}
