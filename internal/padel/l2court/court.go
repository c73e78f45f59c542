package l2court

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/padel.report/internal/config"
)

// PixelPoint is a position in image pixels.
type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CourtPosition is a position on the court plane in metres. The near
// baseline runs along y=0 from x=0 (left) to x=Width; the net is at
// y=Length/2.
type CourtPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two court positions.
func (p CourtPosition) Distance(o CourtPosition) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// IsFinite reports whether both coordinates are finite.
func (p CourtPosition) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Dimensions is the real-world court size in metres.
type Dimensions struct {
	Width  float64 `json:"width_m"`
	Length float64 `json:"length_m"`
}

// PadelDimensions is the regulation padel court.
var PadelDimensions = Dimensions{Width: 10, Length: 20}

// CalibrationError reports a degenerate or missing calibration. It is
// fatal: nothing downstream can be trusted without a valid homography.
type CalibrationError struct {
	Reason string
}

func (e *CalibrationError) Error() string {
	return "calibration: " + e.Reason
}

// ModelConfig holds court construction parameters.
type ModelConfig struct {
	MaxConditionNumber float64
}

// DefaultModelConfig returns court configuration loaded from the canonical
// tuning defaults file.
func DefaultModelConfig() ModelConfig {
	return ModelConfigFromTuning(config.MustLoadDefaultConfig())
}

// ModelConfigFromTuning builds a ModelConfig from a loaded TuningConfig.
func ModelConfigFromTuning(cfg *config.TuningConfig) ModelConfig {
	return ModelConfig{MaxConditionNumber: cfg.GetMaxConditionNumber()}
}

// Model maps between pixel and court coordinates for one fixed camera.
type Model struct {
	corners [4]PixelPoint
	dims    Dimensions
	h       *mat.Dense // pixel -> court
	hinv    *mat.Dense // court -> pixel
}

// minRelativeArea is the smallest triangle area, relative to the squared
// corner spread, below which three corners count as collinear.
const minRelativeArea = 1e-3

// New builds a court model from four pixel corners ordered baseline-left,
// baseline-right, far-right, far-left.
func New(corners [4]PixelPoint, dims Dimensions, cfg ModelConfig) (*Model, error) {
	if dims.Width <= 0 || dims.Length <= 0 || !finite(dims.Width) || !finite(dims.Length) {
		return nil, &CalibrationError{Reason: fmt.Sprintf("invalid court dimensions %.3fx%.3f", dims.Width, dims.Length)}
	}
	for i, c := range corners {
		if !finite(c.X) || !finite(c.Y) {
			return nil, &CalibrationError{Reason: fmt.Sprintf("corner %d is not finite", i)}
		}
	}

	scale := 0.0
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			d := math.Hypot(corners[i].X-corners[j].X, corners[i].Y-corners[j].Y)
			scale = math.Max(scale, d)
		}
	}
	if scale == 0 {
		return nil, &CalibrationError{Reason: "all corners coincide"}
	}
	for _, tri := range [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}} {
		a := math.Abs(cross(corners[tri[0]], corners[tri[1]], corners[tri[2]])) / 2
		if a/(scale*scale) < minRelativeArea {
			return nil, &CalibrationError{Reason: fmt.Sprintf("corners %d, %d, %d are collinear", tri[0], tri[1], tri[2])}
		}
	}
	if !convex(corners) {
		return nil, &CalibrationError{Reason: "corners do not form a convex quadrilateral in order"}
	}

	court := [4]PixelPoint{
		{0, 0},
		{dims.Width, 0},
		{dims.Width, dims.Length},
		{0, dims.Length},
	}
	h, cond, err := solveHomography(corners, court)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConditionNumber > 0 && cond > cfg.MaxConditionNumber {
		return nil, &CalibrationError{Reason: fmt.Sprintf("corner configuration is near degenerate (condition number %.3g)", cond)}
	}

	var hinv mat.Dense
	if err := hinv.Inverse(h); err != nil {
		return nil, &CalibrationError{Reason: fmt.Sprintf("homography is not invertible: %v", err)}
	}

	return &Model{corners: corners, dims: dims, h: h, hinv: &hinv}, nil
}

// solveHomography runs the normalised direct linear transform over the four
// correspondences and returns H (src -> dst) plus the condition number of
// the normalised design matrix.
func solveHomography(src, dst [4]PixelPoint) (*mat.Dense, float64, error) {
	ts, ns := normalise(src)
	td, nd := normalise(dst)

	a := mat.NewDense(8, 9, nil)
	for i := 0; i < 4; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, 0, &CalibrationError{Reason: "homography factorisation failed"}
	}
	values := svd.Values(nil)
	smallest := values[len(values)-1]
	cond := math.Inf(1)
	if smallest > 0 {
		cond = values[0] / smallest
	}

	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return nil, 0, &CalibrationError{Reason: "court normalisation is singular"}
	}
	var h mat.Dense
	h.Product(&tdInv, hn, ts)

	w := h.At(2, 2)
	if math.Abs(w) < 1e-12 {
		return nil, 0, &CalibrationError{Reason: "homography maps the origin to infinity"}
	}
	h.Scale(1/w, &h)
	return &h, cond, nil
}

// normalise translates the points to their centroid and scales them to a
// mean distance of sqrt(2), returning the transform and the moved points.
func normalise(pts [4]PixelPoint) (*mat.Dense, [4]PixelPoint) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= 4
	cy /= 4
	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= 4
	s := math.Sqrt2 / mean

	var out [4]PixelPoint
	for i, p := range pts {
		out[i] = PixelPoint{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	return t, out
}

func cross(o, a, b PixelPoint) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// convex reports whether the corners, taken in order, turn consistently.
func convex(c [4]PixelPoint) bool {
	sign := 0.0
	for i := 0; i < 4; i++ {
		z := cross(c[i], c[(i+1)%4], c[(i+2)%4])
		if z == 0 {
			return false
		}
		if sign == 0 {
			sign = math.Copysign(1, z)
		} else if math.Copysign(1, z) != sign {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func apply(h *mat.Dense, x, y float64) (float64, float64) {
	u := h.At(0, 0)*x + h.At(0, 1)*y + h.At(0, 2)
	v := h.At(1, 0)*x + h.At(1, 1)*y + h.At(1, 2)
	w := h.At(2, 0)*x + h.At(2, 1)*y + h.At(2, 2)
	if math.Abs(w) < 1e-12 {
		return math.NaN(), math.NaN()
	}
	return u / w, v / w
}

// Project maps a pixel onto the court plane. Pixels on or beyond the
// horizon line project to NaN.
func (m *Model) Project(p PixelPoint) CourtPosition {
	x, y := apply(m.h, p.X, p.Y)
	return CourtPosition{X: x, Y: y}
}

// Unproject maps a court position back to pixels.
func (m *Model) Unproject(c CourtPosition) PixelPoint {
	x, y := apply(m.hinv, c.X, c.Y)
	return PixelPoint{X: x, Y: y}
}

// IsInBounds reports whether pos lies within the court rectangle grown by
// margin on every side. The boundary itself is in bounds.
func (m *Model) IsInBounds(pos CourtPosition, margin float64) bool {
	if !pos.IsFinite() {
		return false
	}
	return pos.X >= -margin && pos.X <= m.dims.Width+margin &&
		pos.Y >= -margin && pos.Y <= m.dims.Length+margin
}

// Dimensions returns the court size.
func (m *Model) Dimensions() Dimensions { return m.dims }

// Corners returns the calibration corners.
func (m *Model) Corners() [4]PixelPoint { return m.corners }

// Homography returns the pixel->court matrix in row-major order.
func (m *Model) Homography() [9]float64 {
	var out [9]float64
	for i := 0; i < 9; i++ {
		out[i] = m.h.At(i/3, i%3)
	}
	return out
}
