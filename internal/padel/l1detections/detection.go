package l1detections

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"
)

// Class identifies the object a detection or track refers to. The four
// player identities are fixed for a match.
type Class int

const (
	ClassUnknown Class = iota
	ClassPlayer1
	ClassPlayer2
	ClassPlayer3
	ClassPlayer4
	ClassBall
)

// PlayerClasses lists the player identities in id order.
var PlayerClasses = []Class{ClassPlayer1, ClassPlayer2, ClassPlayer3, ClassPlayer4}

// AllClasses lists every trackable class.
var AllClasses = []Class{ClassPlayer1, ClassPlayer2, ClassPlayer3, ClassPlayer4, ClassBall}

var classNames = map[Class]string{
	ClassPlayer1: "player_1",
	ClassPlayer2: "player_2",
	ClassPlayer3: "player_3",
	ClassPlayer4: "player_4",
	ClassBall:    "ball",
}

var classAliases = map[string]Class{
	"player_1":    ClassPlayer1,
	"player1":     ClassPlayer1,
	"p1":          ClassPlayer1,
	"player_2":    ClassPlayer2,
	"player2":     ClassPlayer2,
	"p2":          ClassPlayer2,
	"player_3":    ClassPlayer3,
	"player3":     ClassPlayer3,
	"p3":          ClassPlayer3,
	"player_4":    ClassPlayer4,
	"player4":     ClassPlayer4,
	"p4":          ClassPlayer4,
	"ball":        ClassBall,
	"sports ball": ClassBall,
	"sports_ball": ClassBall,
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// IsPlayer reports whether c is one of the four player identities.
func (c Class) IsPlayer() bool {
	return c >= ClassPlayer1 && c <= ClassPlayer4
}

// MarshalText encodes the class as its canonical label.
func (c Class) MarshalText() ([]byte, error) {
	if _, ok := classNames[c]; !ok {
		return nil, fmt.Errorf("cannot marshal unknown class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a canonical label or accepted alias.
func (c *Class) UnmarshalText(b []byte) error {
	parsed, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClass maps a detector label onto a Class. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseClass(label string) (Class, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	if c, ok := classAliases[key]; ok {
		return c, nil
	}
	return ClassUnknown, fmt.Errorf("unknown class label %q", label)
}

// BBox is an axis-aligned box in pixels: top-left corner plus size.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the box centre.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// BottomCenter returns the midpoint of the lower edge; for a standing
// player this is the ground contact point.
func (b BBox) BottomCenter() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H
}

// Area returns the box area, zero for degenerate boxes.
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IoU returns the intersection-over-union of two boxes.
func (b BBox) IoU(o BBox) float64 {
	x0 := math.Max(b.X, o.X)
	y0 := math.Max(b.Y, o.Y)
	x1 := math.Min(b.X+b.W, o.X+o.W)
	y1 := math.Min(b.Y+b.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	inter := (x1 - x0) * (y1 - y0)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Clip restricts the box to [0,width]x[0,height].
func (b BBox) Clip(width, height float64) BBox {
	x0 := clamp(b.X, 0, width)
	y0 := clamp(b.Y, 0, height)
	x1 := clamp(b.X+b.W, 0, width)
	y1 := clamp(b.Y+b.H, 0, height)
	return BBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// CenteredBBox builds a box of the given size around (cx, cy).
func CenteredBBox(cx, cy, w, h float64) BBox {
	return BBox{X: cx - w/2, Y: cy - h/2, W: w, H: h}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Detection is a normalised single-frame observation. It is ephemeral:
// consumed by association and never retained.
type Detection struct {
	FrameIndex int
	Class      Class
	BBox       BBox
	Confidence float64
}

// RawDetection is the detector's output before normalisation. BBox is
// [x, y, w, h] in pixels.
type RawDetection struct {
	Label      string     `json:"label"`
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
}

// Frame is one decoded video frame. Image may be nil when detections come
// from a recording rather than a live detector.
type Frame struct {
	Index  int
	Width  int
	Height int
	Image  image.Image
}

// Detector is the capability boundary around the object detection model.
// Implementations must be safe for concurrent use when the pipeline runs
// more than one worker.
type Detector interface {
	Detect(ctx context.Context, frame Frame, confidenceFloor float64) ([]RawDetection, error)
}

// FrameSource yields frames with strictly increasing indices and returns
// io.EOF when exhausted.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}
