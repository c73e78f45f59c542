// Package testutil provides shared test fixtures: a calibrated overhead
// court and synthetic detection streams over it.
//
// The overhead camera sees the court at PixelsPerMetre with the near
// baseline at the bottom of the frame, so court and pixel coordinates are
// related by a plain affine map and expected positions are exact.
package testutil

import (
	"testing"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
)

const (
	PixelsPerMetre = 50.0
	FrameWidth     = 700
	FrameHeight    = 1200

	PlayerBoxW = 40.0
	PlayerBoxH = 90.0
	BallBoxW   = 10.0
)

// OverheadCorners is the calibration of the synthetic camera.
var OverheadCorners = [4]l2court.PixelPoint{{X: 100, Y: 1100}, {X: 600, Y: 1100}, {X: 600, Y: 100}, {X: 100, Y: 100}}

// CourtToPixel maps a court position onto the synthetic image.
func CourtToPixel(x, y float64) l2court.PixelPoint {
	return l2court.PixelPoint{X: 100 + PixelsPerMetre*x, Y: 1100 - PixelsPerMetre*y}
}

// MustCourt builds the court model for the synthetic camera.
func MustCourt(t testing.TB) *l2court.Model {
	t.Helper()
	m, err := l2court.New(OverheadCorners, l2court.PadelDimensions, l2court.ModelConfig{MaxConditionNumber: 1e6})
	if err != nil {
		t.Fatalf("court: %v", err)
	}
	return m
}

// PlayerBox returns a player box whose feet stand at court (x, y).
func PlayerBox(x, y float64) l1detections.BBox {
	p := CourtToPixel(x, y)
	return l1detections.BBox{X: p.X - PlayerBoxW/2, Y: p.Y - PlayerBoxH, W: PlayerBoxW, H: PlayerBoxH}
}

// BallBox returns a ball box centred on court (x, y).
func BallBox(x, y float64) l1detections.BBox {
	p := CourtToPixel(x, y)
	return l1detections.CenteredBBox(p.X, p.Y, BallBoxW, BallBoxW)
}

// PlayerDetection builds a normalised player detection.
func PlayerDetection(frame int, class l1detections.Class, x, y float64) l1detections.Detection {
	return l1detections.Detection{FrameIndex: frame, Class: class, BBox: PlayerBox(x, y), Confidence: 0.9}
}

// BallDetection builds a normalised ball detection.
func BallDetection(frame int, x, y float64) l1detections.Detection {
	return l1detections.Detection{FrameIndex: frame, Class: l1detections.ClassBall, BBox: BallBox(x, y), Confidence: 0.8}
}

// Raw converts a detection back into detector output.
func Raw(d l1detections.Detection) l1detections.RawDetection {
	return l1detections.RawDetection{
		Label:      d.Class.String(),
		BBox:       [4]float64{d.BBox.X, d.BBox.Y, d.BBox.W, d.BBox.H},
		Confidence: d.Confidence,
	}
}

// Rally positions: two players face each other across the net while the
// other two stand clear of the ball's path.
var (
	RallyPlayers = map[l1detections.Class]l2court.CourtPosition{
		l1detections.ClassPlayer1: {X: 5, Y: 7},
		l1detections.ClassPlayer2: {X: 5, Y: 13},
		l1detections.ClassPlayer3: {X: 2, Y: 3},
		l1detections.ClassPlayer4: {X: 8, Y: 17},
	}
)

// RallyBallY is a triangle wave between the two facing players at
// 0.6 m/frame, turning at player_2 on frames 5, 25, ... and at player_1
// on frames 15, 35, ....
func RallyBallY(frame int) float64 {
	u := (frame + 5) % 20
	if u < 10 {
		return 7 + 0.6*float64(u)
	}
	return 13 - 0.6*float64(u-10)
}

// RallyFrame returns the detections of one frame of the rally scene.
func RallyFrame(frame int) []l1detections.Detection {
	dets := make([]l1detections.Detection, 0, 5)
	for _, c := range l1detections.PlayerClasses {
		p := RallyPlayers[c]
		dets = append(dets, PlayerDetection(frame, c, p.X, p.Y))
	}
	return append(dets, BallDetection(frame, 5, RallyBallY(frame)))
}

// RallyRecording returns n frames of the rally scene as detector output.
func RallyRecording(n int) []l1detections.RecordedFrame {
	out := make([]l1detections.RecordedFrame, n)
	for f := 0; f < n; f++ {
		dets := RallyFrame(f)
		raw := make([]l1detections.RawDetection, len(dets))
		for i, d := range dets {
			raw[i] = Raw(d)
		}
		out[f] = l1detections.RecordedFrame{FrameIndex: f, Width: FrameWidth, Height: FrameHeight, Detections: raw}
	}
	return out
}
