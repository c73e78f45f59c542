package l4events

import (
	"fmt"
	"sort"

	"github.com/banshee-data/padel.report/internal/config"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
)

// FaultKind names the rule a fault broke.
type FaultKind string

const (
	FaultOutOfBounds FaultKind = "out_of_bounds"
	FaultWallDirect  FaultKind = "wall_direct"
)

// TouchEvent is an inferred racket-ball contact.
type TouchEvent struct {
	FrameIndex int                   `json:"frame_index"`
	Player     l1detections.Class    `json:"player_id"`
	Position   l2court.CourtPosition `json:"court_position"`
	DistanceM  float64               `json:"distance_m"`
	AngleDeg   float64               `json:"angle_deg"`
}

// FaultEvent is an inferred rule violation. LastToucher is the player of
// the most recent touch in the rally, if any.
type FaultEvent struct {
	FrameIndex  int                   `json:"frame_index"`
	Kind        FaultKind             `json:"kind"`
	Position    l2court.CourtPosition `json:"court_position"`
	LastToucher l1detections.Class    `json:"last_toucher,omitempty"`
}

// Rally is one interval of active play.
type Rally struct {
	ID         int          `json:"id"`
	StartFrame int          `json:"start_frame"`
	EndFrame   int          `json:"end_frame"`
	Touches    []TouchEvent `json:"touches"`
	Fault      *FaultEvent  `json:"fault,omitempty"`
}

// Frames returns the number of frames the rally spans.
func (r Rally) Frames() int { return r.EndFrame - r.StartFrame + 1 }

// DurationSeconds returns the rally length in seconds at the given rate.
func (r Rally) DurationSeconds(fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(r.Frames()) / fps
}

// AmbiguousAttributionWarning records a touch whose nearest players were
// equidistant within the tie epsilon. The lower player id was chosen.
type AmbiguousAttributionWarning struct {
	FrameIndex int
	Chosen     l1detections.Class
	Other      l1detections.Class
	DistanceM  float64
}

func (w *AmbiguousAttributionWarning) Error() string {
	return fmt.Sprintf("frame %d: touch equidistant (%.3f m) from %s and %s, attributed to %s",
		w.FrameIndex, w.DistanceM, w.Chosen, w.Other, w.Chosen)
}

// EngineConfig holds event inference parameters.
type EngineConfig struct {
	FPS                   float64
	MotionThresholdMps    float64 // ball speed above which play is in motion
	MotionOnFrames        int     // consecutive moving frames that open a rally
	MotionOffFrames       int     // consecutive slow frames that close one
	TouchWindow           int     // half-width w of the direction-change window
	TouchAngleDeg         float64
	TouchMinDisplacementM float64 // both window displacements must reach this
	ProximityRadiusM      float64
	TouchCooldownFrames   int
	TieEpsilonM           float64
	FaultMarginM          float64
	WallRegionDepthM      float64
}

// DefaultEngineConfig returns engine configuration loaded from the
// canonical tuning defaults file.
func DefaultEngineConfig() EngineConfig {
	return EngineConfigFromTuning(config.MustLoadDefaultConfig())
}

// EngineConfigFromTuning builds an EngineConfig from a loaded TuningConfig.
func EngineConfigFromTuning(cfg *config.TuningConfig) EngineConfig {
	return EngineConfig{
		FPS:                   cfg.GetFPS(),
		MotionThresholdMps:    cfg.GetMotionThresholdMps(),
		MotionOnFrames:        cfg.GetMotionOnFrames(),
		MotionOffFrames:       cfg.GetMotionOffFrames(),
		TouchWindow:           cfg.GetTouchWindow(),
		TouchAngleDeg:         cfg.GetTouchAngleDeg(),
		TouchMinDisplacementM: cfg.GetTouchMinDisplacementM(),
		ProximityRadiusM:      cfg.GetProximityRadiusM(),
		TouchCooldownFrames:   cfg.GetTouchCooldownFrames(),
		TieEpsilonM:           cfg.GetTieEpsilonM(),
		FaultMarginM:          cfg.GetFaultMarginM(),
		WallRegionDepthM:      cfg.GetWallRegionDepthM(),
	}
}

// BallSample is the ball's court position in one frame.
type BallSample struct {
	Position l2court.CourtPosition
	Observed bool
	Bounce   bool
}

// PlayerSample is one player's court position in one frame.
type PlayerSample struct {
	Class    l1detections.Class
	Position l2court.CourtPosition
}

// FrameState is everything the engine sees of one frame.
type FrameState struct {
	FrameIndex int
	Ball       *BallSample
	Players    []PlayerSample // ordered by class
}

// countsForEvents reports whether a player sample is an established
// identity. Tentative samples may be noise.
func countsForEvents(s l3tracks.TrackStatus) bool {
	return s == l3tracks.TrackConfirmed || s == l3tracks.TrackLost
}

func (fs *FrameState) add(class l1detections.Class, hp l3tracks.HistoryPoint) {
	if class == l1detections.ClassBall {
		if fs.Ball == nil {
			fs.Ball = &BallSample{Position: hp.Position, Observed: hp.Observed, Bounce: hp.Bounce}
		}
		return
	}
	if !countsForEvents(hp.Status) {
		return
	}
	for _, p := range fs.Players {
		if p.Class == class {
			return
		}
	}
	fs.Players = append(fs.Players, PlayerSample{Class: class, Position: hp.Position})
}

func (fs *FrameState) sortPlayers() {
	sort.Slice(fs.Players, func(i, j int) bool { return fs.Players[i].Class < fs.Players[j].Class })
}

// FrameFromTracks builds the state of frameIndex from the tracks' latest
// history samples. Call it right after the tracker applied that frame.
func FrameFromTracks(frameIndex int, tracks []*l3tracks.Track) FrameState {
	fs := FrameState{FrameIndex: frameIndex}
	for _, tr := range tracks {
		if hp, ok := tr.LastPoint(); ok && hp.FrameIndex == frameIndex {
			fs.add(tr.Class, hp)
		}
	}
	fs.sortPlayers()
	return fs
}

// FramesFromTracks rebuilds every frame state from complete track
// histories, covering the contiguous range of frames they span.
func FramesFromTracks(tracks []*l3tracks.Track) []FrameState {
	first, last, seen := 0, 0, false
	for _, tr := range tracks {
		for _, hp := range tr.History {
			if !seen || hp.FrameIndex < first {
				first = hp.FrameIndex
			}
			if !seen || hp.FrameIndex > last {
				last = hp.FrameIndex
			}
			seen = true
		}
	}
	if !seen {
		return nil
	}
	frames := make([]FrameState, last-first+1)
	for i := range frames {
		frames[i].FrameIndex = first + i
	}
	for _, tr := range tracks {
		for _, hp := range tr.History {
			frames[hp.FrameIndex-first].add(tr.Class, hp)
		}
	}
	for i := range frames {
		frames[i].sortPlayers()
	}
	return frames
}
