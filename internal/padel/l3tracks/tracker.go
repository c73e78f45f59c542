package l3tracks

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/banshee-data/padel.report/internal/config"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
)

// TrackStatus is the lifecycle state of a track.
type TrackStatus string

const (
	TrackTentative TrackStatus = "tentative" // fewer than HitsToConfirm consecutive matches
	TrackConfirmed TrackStatus = "confirmed" // established identity, updated or briefly coasting
	TrackLost      TrackStatus = "lost"      // unmatched, kept alive by prediction
	TrackRemoved   TrackStatus = "removed"   // terminal
)

// BallFilterConfig holds the ball motion filter parameters. Units are
// pixels and frames.
type BallFilterConfig struct {
	ProcessNoisePos       float64 // position process noise per frame (px²)
	ProcessNoiseVel       float64 // velocity process noise per frame ((px/frame)²)
	MeasurementNoise      float64 // detection centre noise (px²)
	InitialVelocityVar    float64 // velocity variance at (re)initialisation
	GateMahalanobisSq     float64 // squared Mahalanobis gate
	MaxSpeedPx            float64 // plausibility limit on implied speed (px/frame)
	MaxCoastFrames        int     // frames of prediction-only before the ball is lost
	MaxCovarianceTrace    float64 // divergence bound
	BounceMinVelocityPx   float64 // minimum |vy| either side of a bounce flip
	BounceCoastCorrection bool    // flip vy while coasting below the observed floor
}

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	HitsToConfirm            int
	MaxAge                   int     // frames a lost track survives without a match
	MinIoU                   float64 // player pairs below this IoU are unassignable
	PlayerPlausibilityMargin float64 // metres beyond the court a player foot point may lie
	BallPlausibilityMargin   float64 // metres beyond the court a ball centre may lie
	Ball                     BallFilterConfig
}

// DefaultTrackerConfig returns tracker configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found, intended for tests and binaries
// that have already validated config availability.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		HitsToConfirm:            cfg.GetHitsToConfirm(),
		MaxAge:                   cfg.GetMaxAge(),
		MinIoU:                   cfg.GetMinIoU(),
		PlayerPlausibilityMargin: cfg.GetPlayerPlausibilityMargin(),
		BallPlausibilityMargin:   cfg.GetBallPlausibilityMargin(),
		Ball: BallFilterConfig{
			ProcessNoisePos:       cfg.GetProcessNoisePos(),
			ProcessNoiseVel:       cfg.GetProcessNoiseVel(),
			MeasurementNoise:      cfg.GetMeasurementNoise(),
			InitialVelocityVar:    cfg.GetInitialVelocityVar(),
			GateMahalanobisSq:     cfg.GetBallGateMahalanobisSq(),
			MaxSpeedPx:            cfg.GetMaxBallSpeedPx(),
			MaxCoastFrames:        cfg.GetBallMaxCoastFrames(),
			MaxCovarianceTrace:    cfg.GetMaxCovarianceTrace(),
			BounceMinVelocityPx:   cfg.GetBounceMinVelocityPx(),
			BounceCoastCorrection: cfg.GetBounceCoastCorrection(),
		},
	}
}

// HistoryPoint is one frame of a track's trajectory.
type HistoryPoint struct {
	FrameIndex int                   `json:"frame_index"`
	Position   l2court.CourtPosition `json:"position"`
	Pixel      l2court.PixelPoint    `json:"pixel"`
	Observed   bool                  `json:"observed"`
	Bounce     bool                  `json:"bounce,omitempty"`
	Status     TrackStatus           `json:"status"`
}

// Track is a maintained identity. Tracks are owned by the Tracker and must
// be treated as read-only by callers.
type Track struct {
	ID     string
	Class  l1detections.Class
	Status TrackStatus

	// Pixel-space box centre, velocity (px/frame) and size.
	X, Y, VX, VY float64
	W, H         float64

	Age             int // frames since creation
	TimeSinceUpdate int // frames since the last matched detection
	Hits            int // consecutive matched frames
	TotalHits       int
	FirstFrame      int
	LastFrame       int

	History []HistoryPoint

	lastObsX, lastObsY float64
	lastObsFrame       int

	// Ball only.
	kf      *kalmanCV
	prevVY  float64
	floorY  float64
	hasPrev bool
}

// LastPoint returns the most recent history point.
func (t *Track) LastPoint() (HistoryPoint, bool) {
	if len(t.History) == 0 {
		return HistoryPoint{}, false
	}
	return t.History[len(t.History)-1], true
}

func (t *Track) live() bool { return t.Status != TrackRemoved }

func (t *Track) box() l1detections.BBox {
	return l1detections.CenteredBBox(t.X, t.Y, t.W, t.H)
}

// trackNamespace seeds deterministic track ids: identical input produces
// identical ids across runs.
var trackNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://padel.report/tracks"))

// Tracker maintains the live tracks of one match.
type Tracker struct {
	Config TrackerConfig
	court  *l2court.Model

	tracks    []*Track // creation order, including removed tracks
	spawned   int
	lastFrame int
	started   bool
}

// NewTracker creates a tracker bound to a court model.
func NewTracker(cfg TrackerConfig, court *l2court.Model) *Tracker {
	return &Tracker{Config: cfg, court: court}
}

// Update applies one frame of detections. Non-fatal anomalies are
// returned as warnings; an out-of-order frame is returned as an error and
// leaves the tracker unchanged.
func (t *Tracker) Update(frameIndex int, dets []l1detections.Detection) ([]error, error) {
	if t.started && frameIndex <= t.lastFrame {
		return nil, &OutOfOrderFrameError{Previous: t.lastFrame, Got: frameIndex}
	}
	dt := 1
	if t.started {
		dt = frameIndex - t.lastFrame
	}

	byClass := make(map[l1detections.Class][]l1detections.Detection)
	for _, d := range dets {
		if !t.plausible(d) {
			tracef("frame %d: implausible %s detection at (%.1f, %.1f) discarded", frameIndex, d.Class, d.BBox.X, d.BBox.Y)
			continue
		}
		byClass[d.Class] = append(byClass[d.Class], d)
	}

	for _, c := range l1detections.PlayerClasses {
		t.updatePlayers(frameIndex, dt, c, byClass[c])
	}
	warnings := t.updateBall(frameIndex, dt, byClass[l1detections.ClassBall])

	t.lastFrame = frameIndex
	t.started = true
	return warnings, nil
}

// Finish terminates every live track at the end of the stream.
func (t *Tracker) Finish() {
	for _, tr := range t.tracks {
		if tr.live() {
			tr.Status = TrackRemoved
		}
	}
}

// Tracks returns every track created so far, in creation order.
func (t *Tracker) Tracks() []*Track {
	out := make([]*Track, len(t.tracks))
	copy(out, t.tracks)
	return out
}

// LiveTracks returns the tracks that have not been removed.
func (t *Tracker) LiveTracks() []*Track {
	var out []*Track
	for _, tr := range t.tracks {
		if tr.live() {
			out = append(out, tr)
		}
	}
	return out
}

// Ball returns the live ball track, or nil.
func (t *Tracker) Ball() *Track {
	for _, tr := range t.tracks {
		if tr.Class == l1detections.ClassBall && tr.live() {
			return tr
		}
	}
	return nil
}

// LastFrame returns the last applied frame index.
func (t *Tracker) LastFrame() (int, bool) { return t.lastFrame, t.started }

func (t *Tracker) plausible(d l1detections.Detection) bool {
	if t.court == nil {
		return true
	}
	pos, margin := t.court.Project(anchor(d.Class, d.BBox)), t.Config.PlayerPlausibilityMargin
	if d.Class == l1detections.ClassBall {
		margin = t.Config.BallPlausibilityMargin
	}
	return t.court.IsInBounds(pos, margin)
}

// anchor is the pixel whose projection is the object's court position:
// a player's feet, the ball's centre.
func anchor(c l1detections.Class, b l1detections.BBox) l2court.PixelPoint {
	if c == l1detections.ClassBall {
		x, y := b.Center()
		return l2court.PixelPoint{X: x, Y: y}
	}
	x, y := b.BottomCenter()
	return l2court.PixelPoint{X: x, Y: y}
}

func (t *Tracker) project(px l2court.PixelPoint) l2court.CourtPosition {
	if t.court == nil {
		return l2court.CourtPosition{X: px.X, Y: px.Y}
	}
	return t.court.Project(px)
}

func (t *Tracker) record(tr *Track, frameIndex int, observed, bounce bool) {
	px := anchor(tr.Class, tr.box())
	tr.History = append(tr.History, HistoryPoint{
		FrameIndex: frameIndex,
		Position:   t.project(px),
		Pixel:      px,
		Observed:   observed,
		Bounce:     bounce,
		Status:     tr.Status,
	})
	tr.LastFrame = frameIndex
}

func (t *Tracker) newTrack(frameIndex int, d l1detections.Detection) *Track {
	t.spawned++
	id := uuid.NewSHA1(trackNamespace, []byte(fmt.Sprintf("%s/%d", d.Class, t.spawned)))
	cx, cy := d.BBox.Center()
	tr := &Track{
		ID:           "trk_" + id.String(),
		Class:        d.Class,
		Status:       TrackTentative,
		X:            cx,
		Y:            cy,
		W:            d.BBox.W,
		H:            d.BBox.H,
		Age:          1,
		Hits:         1,
		TotalHits:    1,
		FirstFrame:   frameIndex,
		lastObsX:     cx,
		lastObsY:     cy,
		lastObsFrame: frameIndex,
	}
	t.tracks = append(t.tracks, tr)
	diagf("frame %d: spawned %s track %s", frameIndex, d.Class, tr.ID)
	return tr
}

// liveOfClass returns the live tracks of a class in creation order.
func (t *Tracker) liveOfClass(c l1detections.Class) []*Track {
	var out []*Track
	for _, tr := range t.tracks {
		if tr.Class == c && tr.live() {
			out = append(out, tr)
		}
	}
	return out
}

// bestByConfidence returns the index of the highest-confidence detection,
// earliest on ties.
func bestByConfidence(dets []l1detections.Detection) int {
	best := -1
	for i, d := range dets {
		if best < 0 || d.Confidence > dets[best].Confidence {
			best = i
		}
	}
	return best
}

func (t *Tracker) updatePlayers(frameIndex, dt int, class l1detections.Class, dets []l1detections.Detection) {
	live := t.liveOfClass(class)
	for _, tr := range live {
		tr.X += tr.VX * float64(dt)
		tr.Y += tr.VY * float64(dt)
		tr.Age += dt
	}

	matchedTrack := make([]bool, len(live))
	matchedDet := make([]bool, len(dets))
	if len(live) > 0 && len(dets) > 0 {
		cost := make([][]float64, len(live))
		for i, tr := range live {
			cost[i] = make([]float64, len(dets))
			pred := tr.box()
			for j, d := range dets {
				iou := pred.IoU(d.BBox)
				if iou < t.Config.MinIoU {
					cost[i][j] = hungarianInf
				} else {
					cost[i][j] = 1 - iou
				}
			}
		}
		for i, j := range HungarianAssign(cost) {
			if j < 0 {
				continue
			}
			matchedTrack[i] = true
			matchedDet[j] = true
			t.matchPlayer(live[i], frameIndex, dets[j])
		}
	}

	for i, tr := range live {
		if !matchedTrack[i] {
			t.missPlayer(tr, frameIndex, dt)
		}
	}
	for i, tr := range live {
		if matchedTrack[i] && tr.Status == TrackTentative && tr.Hits >= t.Config.HitsToConfirm {
			t.promote(tr, frameIndex)
		}
	}
	for i, tr := range live {
		if tr.live() {
			t.record(tr, frameIndex, matchedTrack[i], false)
		}
	}

	var spare []l1detections.Detection
	for j, d := range dets {
		if !matchedDet[j] {
			spare = append(spare, d)
		}
	}
	t.spawnPlayer(frameIndex, class, spare)
}

func (t *Tracker) matchPlayer(tr *Track, frameIndex int, d l1detections.Detection) {
	cx, cy := d.BBox.Center()
	if gap := frameIndex - tr.lastObsFrame; gap > 0 {
		tr.VX = (cx - tr.lastObsX) / float64(gap)
		tr.VY = (cy - tr.lastObsY) / float64(gap)
	}
	tr.X, tr.Y = cx, cy
	tr.W, tr.H = d.BBox.W, d.BBox.H
	tr.lastObsX, tr.lastObsY, tr.lastObsFrame = cx, cy, frameIndex
	tr.Hits++
	tr.TotalHits++
	tr.TimeSinceUpdate = 0
	if tr.Status == TrackLost {
		tr.Status = TrackConfirmed
		diagf("frame %d: %s track %s re-acquired", frameIndex, tr.Class, tr.ID)
	}
}

func (t *Tracker) missPlayer(tr *Track, frameIndex, dt int) {
	tr.TimeSinceUpdate += dt
	tr.Hits = 0
	switch tr.Status {
	case TrackTentative:
		tr.Status = TrackRemoved
		tracef("frame %d: tentative %s track %s dropped", frameIndex, tr.Class, tr.ID)
	case TrackConfirmed:
		tr.Status = TrackLost
		diagf("frame %d: %s track %s lost", frameIndex, tr.Class, tr.ID)
	}
	if tr.Status == TrackLost && tr.TimeSinceUpdate > t.Config.MaxAge {
		tr.Status = TrackRemoved
		diagf("frame %d: %s track %s removed after %d frames lost", frameIndex, tr.Class, tr.ID, tr.TimeSinceUpdate)
	}
}

// promote confirms a tentative track unless another confirmed identity of
// the class is alive, in which case the candidate is discarded. Lost
// tracks of the class hand their identity over and are removed.
func (t *Tracker) promote(tr *Track, frameIndex int) {
	for _, other := range t.liveOfClass(tr.Class) {
		if other != tr && other.Status == TrackConfirmed {
			tr.Status = TrackRemoved
			diagf("frame %d: %s candidate %s discarded, %s already confirmed", frameIndex, tr.Class, tr.ID, other.ID)
			return
		}
	}
	tr.Status = TrackConfirmed
	for _, other := range t.liveOfClass(tr.Class) {
		if other != tr && other.Status == TrackLost {
			other.Status = TrackRemoved
			diagf("frame %d: %s identity handed over from %s to %s", frameIndex, tr.Class, other.ID, tr.ID)
		}
	}
	diagf("frame %d: %s track %s confirmed", frameIndex, tr.Class, tr.ID)
}

// spawnPlayer starts at most one tentative track for the class, and only
// when no tentative or confirmed identity of the class is alive. Other
// unmatched detections are noise.
func (t *Tracker) spawnPlayer(frameIndex int, class l1detections.Class, spare []l1detections.Detection) {
	if len(spare) == 0 {
		return
	}
	for _, tr := range t.liveOfClass(class) {
		if tr.Status != TrackLost {
			tracef("frame %d: %d unmatched %s detections discarded as noise", frameIndex, len(spare), class)
			return
		}
	}
	tr := t.newTrack(frameIndex, spare[bestByConfidence(spare)])
	if tr.Hits >= t.Config.HitsToConfirm {
		t.promote(tr, frameIndex)
	}
	if tr.live() {
		t.record(tr, frameIndex, true, false)
	}
}

func (t *Tracker) updateBall(frameIndex, dt int, dets []l1detections.Detection) []error {
	var warnings []error
	ball := t.Ball()
	cfg := t.Config.Ball

	if ball != nil {
		ball.Age += dt
	}
	if ball != nil && ball.Status != TrackLost {
		ball.kf.predict(float64(dt))
		ball.X, ball.Y = ball.kf.position()
		ball.VX, ball.VY = ball.kf.velocity()
		if err := t.checkDivergence(ball, frameIndex); err != nil {
			// Re-initialise from a later frame's detections.
			ball.TimeSinceUpdate += dt
			return append(warnings, err)
		}
	}

	switch {
	case ball == nil:
		if len(dets) > 0 {
			t.spawnBall(frameIndex, dets)
		}

	case ball.Status == TrackLost:
		if len(dets) > 0 {
			t.reinitBall(ball, frameIndex, dets[bestByConfidence(dets)])
			return warnings
		}
		ball.TimeSinceUpdate += dt
		if ball.TimeSinceUpdate > t.Config.MaxAge {
			ball.Status = TrackRemoved
			diagf("frame %d: ball track %s removed after %d frames lost", frameIndex, ball.ID, ball.TimeSinceUpdate)
		}

	default:
		best, bestD2 := -1, math.Inf(1)
		for i, d := range dets {
			cx, cy := d.BBox.Center()
			d2 := ball.kf.mahalanobisSq(cx, cy)
			speed := math.Hypot(cx-ball.lastObsX, cy-ball.lastObsY) / float64(frameIndex-ball.lastObsFrame)
			if d2 >= cfg.GateMahalanobisSq || speed > cfg.MaxSpeedPx {
				tracef("frame %d: ball candidate (%.1f, %.1f) gated out (d2=%.2f speed=%.1f)", frameIndex, cx, cy, d2, speed)
				continue
			}
			if d2 < bestD2 {
				best, bestD2 = i, d2
			}
		}
		if best >= 0 {
			if err := t.matchBall(ball, frameIndex, dets[best]); err != nil {
				warnings = append(warnings, err)
			}
			return warnings
		}
		t.missBall(ball, frameIndex, dt)
		if ball.Status == TrackRemoved && len(dets) > 0 {
			t.spawnBall(frameIndex, dets)
		}
	}
	return warnings
}

func (t *Tracker) spawnBall(frameIndex int, dets []l1detections.Detection) {
	d := dets[bestByConfidence(dets)]
	tr := t.newTrack(frameIndex, d)
	cx, cy := d.BBox.Center()
	tr.kf = newKalmanCV(cx, cy, t.Config.Ball)
	tr.floorY = cy
	if tr.Hits >= t.Config.HitsToConfirm {
		tr.Status = TrackConfirmed
	}
	t.record(tr, frameIndex, true, false)
}

// reinitBall restarts the filter of a lost ball on a fresh detection,
// keeping its identity.
func (t *Tracker) reinitBall(tr *Track, frameIndex int, d l1detections.Detection) {
	cx, cy := d.BBox.Center()
	tr.kf = newKalmanCV(cx, cy, t.Config.Ball)
	tr.X, tr.Y, tr.VX, tr.VY = cx, cy, 0, 0
	tr.W, tr.H = d.BBox.W, d.BBox.H
	tr.lastObsX, tr.lastObsY, tr.lastObsFrame = cx, cy, frameIndex
	tr.floorY = cy
	tr.hasPrev = false
	tr.Hits = 1
	tr.TotalHits++
	tr.TimeSinceUpdate = 0
	tr.Status = TrackConfirmed
	diagf("frame %d: ball track %s re-acquired at (%.1f, %.1f)", frameIndex, tr.ID, cx, cy)
	t.record(tr, frameIndex, true, false)
}

func (t *Tracker) matchBall(tr *Track, frameIndex int, d l1detections.Detection) error {
	cx, cy := d.BBox.Center()
	if !tr.kf.update(cx, cy) {
		return t.forceLost(tr, frameIndex, math.Inf(1))
	}
	if err := t.checkDivergence(tr, frameIndex); err != nil {
		return err
	}
	_, vy := tr.kf.velocity()
	bounce := t.isBounce(tr, vy)
	if math.Abs(vy) >= t.Config.Ball.BounceMinVelocityPx {
		tr.prevVY, tr.hasPrev = vy, true
	}

	tr.X, tr.Y = tr.kf.position()
	tr.VX, tr.VY = tr.kf.velocity()
	tr.W, tr.H = d.BBox.W, d.BBox.H
	tr.lastObsX, tr.lastObsY, tr.lastObsFrame = cx, cy, frameIndex
	if bounce {
		tr.floorY = cy
	} else {
		tr.floorY = math.Max(tr.floorY, cy)
	}
	tr.Hits++
	tr.TotalHits++
	tr.TimeSinceUpdate = 0
	if tr.Status == TrackTentative && tr.Hits >= t.Config.HitsToConfirm {
		tr.Status = TrackConfirmed
		diagf("frame %d: ball track %s confirmed", frameIndex, tr.ID)
	}

	// The trajectory keeps the measured centre; the filter only decides
	// which detection belongs to the ball.
	px := l2court.PixelPoint{X: cx, Y: cy}
	tr.History = append(tr.History, HistoryPoint{
		FrameIndex: frameIndex,
		Position:   t.project(px),
		Pixel:      px,
		Observed:   true,
		Bounce:     bounce,
		Status:     tr.Status,
	})
	tr.LastFrame = frameIndex
	return nil
}

// isBounce flags a downward-to-upward flip of image-space vertical
// velocity, comparing against the last vy of significant magnitude so a
// flip through a near-zero sample still counts once. Depth is not
// observable from one camera, so this is a velocity-sign approximation of
// ground contact.
func (t *Tracker) isBounce(tr *Track, vy float64) bool {
	floor := t.Config.Ball.BounceMinVelocityPx
	return tr.hasPrev && tr.prevVY >= floor && vy <= -floor
}

func (t *Tracker) missBall(tr *Track, frameIndex, dt int) {
	tr.TimeSinceUpdate += dt
	tr.Hits = 0
	switch tr.Status {
	case TrackTentative:
		tr.Status = TrackRemoved
		tracef("frame %d: tentative ball track %s dropped", frameIndex, tr.ID)
		return
	case TrackConfirmed:
		if tr.TimeSinceUpdate > t.Config.Ball.MaxCoastFrames {
			tr.Status = TrackLost
			diagf("frame %d: ball track %s lost after %d frames coasting", frameIndex, tr.ID, tr.TimeSinceUpdate)
			return
		}
	}

	bounce := false
	if t.Config.Ball.BounceCoastCorrection {
		x, y := tr.kf.position()
		_, vy := tr.kf.velocity()
		if vy > 0 && y > tr.floorY {
			tr.kf.setVelocityY(-vy)
			tr.VY = -vy
			bounce = true
			tracef("frame %d: ball track %s coasting bounce at (%.1f, %.1f)", frameIndex, tr.ID, x, y)
		}
	}
	t.record(tr, frameIndex, false, bounce)
}

func (t *Tracker) checkDivergence(tr *Track, frameIndex int) error {
	trace := tr.kf.trace()
	if tr.kf.finite() && trace <= t.Config.Ball.MaxCovarianceTrace {
		return nil
	}
	return t.forceLost(tr, frameIndex, trace)
}

func (t *Tracker) forceLost(tr *Track, frameIndex int, trace float64) error {
	tr.Status = TrackLost
	tr.Hits = 0
	err := &TrackDivergenceError{TrackID: tr.ID, FrameIndex: frameIndex, Trace: trace}
	opsf("%v; forcing lost", err)
	return err
}
