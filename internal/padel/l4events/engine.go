package l4events

import (
	"math"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
)

// touchCandidate is one frame that qualifies as a touch.
type touchCandidate struct {
	frame     int
	player    l1detections.Class
	side      l2court.Side
	ball      l2court.CourtPosition
	distance  float64
	angle     float64
	ambiguous bool
	other     l1detections.Class
}

// closer orders candidates of one cluster: nearest approach, then the
// sharper turn. Equal candidates keep the earlier frame.
func (c touchCandidate) closer(o touchCandidate) bool {
	if c.distance != o.distance {
		return c.distance < o.distance
	}
	return c.angle > o.angle
}

// touchCluster is a run of consecutive qualifying frames.
type touchCluster struct {
	best touchCandidate
	last int
}

// Engine infers rallies, touches and faults from a stream of frame states.
// Frames are evaluated TouchWindow frames behind the newest pushed frame
// so the direction-change window is complete; Finish flushes the tail.
type Engine struct {
	cfg   EngineConfig
	court *l2court.Model

	buf     []FrameState // contiguous frames, buf[0].FrameIndex == base
	base    int
	pushed  bool
	last    int // newest pushed frame
	next    int // next frame to evaluate
	done    bool
	keepLag int

	active     bool
	onCount    int
	runStart   int
	offCount   int
	deadWait   int // slow frames still required after a fault
	lastMoving int
	lastBounce int
	current    *Rally
	cluster    *touchCluster

	hasTouch      bool
	lastTouch     int
	lastToucher   l1detections.Class
	lastTouchSide l2court.Side

	rallies  []Rally
	warnings []error
}

// NewEngine creates an engine bound to a court model.
func NewEngine(cfg EngineConfig, court *l2court.Model) *Engine {
	return &Engine{
		cfg:        cfg,
		court:      court,
		keepLag:    cfg.MotionOnFrames + 2*cfg.TouchWindow + 2,
		lastBounce: math.MinInt,
	}
}

// Push appends the next frame. Skipped frame indices are treated as empty
// frames; a frame index that does not increase is rejected without
// changing state.
func (e *Engine) Push(fs FrameState) error {
	if e.pushed && fs.FrameIndex <= e.last {
		return &l3tracks.OutOfOrderFrameError{Previous: e.last, Got: fs.FrameIndex}
	}
	switch gap := fs.FrameIndex - e.last - 1; {
	case !e.pushed:
		e.base, e.next, e.pushed = fs.FrameIndex, fs.FrameIndex, true
	case gap > e.keepLag:
		e.skipGap(fs.FrameIndex)
	default:
		for i := e.last + 1; i < fs.FrameIndex; i++ {
			e.buf = append(e.buf, FrameState{FrameIndex: i})
		}
	}
	e.buf = append(e.buf, fs)
	e.last = fs.FrameIndex

	for e.next+e.cfg.TouchWindow <= e.last {
		e.evaluate(e.next)
		e.next++
	}
	e.prune()
	return nil
}

// Finish evaluates the remaining frames and closes an open rally at its
// last moving frame. It returns every rally in start order.
func (e *Engine) Finish() []Rally {
	if !e.done {
		for e.pushed && e.next <= e.last {
			e.evaluate(e.next)
			e.next++
		}
		if e.active {
			e.closeRally(e.lastMoving, nil)
		}
		e.done = true
		diagf("finished: %d rallies, %d warnings", len(e.rallies), len(e.warnings))
	}
	return e.Rallies()
}

// Rallies returns the rallies closed so far.
func (e *Engine) Rallies() []Rally {
	out := make([]Rally, len(e.rallies))
	copy(out, e.rallies)
	return out
}

// Warnings returns the recorded ambiguity warnings.
func (e *Engine) Warnings() []error {
	out := make([]error, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// Run is the batch form: it pushes every frame and finishes.
func Run(cfg EngineConfig, court *l2court.Model, frames []FrameState) ([]Rally, []error, error) {
	e := NewEngine(cfg, court)
	for _, fs := range frames {
		if err := e.Push(fs); err != nil {
			return nil, nil, err
		}
	}
	return e.Finish(), e.Warnings(), nil
}

// skipGap advances evaluation across the empty frames before frame to
// without buffering them. Pending frames see the gap as ball-less, and the
// gap frames count as slow frames.
func (e *Engine) skipGap(to int) {
	for e.next <= e.last {
		e.evaluate(e.next)
		e.next++
	}
	e.idle(to - e.next)
	diagf("skipped %d empty frames (%d-%d)", to-e.next, e.next, to-1)
	e.buf = e.buf[:0]
	e.base, e.next = to, to
}

// idle applies n frames with no ball sample starting at e.next: the
// pending touch cluster is flushed, an active rally counts them towards
// motion-off, and a post-fault dead period counts down.
func (e *Engine) idle(n int) {
	if n <= 0 {
		return
	}
	if e.active {
		need := e.cfg.MotionOffFrames - e.offCount
		if n < need {
			e.flushCluster(e.next)
			e.offCount += n
			return
		}
		if need > 1 {
			e.flushCluster(e.next)
		}
		e.closeRally(e.lastMoving, nil)
		n -= need
	}
	if e.deadWait > 0 {
		dec := min(n, e.deadWait)
		e.deadWait -= dec
		n -= dec
	}
	if n > 0 {
		e.onCount = 0
	}
}

func (e *Engine) frame(i int) *FrameState {
	if !e.pushed || i < e.base || i > e.last {
		return nil
	}
	return &e.buf[i-e.base]
}

func (e *Engine) ball(i int) *BallSample {
	if fs := e.frame(i); fs != nil {
		return fs.Ball
	}
	return nil
}

func (e *Engine) prune() {
	drop := e.next - e.keepLag - e.base
	if drop <= 0 {
		return
	}
	e.buf = append(e.buf[:0], e.buf[drop:]...)
	e.base += drop
}

// speedAt returns the ball's court speed in m/s at frame i, using the
// forward difference when the previous frame has no ball sample.
func (e *Engine) speedAt(i int) (float64, bool) {
	cur := e.ball(i)
	if cur == nil {
		return 0, false
	}
	if prev := e.ball(i - 1); prev != nil {
		return cur.Position.Distance(prev.Position) * e.cfg.FPS, true
	}
	if nxt := e.ball(i + 1); nxt != nil {
		return nxt.Position.Distance(cur.Position) * e.cfg.FPS, true
	}
	return 0, false
}

func (e *Engine) evaluate(f int) {
	if b := e.ball(f); b != nil && b.Bounce {
		e.lastBounce = f
	}
	speed, ok := e.speedAt(f)
	moving := ok && speed > e.cfg.MotionThresholdMps
	tracef("frame %d: ball speed %.2f m/s moving=%t active=%t", f, speed, moving, e.active)

	if !e.active {
		if e.deadWait > 0 {
			if moving {
				e.deadWait = e.cfg.MotionOffFrames
			} else {
				e.deadWait--
			}
			return
		}
		if !moving {
			e.onCount = 0
			return
		}
		if e.onCount == 0 {
			e.runStart = f
		}
		e.onCount++
		if e.onCount < e.cfg.MotionOnFrames {
			return
		}
		e.openRally(f)
		for g := e.runStart; g < f; g++ {
			e.evaluateTouch(g)
			e.evaluateFault(g)
			if !e.active {
				return
			}
		}
	} else if moving {
		e.offCount = 0
		e.lastMoving = f
	} else {
		e.offCount++
		if e.offCount >= e.cfg.MotionOffFrames {
			e.closeRally(e.lastMoving, nil)
			return
		}
	}

	e.evaluateTouch(f)
	e.evaluateFault(f)
}

func (e *Engine) openRally(f int) {
	e.active = true
	e.onCount, e.offCount = 0, 0
	e.lastMoving = f
	e.current = &Rally{ID: len(e.rallies) + 1, StartFrame: e.runStart, Touches: []TouchEvent{}}
	e.cluster = nil
	e.hasTouch = false
	diagf("rally %d opened at frame %d (start %d)", e.current.ID, f, e.runStart)
}

func (e *Engine) closeRally(end int, fault *FaultEvent) {
	e.flushCluster(end)
	r := e.current
	r.EndFrame = end
	r.Fault = fault
	kept := r.Touches[:0]
	for _, t := range r.Touches {
		if t.FrameIndex <= end {
			kept = append(kept, t)
		}
	}
	r.Touches = kept
	e.rallies = append(e.rallies, *r)
	e.current = nil
	e.active = false
	e.onCount, e.offCount = 0, 0
	e.hasTouch = false
	if fault != nil {
		e.deadWait = e.cfg.MotionOffFrames
		diagf("rally %d closed by %s fault at frame %d", r.ID, fault.Kind, fault.FrameIndex)
		return
	}
	diagf("rally %d closed: frames %d-%d, %d touches", r.ID, r.StartFrame, r.EndFrame, len(r.Touches))
}

func (e *Engine) evaluateTouch(f int) {
	cand, ok := e.candidate(f)
	if !ok {
		e.flushCluster(f)
		return
	}
	if e.cluster != nil && e.cluster.last == f-1 {
		e.cluster.last = f
		if cand.closer(e.cluster.best) {
			e.cluster.best = cand
		}
		return
	}
	e.flushCluster(f)
	e.cluster = &touchCluster{best: cand, last: f}
}

// flushCluster emits the pending cluster's best frame, subject to the
// cooldown, if it does not lie beyond limit.
func (e *Engine) flushCluster(limit int) {
	c := e.cluster
	e.cluster = nil
	if c == nil || c.best.frame > limit || e.current == nil {
		return
	}
	best := c.best
	if e.hasTouch && best.frame-e.lastTouch < e.cfg.TouchCooldownFrames {
		tracef("frame %d: touch by %s suppressed, %d frames after the previous", best.frame, best.player, best.frame-e.lastTouch)
		return
	}
	e.current.Touches = append(e.current.Touches, TouchEvent{
		FrameIndex: best.frame,
		Player:     best.player,
		Position:   best.ball,
		DistanceM:  best.distance,
		AngleDeg:   best.angle,
	})
	e.hasTouch = true
	e.lastTouch, e.lastToucher, e.lastTouchSide = best.frame, best.player, best.side
	if best.ambiguous {
		w := &AmbiguousAttributionWarning{FrameIndex: best.frame, Chosen: best.player, Other: best.other, DistanceM: best.distance}
		e.warnings = append(e.warnings, w)
		opsf("%v", w)
	}
	diagf("rally %d: touch by %s at frame %d (%.2f m, %.0f°)", e.current.ID, best.player, best.frame, best.distance, best.angle)
}

// candidate tests frame f for a racket contact: a sharp turn of the ball
// path across [f-w, f+w] within reach of a player.
func (e *Engine) candidate(f int) (touchCandidate, bool) {
	w := e.cfg.TouchWindow
	before, at, after := e.ball(f-w), e.ball(f), e.ball(f+w)
	if before == nil || at == nil || after == nil {
		return touchCandidate{}, false
	}
	ax, ay := at.Position.X-before.Position.X, at.Position.Y-before.Position.Y
	bx, by := after.Position.X-at.Position.X, after.Position.Y-at.Position.Y
	na, nb := math.Hypot(ax, ay), math.Hypot(bx, by)
	if na < e.cfg.TouchMinDisplacementM || nb < e.cfg.TouchMinDisplacementM {
		return touchCandidate{}, false
	}
	cos := math.Max(-1, math.Min(1, (ax*bx+ay*by)/(na*nb)))
	angle := math.Acos(cos) * 180 / math.Pi
	if angle <= e.cfg.TouchAngleDeg {
		return touchCandidate{}, false
	}

	cand := touchCandidate{frame: f, ball: at.Position, angle: angle}
	found := false
	var bestPos l2court.CourtPosition
	for _, p := range e.frame(f).Players {
		d := at.Position.Distance(p.Position)
		if d > e.cfg.ProximityRadiusM {
			continue
		}
		switch {
		case !found || d < cand.distance-e.cfg.TieEpsilonM:
			cand.player, cand.distance, cand.ambiguous = p.Class, d, false
			bestPos = p.Position
			found = true
		case math.Abs(d-cand.distance) <= e.cfg.TieEpsilonM:
			cand.ambiguous = true
			if p.Class < cand.player {
				cand.other = cand.player
				cand.player, cand.distance = p.Class, d
				bestPos = p.Position
			} else {
				cand.other = p.Class
			}
		}
	}
	if !found {
		return touchCandidate{}, false
	}
	cand.side = e.court.Side(bestPos)
	tracef("frame %d: touch candidate %s at %.2f m, turn %.0f°", f, cand.player, cand.distance, angle)
	return cand, true
}

// latestTouch returns the toucher the ball last left: the pending cluster
// if one is open, else the last emitted touch.
func (e *Engine) latestTouch() (frame int, player l1detections.Class, side l2court.Side, ok bool) {
	if c := e.cluster; c != nil {
		if !e.hasTouch || c.best.frame-e.lastTouch >= e.cfg.TouchCooldownFrames {
			return c.best.frame, c.best.player, c.best.side, true
		}
	}
	return e.lastTouch, e.lastToucher, e.lastTouchSide, e.hasTouch
}

func (e *Engine) evaluateFault(f int) {
	b := e.ball(f)
	if b == nil || !b.Observed || !e.active {
		return
	}
	touchFrame, toucher, side, touched := e.latestTouch()

	var kind FaultKind
	switch {
	case !e.court.IsInBounds(b.Position, e.cfg.FaultMarginM):
		kind = FaultOutOfBounds
	case touched && e.lastBounce <= touchFrame && e.court.InWallRegion(b.Position, side.Opponent(), e.cfg.WallRegionDepthM):
		kind = FaultWallDirect
	default:
		return
	}
	fault := &FaultEvent{FrameIndex: f, Kind: kind, Position: b.Position}
	if touched {
		fault.LastToucher = toucher
	}
	e.closeRally(f, fault)
}
