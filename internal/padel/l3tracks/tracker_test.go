package l3tracks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/testutil"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(DefaultTrackerConfig(), testutil.MustCourt(t))
}

func update(t *testing.T, tr *Tracker, frame int, dets ...l1detections.Detection) []error {
	t.Helper()
	warnings, err := tr.Update(frame, dets)
	require.NoError(t, err)
	return warnings
}

func tracksOfClass(tr *Tracker, c l1detections.Class) []*Track {
	var out []*Track
	for _, t := range tr.Tracks() {
		if t.Class == c {
			out = append(out, t)
		}
	}
	return out
}

// linearBall moves along the court length at 0.3 m/frame (15 px/frame).
func linearBall(frame int) l1detections.Detection {
	return testutil.BallDetection(frame, 5, 2+0.3*float64(frame))
}

func assertMonotonicHistory(t *testing.T, tr *Track) {
	t.Helper()
	for i := 1; i < len(tr.History); i++ {
		require.Greater(t, tr.History[i].FrameIndex, tr.History[i-1].FrameIndex, "track %s history not strictly increasing", tr.ID)
	}
}

func TestTrackContinuity(t *testing.T) {
	tr := newTestTracker(t)
	const frames = 40
	for f := 0; f < frames; f++ {
		assert.Empty(t, update(t, tr, f, append(testutil.RallyFrame(f)[:4], linearBall(f))...))
	}

	require.Len(t, tr.Tracks(), 5, "one track per class")
	for _, c := range l1detections.AllClasses {
		got := tracksOfClass(tr, c)
		require.Len(t, got, 1, "class %s", c)
		track := got[0]
		assert.Equal(t, TrackConfirmed, track.Status, "class %s", c)
		assert.Len(t, track.History, frames)
		assertMonotonicHistory(t, track)
		for _, h := range track.History {
			assert.True(t, h.Observed)
		}
	}

	p2 := tracksOfClass(tr, l1detections.ClassPlayer2)[0]
	last, ok := p2.LastPoint()
	require.True(t, ok)
	assert.InDelta(t, 5.0, last.Position.X, 1e-6)
	assert.InDelta(t, 13.0, last.Position.Y, 1e-6)
}

func TestPlayerLifecycle(t *testing.T) {
	tr := newTestTracker(t)
	det := func(f int) l1detections.Detection {
		return testutil.PlayerDetection(f, l1detections.ClassPlayer1, 4, 6)
	}

	update(t, tr, 0, det(0))
	p := tr.Tracks()[0]
	assert.Equal(t, TrackTentative, p.Status)
	update(t, tr, 1, det(1))
	assert.Equal(t, TrackTentative, p.Status)
	update(t, tr, 2, det(2))
	assert.Equal(t, TrackConfirmed, p.Status)

	update(t, tr, 3)
	assert.Equal(t, TrackLost, p.Status)
	assert.Equal(t, 1, p.TimeSinceUpdate)
	last, _ := p.LastPoint()
	assert.False(t, last.Observed, "lost tracks coast")
	assert.Equal(t, TrackLost, last.Status)

	update(t, tr, 4, det(4))
	assert.Equal(t, TrackConfirmed, p.Status, "re-matched lost track is confirmed again")
	assert.Len(t, tr.Tracks(), 1)

	maxAge := tr.Config.MaxAge
	for f := 5; f <= 5+maxAge; f++ {
		update(t, tr, f)
		if f-4 <= maxAge {
			require.Equal(t, TrackLost, p.Status, "frame %d", f)
		}
	}
	assert.Equal(t, TrackRemoved, p.Status)
	assertMonotonicHistory(t, p)
}

func TestTentativeRemovedOnMiss(t *testing.T) {
	tr := newTestTracker(t)
	update(t, tr, 0, testutil.PlayerDetection(0, l1detections.ClassPlayer3, 2, 3))
	update(t, tr, 1)
	require.Len(t, tr.Tracks(), 1)
	assert.Equal(t, TrackRemoved, tr.Tracks()[0].Status)
	assert.Empty(t, tr.LiveTracks())
}

func TestDuplicateIdentityDiscarded(t *testing.T) {
	tr := newTestTracker(t)
	for f := 0; f < 3; f++ {
		update(t, tr, f, testutil.PlayerDetection(f, l1detections.ClassPlayer1, 4, 6))
	}
	for f := 3; f < 10; f++ {
		update(t, tr, f,
			testutil.PlayerDetection(f, l1detections.ClassPlayer1, 4, 6),
			testutil.PlayerDetection(f, l1detections.ClassPlayer1, 8, 2),
			testutil.PlayerDetection(f, l1detections.ClassPlayer1, 1, 1),
		)
	}
	got := tracksOfClass(tr, l1detections.ClassPlayer1)
	require.Len(t, got, 1, "extra detections of a confirmed identity are noise")
	assert.Equal(t, TrackConfirmed, got[0].Status)
}

func TestIdentityHandover(t *testing.T) {
	tr := newTestTracker(t)
	for f := 0; f < 5; f++ {
		update(t, tr, f, testutil.PlayerDetection(f, l1detections.ClassPlayer4, 8, 17))
	}
	original := tracksOfClass(tr, l1detections.ClassPlayer4)[0]

	// The identity reappears across the court: no IoU overlap with the
	// coasting prediction.
	update(t, tr, 5)
	require.Equal(t, TrackLost, original.Status)
	for f := 6; f < 9; f++ {
		update(t, tr, f, testutil.PlayerDetection(f, l1detections.ClassPlayer4, 2, 12))
	}

	got := tracksOfClass(tr, l1detections.ClassPlayer4)
	require.Len(t, got, 2)
	assert.Equal(t, TrackRemoved, original.Status, "lost identity handed over on confirmation")
	assert.Equal(t, TrackConfirmed, got[1].Status)
	assert.NotEqual(t, original.ID, got[1].ID)

	live := 0
	for _, tk := range got {
		if tk.Status == TrackConfirmed {
			live++
		}
	}
	assert.Equal(t, 1, live, "at most one confirmed track per player")
}

func TestOutOfOrderFrame(t *testing.T) {
	tr := newTestTracker(t)
	update(t, tr, 5, testutil.PlayerDetection(5, l1detections.ClassPlayer1, 4, 6), linearBall(5))
	before := len(tr.Tracks()[0].History)

	for _, f := range []int{5, 4} {
		warnings, err := tr.Update(f, []l1detections.Detection{testutil.PlayerDetection(f, l1detections.ClassPlayer1, 4, 6)})
		require.Error(t, err)
		assert.Nil(t, warnings)
		var ooo *OutOfOrderFrameError
		require.True(t, errors.As(err, &ooo))
		assert.Equal(t, 5, ooo.Previous)
		assert.Equal(t, f, ooo.Got)
	}

	assert.Len(t, tr.Tracks()[0].History, before, "rejected frame must not mutate state")
	last, ok := tr.LastFrame()
	assert.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestFrameGapsAdvanceAge(t *testing.T) {
	tr := newTestTracker(t)
	update(t, tr, 0, testutil.PlayerDetection(0, l1detections.ClassPlayer1, 4, 6))
	update(t, tr, 3, testutil.PlayerDetection(3, l1detections.ClassPlayer1, 4, 6))
	assert.Equal(t, 4, tr.Tracks()[0].Age)
}

func TestBallReacquisition(t *testing.T) {
	t.Parallel()

	coast := DefaultTrackerConfig().Ball.MaxCoastFrames

	tests := []struct {
		name     string
		withheld int
		wantLost bool
	}{
		{name: "within coast window", withheld: coast - 1, wantLost: false},
		{name: "exactly coast window", withheld: coast, wantLost: false},
		{name: "beyond coast window", withheld: coast + 1, wantLost: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := newTestTracker(t)
			const seen = 15
			for f := 0; f < seen; f++ {
				update(t, tr, f, linearBall(f))
			}
			ball := tr.Ball()
			require.NotNil(t, ball)
			require.Equal(t, TrackConfirmed, ball.Status)
			id := ball.ID

			sawLost := false
			for f := seen; f < seen+tt.withheld; f++ {
				update(t, tr, f)
				if ball.Status == TrackLost {
					sawLost = true
				}
				require.NotEqual(t, TrackRemoved, ball.Status)
			}
			assert.Equal(t, tt.wantLost, sawLost)

			back := seen + tt.withheld
			assert.Empty(t, update(t, tr, back, linearBall(back)))

			balls := tracksOfClass(tr, l1detections.ClassBall)
			require.Len(t, balls, 1, "never a second ball track")
			assert.Equal(t, id, balls[0].ID)
			assert.Equal(t, TrackConfirmed, balls[0].Status)
			last, _ := balls[0].LastPoint()
			assert.Equal(t, back, last.FrameIndex)
			assert.True(t, last.Observed)
			assertMonotonicHistory(t, balls[0])

			coasted := 0
			for _, h := range balls[0].History {
				if !h.Observed {
					coasted++
				}
			}
			if tt.wantLost {
				assert.Equal(t, coast, coasted, "no points while lost")
			} else {
				assert.Equal(t, tt.withheld, coasted)
			}
		})
	}
}

func TestBallRemovedAfterMaxAge(t *testing.T) {
	tr := newTestTracker(t)
	for f := 0; f < 5; f++ {
		update(t, tr, f, linearBall(f))
	}
	first := tr.Ball()
	cfg := tr.Config
	end := 5 + cfg.Ball.MaxCoastFrames + cfg.MaxAge + 2
	for f := 5; f < end; f++ {
		update(t, tr, f)
	}
	assert.Equal(t, TrackRemoved, first.Status)
	assert.Nil(t, tr.Ball())

	update(t, tr, end, linearBall(end))
	second := tr.Ball()
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, TrackTentative, second.Status)
}

// ballState captures the filter-visible part of the ball track.
type ballState struct {
	X, Y, VX, VY float64
	History      []HistoryPoint
}

func snapshotBall(tr *Tracker) ballState {
	b := tr.Ball()
	h := make([]HistoryPoint, len(b.History))
	copy(h, b.History)
	return ballState{X: b.X, Y: b.Y, VX: b.VX, VY: b.VY, History: h}
}

func TestBallNoiseRejection(t *testing.T) {
	const spuriousFrame = 12
	spurious := func(f int) l1detections.Detection {
		d := linearBall(f)
		d.BBox.X += 500
		d.Confidence = 0.99
		return d
	}

	run := func(t *testing.T, frame func(f int) []l1detections.Detection) (ballState, *Tracker) {
		tr := newTestTracker(t)
		for f := 0; f <= spuriousFrame; f++ {
			update(t, tr, f, frame(f)...)
		}
		return snapshotBall(tr), tr
	}
	clean := func(f int) []l1detections.Detection { return []l1detections.Detection{linearBall(f)} }

	t.Run("spurious instead of the ball", func(t *testing.T) {
		withheld, _ := run(t, func(f int) []l1detections.Detection {
			if f == spuriousFrame {
				return nil
			}
			return clean(f)
		})
		noisy, tr := run(t, func(f int) []l1detections.Detection {
			if f == spuriousFrame {
				return []l1detections.Detection{spurious(f)}
			}
			return clean(f)
		})
		assert.Equal(t, withheld, noisy, "spurious detection must not alter the filter")
		assert.Len(t, tracksOfClass(tr, l1detections.ClassBall), 1)
	})

	t.Run("spurious alongside the ball", func(t *testing.T) {
		baseline, _ := run(t, clean)
		noisy, tr := run(t, func(f int) []l1detections.Detection {
			if f == spuriousFrame {
				return []l1detections.Detection{spurious(f), linearBall(f)}
			}
			return clean(f)
		})
		assert.Equal(t, baseline, noisy)
		assert.Len(t, tracksOfClass(tr, l1detections.ClassBall), 1)
	})
}

func TestBallDivergence(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.Ball.MaxCovarianceTrace = 8000
	tr := NewTracker(cfg, testutil.MustCourt(t))

	for f := 0; f < 10; f++ {
		assert.Empty(t, update(t, tr, f, linearBall(f)))
	}
	ball := tr.Ball()
	id := ball.ID

	var warnings []error
	for f := 10; f < 13; f++ {
		warnings = append(warnings, update(t, tr, f)...)
	}
	require.Len(t, warnings, 1)
	var div *TrackDivergenceError
	require.True(t, errors.As(warnings[0], &div))
	assert.Equal(t, id, div.TrackID)
	assert.Equal(t, 12, div.FrameIndex)
	assert.Equal(t, TrackLost, ball.Status)

	assert.Empty(t, update(t, tr, 13, linearBall(13)))
	assert.Equal(t, TrackConfirmed, ball.Status)
	assert.Equal(t, id, tr.Ball().ID, "re-initialised on the same identity")
}

func TestImplausibleDetectionsDiscarded(t *testing.T) {
	tr := newTestTracker(t)
	// 12 m beyond the side line, outside the 8 m ball margin.
	update(t, tr, 0, testutil.BallDetection(0, 22, 10))
	// Feet 6 m behind the baseline, outside the 5 m player margin.
	update(t, tr, 1, testutil.PlayerDetection(1, l1detections.ClassPlayer1, 5, -6))
	assert.Empty(t, tr.Tracks())

	update(t, tr, 2, testutil.BallDetection(2, 14, 10))
	assert.Len(t, tr.Tracks(), 1, "inside the margin is plausible")
}

func TestBounceFlag(t *testing.T) {
	tr := newTestTracker(t)
	// Towards the camera (image y increasing) for 10 frames, then away.
	y := func(f int) float64 {
		if f <= 10 {
			return 12 - 0.3*float64(f)
		}
		return 9 + 0.3*float64(f-10)
	}
	for f := 0; f < 25; f++ {
		update(t, tr, f, testutil.BallDetection(f, 5, y(f)))
	}
	bounces := 0
	for _, h := range tr.Ball().History {
		if h.Bounce {
			bounces++
			assert.Greater(t, h.FrameIndex, 10)
		}
	}
	assert.Equal(t, 1, bounces)
}

func TestFinishRemovesLiveTracks(t *testing.T) {
	tr := newTestTracker(t)
	for f := 0; f < 4; f++ {
		update(t, tr, f, testutil.RallyFrame(f)...)
	}
	require.Len(t, tr.LiveTracks(), 5)
	tr.Finish()
	assert.Empty(t, tr.LiveTracks())
	for _, tk := range tr.Tracks() {
		assert.Equal(t, TrackRemoved, tk.Status)
		assert.NotEmpty(t, tk.History)
	}
}

func TestDeterministicIDs(t *testing.T) {
	ids := func() []string {
		tr := newTestTracker(t)
		for f := 0; f < 5; f++ {
			update(t, tr, f, testutil.RallyFrame(f)...)
		}
		var out []string
		for _, tk := range tr.Tracks() {
			out = append(out, tk.ID)
		}
		return out
	}
	a, b := ids(), ids()
	assert.Equal(t, a, b)
	assert.Len(t, a, 5)
	for _, id := range a {
		assert.Regexp(t, `^trk_[0-9a-f-]{36}$`, id)
	}
}
