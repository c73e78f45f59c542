package l3tracks

import "fmt"

// OutOfOrderFrameError reports a frame index that does not strictly
// increase. It is fatal: the tracker state is left untouched.
type OutOfOrderFrameError struct {
	Previous int
	Got      int
}

func (e *OutOfOrderFrameError) Error() string {
	return fmt.Sprintf("frame %d received after frame %d: frame indices must strictly increase", e.Got, e.Previous)
}

// TrackDivergenceError reports a Kalman filter whose state or covariance
// blew up. The track is forced to lost and re-initialised on the next
// detection; the run continues.
type TrackDivergenceError struct {
	TrackID    string
	FrameIndex int
	Trace      float64
}

func (e *TrackDivergenceError) Error() string {
	return fmt.Sprintf("frame %d: track %s diverged (covariance trace %.3g)", e.FrameIndex, e.TrackID, e.Trace)
}
