package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/padel.report/internal/config"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
	"github.com/banshee-data/padel.report/internal/padel/l4events"
	"github.com/banshee-data/padel.report/internal/padel/l5stats"
	"github.com/banshee-data/padel.report/internal/padel/result"
	"github.com/banshee-data/padel.report/internal/timeutil"
	"github.com/banshee-data/padel.report/internal/version"
)

// Config holds the run parameters of every stage.
type Config struct {
	// Workers bounds the number of concurrent detector calls.
	Workers int
	// QueueSize bounds the number of frames detected ahead of tracking.
	QueueSize int
	// ProgressEvery is the frame interval of Progress callbacks. Zero
	// disables them.
	ProgressEvery int

	Adapter l1detections.AdapterConfig
	Tracker l3tracks.TrackerConfig
	Events  l4events.EngineConfig
	Stats   l5stats.Config
}

// DefaultConfig returns run configuration loaded from the canonical tuning
// defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Workers:       cfg.GetWorkers(),
		QueueSize:     cfg.GetQueueSize(),
		ProgressEvery: cfg.GetProgressEvery(),
		Adapter:       l1detections.AdapterConfigFromTuning(cfg),
		Tracker:       l3tracks.TrackerConfigFromTuning(cfg),
		Events:        l4events.EngineConfigFromTuning(cfg),
		Stats:         l5stats.ConfigFromTuning(cfg),
	}
}

// Sink receives the finished analysis of a run.
type Sink interface {
	PersistAnalysis(ctx context.Context, a *result.Analysis) error
}

// Progress is a snapshot of a run in flight.
type Progress struct {
	FramesProcessed int
	FrameIndex      int
	LiveTracks      int
	Rallies         int
	Elapsed         time.Duration
}

// CancelledError reports a run stopped by its context. Frames up to
// LastFrame were fully applied; nothing after it was.
type CancelledError struct {
	FramesProcessed int
	LastFrame       int
	Err             error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("analysis cancelled after %d frames (last frame %d): %v", e.FramesProcessed, e.LastFrame, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// SinkError reports sinks that failed to persist a completed analysis.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return fmt.Sprintf("persist analysis: %v", e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }

// Runner analyses one match per Run call.
type Runner struct {
	Config Config
	Court  *l2court.Model

	// Source is recorded in the analysis as the input's name.
	Source   string
	Sinks    []Sink
	Progress func(Progress)
	Clock    timeutil.Clock
}

// NewRunner creates a runner over a calibrated court.
func NewRunner(cfg Config, court *l2court.Model) *Runner {
	return &Runner{Config: cfg, Court: court, Clock: timeutil.RealClock{}}
}

// job is one frame in flight. done is closed once raw and err are set.
type job struct {
	frame l1detections.Frame
	raw   []l1detections.RawDetection
	err   error
	done  chan struct{}
}

// run is the sequential state of one analysis.
type run struct {
	adapter *l1detections.Adapter
	tracker *l3tracks.Tracker
	engine  *l4events.Engine

	frames   int
	first    int
	last     int
	started  time.Time
	warnings []result.Warning
}

// Run reads every frame of source, detects objects with detector and
// returns the complete analysis. A detector failure on one frame is
// recorded as a warning and the frame is tracked with no detections.
// Out-of-order input, a source error or cancellation aborts the run.
// Sink failures are returned together with the analysis.
func (r *Runner) Run(ctx context.Context, source l1detections.FrameSource, detector l1detections.Detector) (*result.Analysis, error) {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	st := &run{
		adapter: l1detections.NewAdapter(r.Config.Adapter),
		tracker: l3tracks.NewTracker(r.Config.Tracker, r.Court),
		engine:  l4events.NewEngine(r.Config.Events, r.Court),
		started: clock.Now(),
	}
	runID := uuid.New().String()
	opsf("run %s: starting (source=%q workers=%d queue=%d)", runID, r.Source, r.workers(), r.queueSize())

	queue := make(chan *job, r.queueSize())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return r.produce(gctx, source, detector, queue)
	})
	g.Go(func() error {
		return r.consume(gctx, queue, st, clock)
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			err = &CancelledError{FramesProcessed: st.frames, LastFrame: st.last, Err: ctx.Err()}
		}
		opsf("run %s: aborted after %d frames: %v", runID, st.frames, err)
		return nil, err
	}

	a := r.finish(st, runID, clock)
	opsf("run %s: %d frames, %d tracks, %d rallies, %d warnings in %s",
		runID, a.FramesProcessed, len(a.Tracks), len(a.Rallies), len(a.Warnings), clock.Since(st.started))

	var sinkErrs []error
	for _, s := range r.Sinks {
		if err := s.PersistAnalysis(ctx, a); err != nil {
			opsf("run %s: sink failed: %v", runID, err)
			sinkErrs = append(sinkErrs, err)
		}
	}
	if len(sinkErrs) > 0 {
		return a, &SinkError{Err: errors.Join(sinkErrs...)}
	}
	return a, nil
}

func (r *Runner) workers() int {
	if r.Config.Workers < 1 {
		return 1
	}
	return r.Config.Workers
}

func (r *Runner) queueSize() int {
	if r.Config.QueueSize < 1 {
		return 1
	}
	return r.Config.QueueSize
}

// produce reads frames in order, starts their detection on the worker pool
// and queues them in read order. Sending blocks while the queue is full.
func (r *Runner) produce(ctx context.Context, source l1detections.FrameSource, detector l1detections.Detector, queue chan<- *job) error {
	var workers errgroup.Group
	workers.SetLimit(r.workers())
	defer workers.Wait()

	floor := r.Config.Adapter.ConfidenceFloor
	for {
		frame, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		j := &job{frame: frame, done: make(chan struct{})}
		workers.Go(func() error {
			defer close(j.done)
			j.raw, j.err = detector.Detect(ctx, j.frame, floor)
			return nil
		})

		select {
		case queue <- j:
			tracef("queued frame %d (%d in queue)", frame.Index, len(queue))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume applies queued frames to the tracking stage in queue order.
func (r *Runner) consume(ctx context.Context, queue <-chan *job, st *run, clock timeutil.Clock) error {
	for j := range queue {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.apply(st, j); err != nil {
			return err
		}
		if r.Progress != nil && r.Config.ProgressEvery > 0 && st.frames%r.Config.ProgressEvery == 0 {
			p := Progress{
				FramesProcessed: st.frames,
				FrameIndex:      st.last,
				LiveTracks:      len(st.tracker.LiveTracks()),
				Rallies:         len(st.engine.Rallies()),
				Elapsed:         clock.Since(st.started),
			}
			diagf("progress: frame %d, %d frames, %d live tracks, %d rallies", p.FrameIndex, p.FramesProcessed, p.LiveTracks, p.Rallies)
			r.Progress(p)
		}
	}
	return nil
}

// apply runs one frame through adapter, tracker and event engine.
func (r *Runner) apply(st *run, j *job) error {
	f := j.frame.Index
	raw := j.raw
	if j.err != nil {
		if errors.Is(j.err, context.Canceled) || errors.Is(j.err, context.DeadlineExceeded) {
			return j.err
		}
		derr := &result.DetectorError{FrameIndex: f, Err: j.err}
		diagf("%v", derr)
		st.warnings = append(st.warnings, result.WarningFromError(f, derr))
		raw = nil
	}

	dets, adaptErrs := st.adapter.Normalize(j.frame, raw)
	trackWarnings, err := st.tracker.Update(f, dets)
	if err != nil {
		opsf("rejecting frame %d: %v", f, err)
		return err
	}
	if err := st.engine.Push(l4events.FrameFromTracks(f, st.tracker.Tracks())); err != nil {
		return err
	}

	for _, e := range adaptErrs {
		st.warnings = append(st.warnings, result.WarningFromError(f, e))
	}
	for _, e := range trackWarnings {
		st.warnings = append(st.warnings, result.WarningFromError(f, e))
	}
	if st.frames == 0 {
		st.first = f
	}
	st.frames++
	st.last = f
	return nil
}

// finish closes the open tracks and rallies and assembles the analysis.
func (r *Runner) finish(st *run, runID string, clock timeutil.Clock) *result.Analysis {
	st.tracker.Finish()
	rallies := st.engine.Finish()
	for _, w := range st.engine.Warnings() {
		st.warnings = append(st.warnings, result.WarningFromError(st.last, w))
	}

	tracks := st.tracker.Tracks()
	a := &result.Analysis{
		SchemaVersion:   result.SchemaVersion,
		RunID:           runID,
		Producer:        version.Producer(),
		CreatedAt:       clock.Now().UTC(),
		Source:          r.Source,
		FPS:             r.Config.Stats.FPS,
		Court:           result.CourtFromModel(r.Court),
		FramesProcessed: st.frames,
		FirstFrame:      st.first,
		LastFrame:       st.last,
		Tracks:          result.TracksFrom(tracks),
		Rallies:         rallies,
		Warnings:        st.warnings,
	}
	if a.Rallies == nil {
		a.Rallies = []l4events.Rally{}
	}
	if a.Warnings == nil {
		a.Warnings = []result.Warning{}
	}
	a.SetStats(l5stats.Compute(r.Config.Stats, r.Court, tracks, rallies))
	return a
}
