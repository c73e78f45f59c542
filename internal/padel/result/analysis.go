package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/banshee-data/padel.report/internal/fsutil"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
	"github.com/banshee-data/padel.report/internal/padel/l4events"
	"github.com/banshee-data/padel.report/internal/padel/l5stats"
)

// SchemaVersion is the version of the Analysis JSON layout.
const SchemaVersion = "1"

// Court records the calibration the analysis was computed with.
type Court struct {
	Dimensions l2court.Dimensions    `json:"dimensions"`
	Corners    [4]l2court.PixelPoint `json:"corners"`
}

// CourtFromModel captures a court model's calibration.
func CourtFromModel(m *l2court.Model) Court {
	return Court{Dimensions: m.Dimensions(), Corners: m.Corners()}
}

// Model rebuilds the court model of a stored analysis.
func (c Court) Model(cfg l2court.ModelConfig) (*l2court.Model, error) {
	return l2court.New(c.Corners, c.Dimensions, cfg)
}

// Track is the stored trajectory of one identity.
type Track struct {
	ID         string                  `json:"id"`
	Class      l1detections.Class      `json:"class"`
	FirstFrame int                     `json:"first_frame"`
	LastFrame  int                     `json:"last_frame"`
	Samples    []l3tracks.HistoryPoint `json:"samples"`
}

// WarningKind classifies a recorded, non-fatal anomaly.
type WarningKind string

const (
	WarningDetectionAdapter     WarningKind = "detection_adapter"
	WarningDetector             WarningKind = "detector_error"
	WarningTrackDivergence      WarningKind = "track_divergence"
	WarningAmbiguousAttribution WarningKind = "ambiguous_attribution"
	WarningOther                WarningKind = "other"
)

// Warning is one recorded anomaly.
type Warning struct {
	FrameIndex int         `json:"frame_index"`
	Kind       WarningKind `json:"kind"`
	Message    string      `json:"message"`
}

// DetectorError reports a detector failure on one frame. The frame is
// processed with no detections.
type DetectorError struct {
	FrameIndex int
	Err        error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("frame %d: detector: %v", e.FrameIndex, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }

// WarningFromError classifies a recorded error. frame is used when the
// error does not carry its own frame index.
func WarningFromError(frame int, err error) Warning {
	w := Warning{FrameIndex: frame, Kind: WarningOther, Message: err.Error()}
	var (
		adapterErr *l1detections.DetectionAdapterError
		detErr     *DetectorError
		divErr     *l3tracks.TrackDivergenceError
		ambErr     *l4events.AmbiguousAttributionWarning
	)
	switch {
	case errors.As(err, &adapterErr):
		w.Kind, w.FrameIndex = WarningDetectionAdapter, adapterErr.FrameIndex
	case errors.As(err, &detErr):
		w.Kind, w.FrameIndex = WarningDetector, detErr.FrameIndex
	case errors.As(err, &divErr):
		w.Kind, w.FrameIndex = WarningTrackDivergence, divErr.FrameIndex
	case errors.As(err, &ambErr):
		w.Kind, w.FrameIndex = WarningAmbiguousAttribution, ambErr.FrameIndex
	}
	return w
}

// Analysis is the complete output of one match analysis.
type Analysis struct {
	SchemaVersion   string                           `json:"schema_version"`
	RunID           string                           `json:"run_id"`
	Producer        string                           `json:"producer"`
	CreatedAt       time.Time                        `json:"created_at"`
	Source          string                           `json:"source,omitempty"`
	FPS             float64                          `json:"fps"`
	Court           Court                            `json:"court"`
	FramesProcessed int                              `json:"frames_processed"`
	FirstFrame      int                              `json:"first_frame"`
	LastFrame       int                              `json:"last_frame"`
	Tracks          []Track                          `json:"tracks"`
	Rallies         []l4events.Rally                 `json:"rallies"`
	PlayerStats     []l5stats.PlayerStats            `json:"player_stats"`
	MatchStats      l5stats.MatchStats               `json:"match_stats"`
	Summary         map[string]l5stats.SummaryMetric `json:"summary"`
	Warnings        []Warning                        `json:"warnings"`
}

// TracksFrom copies tracker output into stored tracks, in creation order.
// Tracks that never produced a sample are skipped.
func TracksFrom(tracks []*l3tracks.Track) []Track {
	out := make([]Track, 0, len(tracks))
	for _, tr := range tracks {
		if len(tr.History) == 0 {
			continue
		}
		samples := make([]l3tracks.HistoryPoint, len(tr.History))
		copy(samples, tr.History)
		out = append(out, Track{
			ID:         tr.ID,
			Class:      tr.Class,
			FirstFrame: samples[0].FrameIndex,
			LastFrame:  samples[len(samples)-1].FrameIndex,
			Samples:    samples,
		})
	}
	return out
}

// SetStats stores the aggregate statistics and the summary derived from
// them.
func (a *Analysis) SetStats(s l5stats.Stats) {
	a.PlayerStats = s.Players
	a.MatchStats = s.Match
	a.Summary = s.SummaryMetrics()
}

// HistoryTracks rebuilds terminated tracker tracks from the stored
// trajectories, so events and statistics can be recomputed offline.
func (a *Analysis) HistoryTracks() []*l3tracks.Track {
	out := make([]*l3tracks.Track, 0, len(a.Tracks))
	for _, t := range a.Tracks {
		history := make([]l3tracks.HistoryPoint, len(t.Samples))
		copy(history, t.Samples)
		out = append(out, &l3tracks.Track{
			ID:         t.ID,
			Class:      t.Class,
			Status:     l3tracks.TrackRemoved,
			FirstFrame: t.FirstFrame,
			LastFrame:  t.LastFrame,
			History:    history,
		})
	}
	return out
}

// Touches returns every touch of the match in frame order.
func (a *Analysis) Touches() []l4events.TouchEvent {
	var out []l4events.TouchEvent
	for _, r := range a.Rallies {
		out = append(out, r.Touches...)
	}
	return out
}

// UnsupportedSchemaError reports an artifact written with another schema.
type UnsupportedSchemaError struct {
	Version string
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("unsupported analysis schema version %q (want %q)", e.Version, SchemaVersion)
}

// Encode writes the analysis as indented JSON.
func Encode(w io.Writer, a *Analysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return nil
}

// Decode reads an analysis and checks its schema version.
func Decode(r io.Reader) (*Analysis, error) {
	var a Analysis
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if a.SchemaVersion != SchemaVersion {
		return nil, &UnsupportedSchemaError{Version: a.SchemaVersion}
	}
	return &a, nil
}

// Save writes the analysis to path, creating parent directories.
func Save(fsys fsutil.FileSystem, path string, a *Analysis) error {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write analysis %s: %w", path, err)
	}
	return nil
}

// Load reads an analysis from path.
func Load(fsys fsutil.FileSystem, path string) (*Analysis, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis %s: %w", path, err)
	}
	return Decode(bytes.NewReader(data))
}
