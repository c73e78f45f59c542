package result

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/padel.report/internal/fsutil"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
	"github.com/banshee-data/padel.report/internal/padel/l4events"
	"github.com/banshee-data/padel.report/internal/padel/l5stats"
	"github.com/banshee-data/padel.report/internal/testutil"
)

// analyse runs the core layers over n frames of the rally scene.
func analyse(t *testing.T, n int) *Analysis {
	t.Helper()
	court := testutil.MustCourt(t)
	tracker := l3tracks.NewTracker(l3tracks.DefaultTrackerConfig(), court)
	for f := 0; f < n; f++ {
		_, err := tracker.Update(f, testutil.RallyFrame(f))
		require.NoError(t, err)
	}
	tracker.Finish()
	rallies, warnings, err := l4events.Run(l4events.DefaultEngineConfig(), court, l4events.FramesFromTracks(tracker.Tracks()))
	require.NoError(t, err)

	a := &Analysis{
		SchemaVersion:   SchemaVersion,
		RunID:           "run-1",
		Producer:        "padel-report test",
		CreatedAt:       time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Source:          "rally.jsonl",
		FPS:             30,
		Court:           CourtFromModel(court),
		FramesProcessed: n,
		FirstFrame:      0,
		LastFrame:       n - 1,
		Tracks:          TracksFrom(tracker.Tracks()),
		Rallies:         rallies,
	}
	a.SetStats(l5stats.Compute(l5stats.DefaultConfig(), court, tracker.Tracks(), rallies))
	for _, w := range warnings {
		a.Warnings = append(a.Warnings, WarningFromError(0, w))
	}
	return a
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := analyse(t, 60)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, a))
	got, err := Decode(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(a, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodedShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, analyse(t, 40)))
	out := buf.String()

	for _, key := range []string{
		`"schema_version": "1"`,
		`"class": "player_1"`,
		`"class": "ball"`,
		`"player_id": "player_2"`,
		`"frame_index"`,
		`"zone_time_s"`,
		`"summary"`,
	} {
		assert.Contains(t, out, key)
	}
}

func TestDecodeRejectsOtherSchema(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"schema_version":"0"}`))
	var schemaErr *UnsupportedSchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "0", schemaErr.Version)

	_, err = Decode(strings.NewReader(`{`))
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	a := analyse(t, 30)

	require.NoError(t, Save(fsys, "/out/match/analysis.json", a))
	assert.True(t, fsys.Exists("/out/match"))

	got, err := Load(fsys, "/out/match/analysis.json")
	require.NoError(t, err)
	assert.Equal(t, a.RunID, got.RunID)
	assert.Len(t, got.Tracks, len(a.Tracks))

	_, err = Load(fsys, "/out/missing.json")
	require.Error(t, err)
}

func TestTracksFromSkipsEmptyAndCopies(t *testing.T) {
	src := []*l3tracks.Track{
		{ID: "trk_empty", Class: l1detections.ClassBall},
		{ID: "trk_p1", Class: l1detections.ClassPlayer1, History: []l3tracks.HistoryPoint{
			{FrameIndex: 4, Status: l3tracks.TrackTentative},
			{FrameIndex: 5, Status: l3tracks.TrackConfirmed},
		}},
	}
	got := TracksFrom(src)
	require.Len(t, got, 1)
	assert.Equal(t, "trk_p1", got[0].ID)
	assert.Equal(t, 4, got[0].FirstFrame)
	assert.Equal(t, 5, got[0].LastFrame)

	src[1].History[0].FrameIndex = 99
	assert.Equal(t, 4, got[0].Samples[0].FrameIndex)
}

func TestHistoryTracksReplay(t *testing.T) {
	a := analyse(t, 120)
	court, err := a.Court.Model(l2court.ModelConfig{MaxConditionNumber: 1e6})
	require.NoError(t, err)

	rallies, _, err := l4events.Run(l4events.DefaultEngineConfig(), court, l4events.FramesFromTracks(a.HistoryTracks()))
	require.NoError(t, err)
	if diff := cmp.Diff(a.Rallies, rallies); diff != "" {
		t.Errorf("replay from stored tracks differs (-stored +replay):\n%s", diff)
	}
	assert.Len(t, a.Touches(), 12)
}

func TestWarningFromError(t *testing.T) {
	tests := []struct {
		err  error
		want Warning
	}{
		{
			err:  &l1detections.DetectionAdapterError{FrameIndex: 7, Label: "shoe", Reason: "unknown class"},
			want: Warning{FrameIndex: 7, Kind: WarningDetectionAdapter},
		},
		{
			err:  fmt.Errorf("wrapped: %w", &DetectorError{FrameIndex: 8, Err: errors.New("inference failed")}),
			want: Warning{FrameIndex: 8, Kind: WarningDetector},
		},
		{
			err:  &l3tracks.TrackDivergenceError{TrackID: "trk_x", FrameIndex: 9, Trace: 1e9},
			want: Warning{FrameIndex: 9, Kind: WarningTrackDivergence},
		},
		{
			err:  &l4events.AmbiguousAttributionWarning{FrameIndex: 10, Chosen: l1detections.ClassPlayer1, Other: l1detections.ClassPlayer3},
			want: Warning{FrameIndex: 10, Kind: WarningAmbiguousAttribution},
		},
		{
			err:  errors.New("something else"),
			want: Warning{FrameIndex: 3, Kind: WarningOther},
		},
	}
	for _, tt := range tests {
		got := WarningFromError(3, tt.err)
		assert.Equal(t, tt.want.FrameIndex, got.FrameIndex, tt.err.Error())
		assert.Equal(t, tt.want.Kind, got.Kind, tt.err.Error())
		assert.Equal(t, tt.err.Error(), got.Message)
	}
}
