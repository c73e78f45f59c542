package greptime

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
	"github.com/banshee-data/padel.report/internal/padel/l4events"
	"github.com/banshee-data/padel.report/internal/padel/result"
)

type mockGreptimeClient struct {
	tables []*table.Table
	err    error
}

func (m *mockGreptimeClient) Write(_ context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, nil
}

func (m *mockGreptimeClient) rows(name string) []*gpb.Row {
	var out []*gpb.Row
	for _, tbl := range m.tables {
		if n, _ := tbl.GetName(); n == name {
			out = append(out, tbl.GetRows().Rows...)
		}
	}
	return out
}

var start = time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

func fixture() *result.Analysis {
	sample := func(f int, x, y float64, observed bool) l3tracks.HistoryPoint {
		return l3tracks.HistoryPoint{
			FrameIndex: f,
			Position:   l2court.CourtPosition{X: x, Y: y},
			Pixel:      l2court.PixelPoint{X: 100 + 50*x, Y: 1100 - 50*y},
			Observed:   observed,
			Status:     l3tracks.TrackConfirmed,
		}
	}
	return &result.Analysis{
		RunID:     "run-1",
		CreatedAt: start,
		FPS:       30,
		Tracks: []result.Track{
			{ID: "trk_ball", Class: l1detections.ClassBall, Samples: []l3tracks.HistoryPoint{
				sample(0, 5, 7, true), sample(1, 5, 7.6, true), sample(2, 5, 8.2, false),
			}},
			{ID: "trk_p1", Class: l1detections.ClassPlayer1, Samples: []l3tracks.HistoryPoint{
				sample(0, 5, 7, true), sample(1, 5, 7, true),
			}},
		},
		Rallies: []l4events.Rally{{ID: 1, StartFrame: 0, EndFrame: 60, Touches: []l4events.TouchEvent{
			{FrameIndex: 45, Player: l1detections.ClassPlayer2, Position: l2court.CourtPosition{X: 5, Y: 13}, DistanceM: 0.2, AngleDeg: 180},
		}}},
	}
}

func TestPersistAnalysisWritesSamples(t *testing.T) {
	m := &mockGreptimeClient{}
	w := NewWriter(m)
	require.NoError(t, w.PersistAnalysis(context.Background(), fixture()))

	require.Len(t, m.tables, 2)
	schema := m.tables[0].GetRows().Schema
	names := make([]string, len(schema))
	for i, c := range schema {
		names[i] = c.ColumnName
	}
	assert.Equal(t, []string{
		"run_id", "track_id", "class", "frame_index", "court_x", "court_y",
		"pixel_x", "pixel_y", "observed", "bounce", "status", "ts",
	}, names)
	assert.Equal(t, gpb.SemanticType_TAG, schema[1].SemanticType)
	assert.Equal(t, gpb.ColumnDataType_BOOLEAN, schema[8].Datatype)
	assert.Equal(t, gpb.SemanticType_TIMESTAMP, schema[11].SemanticType)

	rows := m.rows(DefaultSamplesTable)
	require.Len(t, rows, 5)
	third := rows[2].Values
	assert.Equal(t, "trk_ball", third[1].GetStringValue())
	assert.Equal(t, "ball", third[2].GetStringValue())
	assert.Equal(t, int64(2), third[3].GetI64Value())
	assert.InDelta(t, 8.2, third[5].GetF64Value(), 1e-12)
	assert.False(t, third[8].GetBoolValue())
	assert.Equal(t, "confirmed", third[10].GetStringValue())
	// frame 2 at 30 fps is 66 ms after the start.
	assert.Equal(t, start.Add(66*time.Millisecond).UnixMilli(), third[11].GetTimestampMillisecondValue())

	touches := m.rows(DefaultTouchesTable)
	require.Len(t, touches, 1)
	assert.Equal(t, "player_2", touches[0].Values[1].GetStringValue())
	assert.Equal(t, int64(1), touches[0].Values[2].GetI64Value())
	assert.Equal(t, start.Add(1500*time.Millisecond).UnixMilli(), touches[0].Values[8].GetTimestampMillisecondValue())
}

func TestPersistAnalysisBatches(t *testing.T) {
	m := &mockGreptimeClient{}
	w := NewWriter(m)
	w.batchSize = 2

	require.NoError(t, w.PersistAnalysis(context.Background(), fixture()))
	var sizes []int
	for _, tbl := range m.tables {
		if n, _ := tbl.GetName(); n == DefaultSamplesTable {
			sizes = append(sizes, len(tbl.GetRows().Rows))
		}
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestPersistAnalysisStartOverride(t *testing.T) {
	m := &mockGreptimeClient{}
	w := NewWriter(m)
	w.Start = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, w.PersistAnalysis(context.Background(), fixture()))
	first := m.rows(DefaultSamplesTable)[0].Values
	assert.Equal(t, w.Start.UnixMilli(), first[11].GetTimestampMillisecondValue())
}

func TestPersistAnalysisWriteError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("connection refused")}
	err := NewWriter(m).PersistAnalysis(context.Background(), fixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), DefaultSamplesTable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPersistAnalysisNoTouches(t *testing.T) {
	a := fixture()
	a.Rallies = nil
	m := &mockGreptimeClient{}
	require.NoError(t, NewWriter(m).PersistAnalysis(context.Background(), a))
	assert.Empty(t, m.rows(DefaultTouchesTable))
	assert.Len(t, m.tables, 1)
}

func TestFrameTime(t *testing.T) {
	assert.Equal(t, start, frameTime(start, 0, 30))
	assert.Equal(t, start.Add(time.Second), frameTime(start, 25, 25))
	assert.Equal(t, start, frameTime(start, 100, 0))
}
