package greptime

import (
	"context"
	"fmt"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"github.com/banshee-data/padel.report/internal/padel/result"
)

const (
	// DefaultSamplesTable holds one row per track sample.
	DefaultSamplesTable = "padel_track_samples"
	// DefaultTouchesTable holds one row per touch.
	DefaultTouchesTable = "padel_touches"
	// DefaultBatchSize bounds the rows sent per write.
	DefaultBatchSize = 5000
)

// Client is the part of the ingester client the writer uses.
type Client interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// Writer writes analyses to GreptimeDB. It implements pipeline.Sink.
type Writer struct {
	client       Client
	samplesTable string
	touchesTable string
	batchSize    int

	// Start overrides the video start time. When zero the analysis
	// CreatedAt is used.
	Start time.Time
}

// NewWriter wraps an ingester client.
func NewWriter(client Client) *Writer {
	return &Writer{
		client:       client,
		samplesTable: DefaultSamplesTable,
		touchesTable: DefaultTouchesTable,
		batchSize:    DefaultBatchSize,
	}
}

// Dial connects to the GreptimeDB gRPC endpoint at host:port.
func Dial(host string, port int, database string) (*Writer, error) {
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client %s:%d: %w", host, port, err)
	}
	return NewWriter(client), nil
}

// frameTime maps a frame index onto the video clock.
func frameTime(start time.Time, frame int, fps float64) time.Time {
	if fps <= 0 {
		return start
	}
	return start.Add(time.Duration(float64(frame) / fps * float64(time.Second)))
}

func (w *Writer) start(a *result.Analysis) time.Time {
	if !w.Start.IsZero() {
		return w.Start
	}
	return a.CreatedAt
}

func newSamplesTable(name string) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, c := range []string{"run_id", "track_id", "class"} {
		if err := tbl.AddTagColumn(c, types.STRING); err != nil {
			return nil, err
		}
	}
	for _, c := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"frame_index", types.INT64},
		{"court_x", types.FLOAT64},
		{"court_y", types.FLOAT64},
		{"pixel_x", types.FLOAT64},
		{"pixel_y", types.FLOAT64},
		{"observed", types.BOOLEAN},
		{"bounce", types.BOOLEAN},
		{"status", types.STRING},
	} {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

func newTouchesTable(name string) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, c := range []string{"run_id", "player"} {
		if err := tbl.AddTagColumn(c, types.STRING); err != nil {
			return nil, err
		}
	}
	for _, c := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"rally_id", types.INT64},
		{"frame_index", types.INT64},
		{"court_x", types.FLOAT64},
		{"court_y", types.FLOAT64},
		{"distance_m", types.FLOAT64},
		{"angle_deg", types.FLOAT64},
	} {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// PersistAnalysis writes every track sample and touch of a.
func (w *Writer) PersistAnalysis(ctx context.Context, a *result.Analysis) error {
	samples, err := w.writeSamples(ctx, a)
	if err != nil {
		opsf("run %s: %v", a.RunID, err)
		return err
	}
	touches, err := w.writeTouches(ctx, a)
	if err != nil {
		opsf("run %s: %v", a.RunID, err)
		return err
	}
	diagf("run %s: wrote %d samples, %d touches", a.RunID, samples, touches)
	return nil
}

func (w *Writer) writeSamples(ctx context.Context, a *result.Analysis) (int, error) {
	start := w.start(a)
	var (
		tbl     *table.Table
		pending int
		written int
	)
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if _, err := w.client.Write(ctx, tbl); err != nil {
			return fmt.Errorf("write %s: %w", w.samplesTable, err)
		}
		written += pending
		tbl, pending = nil, 0
		return nil
	}

	for _, t := range a.Tracks {
		for _, s := range t.Samples {
			if tbl == nil {
				var err error
				if tbl, err = newSamplesTable(w.samplesTable); err != nil {
					return written, fmt.Errorf("build %s: %w", w.samplesTable, err)
				}
			}
			err := tbl.AddRow(
				a.RunID, t.ID, t.Class.String(),
				int64(s.FrameIndex), s.Position.X, s.Position.Y, s.Pixel.X, s.Pixel.Y,
				s.Observed, s.Bounce, string(s.Status),
				frameTime(start, s.FrameIndex, a.FPS),
			)
			if err != nil {
				return written, fmt.Errorf("add sample %s@%d: %w", t.ID, s.FrameIndex, err)
			}
			pending++
			if pending >= w.batchSize {
				if err := flush(); err != nil {
					return written, err
				}
			}
		}
	}
	return written, flush()
}

func (w *Writer) writeTouches(ctx context.Context, a *result.Analysis) (int, error) {
	tbl, err := newTouchesTable(w.touchesTable)
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", w.touchesTable, err)
	}
	start := w.start(a)
	n := 0
	for _, r := range a.Rallies {
		for _, t := range r.Touches {
			if err := tbl.AddRow(
				a.RunID, t.Player.String(),
				int64(r.ID), int64(t.FrameIndex), t.Position.X, t.Position.Y, t.DistanceM, t.AngleDeg,
				frameTime(start, t.FrameIndex, a.FPS),
			); err != nil {
				return 0, fmt.Errorf("add touch at frame %d: %w", t.FrameIndex, err)
			}
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return 0, fmt.Errorf("write %s: %w", w.touchesTable, err)
	}
	return n, nil
}
