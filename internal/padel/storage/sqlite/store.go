package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
	"github.com/banshee-data/padel.report/internal/padel/l4events"
	"github.com/banshee-data/padel.report/internal/padel/l5stats"
	"github.com/banshee-data/padel.report/internal/padel/result"
)

// RunNotFoundError reports a run ID with no stored analysis.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("analysis run %s not found", e.RunID)
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	CreatedAt       time.Time `json:"created_at"`
	Source          string    `json:"source"`
	Producer        string    `json:"producer"`
	FramesProcessed int       `json:"frames_processed"`
	Rallies         int       `json:"rallies"`
	Touches         int       `json:"touches"`
}

// PersistAnalysis writes a complete analysis in one transaction. A run
// that already exists is replaced.
func (db *DB) PersistAnalysis(ctx context.Context, a *result.Analysis) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM padel_runs WHERE run_id = ?`, a.RunID); err != nil {
		return fmt.Errorf("replace run %s: %w", a.RunID, err)
	}
	if err = insertRun(ctx, tx, a); err != nil {
		return err
	}
	if err = insertTracks(ctx, tx, a.RunID, a.Tracks); err != nil {
		return err
	}
	if err = insertRallies(ctx, tx, a.RunID, a.Rallies); err != nil {
		return err
	}
	if err = insertPlayerStats(ctx, tx, a.RunID, a.PlayerStats); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", a.RunID, err)
	}
	diagf("run %s: stored %d tracks, %d rallies", a.RunID, len(a.Tracks), len(a.Rallies))
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, a *result.Analysis) error {
	blobs := make([]string, 0, 4)
	for _, v := range []any{a.Court, a.MatchStats, a.Summary, a.Warnings} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode run %s: %w", a.RunID, err)
		}
		blobs = append(blobs, string(b))
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO padel_runs (
			run_id, schema_version, producer, created_at, source, fps,
			frames_processed, first_frame, last_frame,
			court_json, match_stats_json, summary_json, warnings_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.SchemaVersion, a.Producer, a.CreatedAt.UTC().Format(time.RFC3339Nano), a.Source, a.FPS,
		a.FramesProcessed, a.FirstFrame, a.LastFrame,
		blobs[0], blobs[1], blobs[2], blobs[3],
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", a.RunID, err)
	}
	return nil
}

func insertTracks(ctx context.Context, tx *sql.Tx, runID string, tracks []result.Track) error {
	trackStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO padel_tracks (run_id, track_id, seq, class, first_frame, last_frame)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare track insert: %w", err)
	}
	defer trackStmt.Close()
	sampleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO padel_track_samples (
			run_id, track_id, frame_index, court_x, court_y, pixel_x, pixel_y, observed, bounce, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()

	for i, t := range tracks {
		if _, err := trackStmt.ExecContext(ctx, runID, t.ID, i, t.Class.String(), t.FirstFrame, t.LastFrame); err != nil {
			return fmt.Errorf("insert track %s: %w", t.ID, err)
		}
		for _, s := range t.Samples {
			if _, err := sampleStmt.ExecContext(ctx, runID, t.ID, s.FrameIndex,
				s.Position.X, s.Position.Y, s.Pixel.X, s.Pixel.Y, s.Observed, s.Bounce, string(s.Status)); err != nil {
				return fmt.Errorf("insert sample %s@%d: %w", t.ID, s.FrameIndex, err)
			}
		}
	}
	return nil
}

func insertRallies(ctx context.Context, tx *sql.Tx, runID string, rallies []l4events.Rally) error {
	for _, r := range rallies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO padel_rallies (run_id, rally_id, start_frame, end_frame) VALUES (?, ?, ?, ?)`,
			runID, r.ID, r.StartFrame, r.EndFrame); err != nil {
			return fmt.Errorf("insert rally %d: %w", r.ID, err)
		}
		for _, t := range r.Touches {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO padel_touches (run_id, rally_id, frame_index, player, court_x, court_y, distance_m, angle_deg)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, r.ID, t.FrameIndex, t.Player.String(), t.Position.X, t.Position.Y, t.DistanceM, t.AngleDeg); err != nil {
				return fmt.Errorf("insert touch at frame %d: %w", t.FrameIndex, err)
			}
		}
		if f := r.Fault; f != nil {
			var toucher sql.NullString
			if f.LastToucher != l1detections.ClassUnknown {
				toucher = sql.NullString{String: f.LastToucher.String(), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO padel_faults (run_id, rally_id, frame_index, kind, court_x, court_y, last_toucher)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, r.ID, f.FrameIndex, string(f.Kind), f.Position.X, f.Position.Y, toucher); err != nil {
				return fmt.Errorf("insert fault of rally %d: %w", r.ID, err)
			}
		}
	}
	return nil
}

func insertPlayerStats(ctx context.Context, tx *sql.Tx, runID string, players []l5stats.PlayerStats) error {
	for i, p := range players {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s stats: %w", p.Player, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO padel_player_stats (run_id, player, seq, touches, rallies, hit_errors, stats_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, p.Player.String(), i, p.Touches, p.Rallies, p.HitErrors, string(b)); err != nil {
			return fmt.Errorf("insert %s stats: %w", p.Player, err)
		}
	}
	return nil
}

// LoadAnalysis rebuilds the stored analysis of one run.
func (db *DB) LoadAnalysis(ctx context.Context, runID string) (*result.Analysis, error) {
	a := &result.Analysis{RunID: runID}
	var createdAt, courtJSON, matchJSON, summaryJSON, warnJSON string
	err := db.QueryRowContext(ctx, `
		SELECT schema_version, producer, created_at, source, fps,
		       frames_processed, first_frame, last_frame,
		       court_json, match_stats_json, summary_json, warnings_json
		FROM padel_runs WHERE run_id = ?`, runID).Scan(
		&a.SchemaVersion, &a.Producer, &createdAt, &a.Source, &a.FPS,
		&a.FramesProcessed, &a.FirstFrame, &a.LastFrame,
		&courtJSON, &matchJSON, &summaryJSON, &warnJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &RunNotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("scan run %s: %w", runID, err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("run %s created_at: %w", runID, err)
	}
	for _, blob := range []struct {
		data string
		dst  any
	}{
		{courtJSON, &a.Court},
		{matchJSON, &a.MatchStats},
		{summaryJSON, &a.Summary},
		{warnJSON, &a.Warnings},
	} {
		if err := json.Unmarshal([]byte(blob.data), blob.dst); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", runID, err)
		}
	}

	if a.Tracks, err = db.loadTracks(ctx, runID); err != nil {
		return nil, err
	}
	if a.Rallies, err = db.loadRallies(ctx, runID); err != nil {
		return nil, err
	}
	if a.PlayerStats, err = db.loadPlayerStats(ctx, runID); err != nil {
		return nil, err
	}
	return a, nil
}

func (db *DB) loadTracks(ctx context.Context, runID string) ([]result.Track, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT track_id, class, first_frame, last_frame
		FROM padel_tracks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	var tracks []result.Track
	index := make(map[string]int)
	for rows.Next() {
		var (
			t     result.Track
			class string
		)
		if err := rows.Scan(&t.ID, &class, &t.FirstFrame, &t.LastFrame); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan track: %w", err)
		}
		if t.Class, err = l1detections.ParseClass(class); err != nil {
			rows.Close()
			return nil, fmt.Errorf("track %s: %w", t.ID, err)
		}
		index[t.ID] = len(tracks)
		tracks = append(tracks, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT track_id, frame_index, court_x, court_y, pixel_x, pixel_y, observed, bounce, status
		FROM padel_track_samples WHERE run_id = ? ORDER BY track_id, frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			trackID, status string
			hp              l3tracks.HistoryPoint
		)
		if err := rows.Scan(&trackID, &hp.FrameIndex, &hp.Position.X, &hp.Position.Y,
			&hp.Pixel.X, &hp.Pixel.Y, &hp.Observed, &hp.Bounce, &status); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		hp.Status = l3tracks.TrackStatus(status)
		i, ok := index[trackID]
		if !ok {
			return nil, fmt.Errorf("sample of unknown track %s", trackID)
		}
		tracks[i].Samples = append(tracks[i].Samples, hp)
	}
	return tracks, rows.Err()
}

func (db *DB) loadRallies(ctx context.Context, runID string) ([]l4events.Rally, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT rally_id, start_frame, end_frame FROM padel_rallies
		WHERE run_id = ? ORDER BY rally_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rallies: %w", err)
	}
	rallies := []l4events.Rally{}
	index := make(map[int]int)
	for rows.Next() {
		var r l4events.Rally
		if err := rows.Scan(&r.ID, &r.StartFrame, &r.EndFrame); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rally: %w", err)
		}
		r.Touches = []l4events.TouchEvent{}
		index[r.ID] = len(rallies)
		rallies = append(rallies, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT rally_id, frame_index, player, court_x, court_y, distance_m, angle_deg
		FROM padel_touches WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query touches: %w", err)
	}
	for rows.Next() {
		var (
			rallyID int
			player  string
			t       l4events.TouchEvent
		)
		if err := rows.Scan(&rallyID, &t.FrameIndex, &player, &t.Position.X, &t.Position.Y, &t.DistanceM, &t.AngleDeg); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan touch: %w", err)
		}
		if t.Player, err = l1detections.ParseClass(player); err != nil {
			rows.Close()
			return nil, fmt.Errorf("touch at frame %d: %w", t.FrameIndex, err)
		}
		r := &rallies[index[rallyID]]
		r.Touches = append(r.Touches, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT rally_id, frame_index, kind, court_x, court_y, last_toucher
		FROM padel_faults WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query faults: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rallyID int
			kind    string
			toucher sql.NullString
			f       l4events.FaultEvent
		)
		if err := rows.Scan(&rallyID, &f.FrameIndex, &kind, &f.Position.X, &f.Position.Y, &toucher); err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		f.Kind = l4events.FaultKind(kind)
		if toucher.Valid {
			if f.LastToucher, err = l1detections.ParseClass(toucher.String); err != nil {
				return nil, fmt.Errorf("fault of rally %d: %w", rallyID, err)
			}
		}
		rallies[index[rallyID]].Fault = &f
	}
	return rallies, rows.Err()
}

func (db *DB) loadPlayerStats(ctx context.Context, runID string) ([]l5stats.PlayerStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT stats_json FROM padel_player_stats WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query player stats: %w", err)
	}
	defer rows.Close()
	var out []l5stats.PlayerStats
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan player stats: %w", err)
		}
		var ps l5stats.PlayerStats
		if err := json.Unmarshal([]byte(blob), &ps); err != nil {
			return nil, fmt.Errorf("decode player stats: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// ListRuns returns every stored run, newest first.
func (db *DB) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.run_id, r.created_at, r.source, r.producer, r.frames_processed,
		       (SELECT COUNT(*) FROM padel_rallies WHERE run_id = r.run_id),
		       (SELECT COUNT(*) FROM padel_touches WHERE run_id = r.run_id)
		FROM padel_runs r
		ORDER BY r.created_at DESC, r.run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s         RunSummary
			createdAt string
		)
		if err := rows.Scan(&s.RunID, &createdAt, &s.Source, &s.Producer, &s.FramesProcessed, &s.Rallies, &s.Touches); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("run %s created_at: %w", s.RunID, err)
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// DeleteRun removes a stored run and everything recorded for it.
func (db *DB) DeleteRun(ctx context.Context, runID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM padel_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &RunNotFoundError{RunID: runID}
	}
	opsf("deleted run %s", runID)
	return nil
}

