package l5stats

import (
	"math"
	"sort"

	"github.com/banshee-data/padel.report/internal/config"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l3tracks"
	"github.com/banshee-data/padel.report/internal/padel/l4events"
)

// Config holds aggregation parameters.
type Config struct {
	FPS              float64
	HeatmapCellSizeM float64
}

// DefaultConfig returns aggregation configuration loaded from the
// canonical tuning defaults file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{FPS: cfg.GetFPS(), HeatmapCellSizeM: cfg.GetHeatmapCellSizeM()}
}

// HeatmapCell counts the frames a player stood in one square of the court
// grid. Intensity is relative to the player's busiest cell.
type HeatmapCell struct {
	Col       int     `json:"col"`
	Row       int     `json:"row"`
	X         float64 `json:"x"` // cell centre, metres
	Y         float64 `json:"y"`
	Frames    int     `json:"frames"`
	Intensity float64 `json:"intensity"`
}

// PlayerStats is the per-match record of one player.
type PlayerStats struct {
	Player      l1detections.Class       `json:"player_id"`
	ZoneTime    map[l2court.Zone]float64 `json:"zone_time_s"`
	ZoneFrames  map[l2court.Zone]int     `json:"zone_frames"`
	Touches     int                      `json:"touch_count"`
	DuelLengths []int                    `json:"duel_lengths"`
	Rallies     int                      `json:"rallies_played"`
	HitErrors   int                      `json:"hit_errors"`
	Heatmap     []HeatmapCell            `json:"heatmap"`
}

// MatchStats summarises the match.
type MatchStats struct {
	Rallies             int                        `json:"rally_count"`
	Touches             int                        `json:"touch_count"`
	MeanRallyTouches    float64                    `json:"mean_rally_touches"`
	LongestRallyTouches int                        `json:"longest_rally_touches"`
	MeanRallySeconds    float64                    `json:"mean_rally_s"`
	LongestRallySeconds float64                    `json:"longest_rally_s"`
	Faults              map[l4events.FaultKind]int `json:"faults"`
}

// Stats is the complete aggregate of one match.
type Stats struct {
	Players []PlayerStats `json:"player_stats"`
	Match   MatchStats    `json:"match_stats"`
}

// SummaryMetric is the compact per-player summary consumed by dashboards.
type SummaryMetric struct {
	Hits    int `json:"hits"`
	Rallies int `json:"rallies"`
}

// SummaryMetrics returns {"player_N": {"hits": n, "rallies": m}}.
func (s Stats) SummaryMetrics() map[string]SummaryMetric {
	out := make(map[string]SummaryMetric, len(s.Players))
	for _, p := range s.Players {
		out[p.Player.String()] = SummaryMetric{Hits: p.Touches, Rallies: p.Rallies}
	}
	return out
}

// Player returns the stats of one player.
func (s Stats) Player(c l1detections.Class) (PlayerStats, bool) {
	for _, p := range s.Players {
		if p.Player == c {
			return p, true
		}
	}
	return PlayerStats{}, false
}

// allZones lists every zone a sample can fall in, out of court included.
var allZones = append(append([]l2court.Zone{}, l2court.Zones...), l2court.ZoneOut)

// Compute folds complete track histories and rallies into match
// statistics. It is pure: the same inputs always give the same output.
func Compute(cfg Config, court *l2court.Model, tracks []*l3tracks.Track, rallies []l4events.Rally) Stats {
	samples := playerSamples(tracks)

	stats := Stats{Players: make([]PlayerStats, 0, len(l1detections.PlayerClasses))}
	for _, c := range l1detections.PlayerClasses {
		ps := PlayerStats{
			Player:      c,
			ZoneTime:    make(map[l2court.Zone]float64, len(allZones)),
			ZoneFrames:  make(map[l2court.Zone]int, len(allZones)),
			DuelLengths: []int{},
			Heatmap:     []HeatmapCell{},
		}
		for _, z := range allZones {
			ps.ZoneFrames[z] = 0
		}
		for _, pos := range samples[c] {
			ps.ZoneFrames[court.Zone(pos)]++
		}
		for _, z := range allZones {
			ps.ZoneTime[z] = seconds(ps.ZoneFrames[z], cfg.FPS)
		}
		ps.Heatmap = heatmap(samples[c], cfg.HeatmapCellSizeM)
		stats.Players = append(stats.Players, ps)
	}

	match := MatchStats{Faults: map[l4events.FaultKind]int{
		l4events.FaultOutOfBounds: 0,
		l4events.FaultWallDirect:  0,
	}}
	totalSeconds := 0.0
	for _, r := range rallies {
		n := len(r.Touches)
		match.Rallies++
		match.Touches += n
		if n > match.LongestRallyTouches {
			match.LongestRallyTouches = n
		}
		d := r.DurationSeconds(cfg.FPS)
		totalSeconds += d
		if d > match.LongestRallySeconds {
			match.LongestRallySeconds = d
		}

		participants := make(map[l1detections.Class]bool)
		for _, t := range r.Touches {
			participants[t.Player] = true
			if ps := stats.player(t.Player); ps != nil {
				ps.Touches++
			}
		}
		for c := range participants {
			if ps := stats.player(c); ps != nil {
				ps.Rallies++
				ps.DuelLengths = append(ps.DuelLengths, n)
			}
		}

		if r.Fault != nil {
			match.Faults[r.Fault.Kind]++
			if ps := stats.player(r.Fault.LastToucher); ps != nil {
				ps.HitErrors++
			}
		}
	}
	if match.Rallies > 0 {
		match.MeanRallyTouches = float64(match.Touches) / float64(match.Rallies)
		match.MeanRallySeconds = totalSeconds / float64(match.Rallies)
	}
	stats.Match = match
	return stats
}

func (s *Stats) player(c l1detections.Class) *PlayerStats {
	for i := range s.Players {
		if s.Players[i].Player == c {
			return &s.Players[i]
		}
	}
	return nil
}

func seconds(frames int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frames) / fps
}

// playerSamples selects one court position per (player, frame) from the
// established samples of every track of that player, preferring observed
// samples over coasted ones. Positions are returned in frame order.
func playerSamples(tracks []*l3tracks.Track) map[l1detections.Class][]l2court.CourtPosition {
	type sample struct {
		pos      l2court.CourtPosition
		observed bool
	}
	byFrame := make(map[l1detections.Class]map[int]sample)
	for _, tr := range tracks {
		if !tr.Class.IsPlayer() {
			continue
		}
		frames := byFrame[tr.Class]
		if frames == nil {
			frames = make(map[int]sample)
			byFrame[tr.Class] = frames
		}
		for _, hp := range tr.History {
			if hp.Status != l3tracks.TrackConfirmed && hp.Status != l3tracks.TrackLost {
				continue
			}
			if prev, ok := frames[hp.FrameIndex]; ok && (prev.observed || !hp.Observed) {
				continue
			}
			frames[hp.FrameIndex] = sample{pos: hp.Position, observed: hp.Observed}
		}
	}

	out := make(map[l1detections.Class][]l2court.CourtPosition, len(byFrame))
	for c, frames := range byFrame {
		idx := make([]int, 0, len(frames))
		for f := range frames {
			idx = append(idx, f)
		}
		sort.Ints(idx)
		positions := make([]l2court.CourtPosition, len(idx))
		for i, f := range idx {
			positions[i] = frames[f].pos
		}
		out[c] = positions
	}
	return out
}

// heatmap bins positions into square cells of size metres, ordered by row
// then column.
func heatmap(positions []l2court.CourtPosition, size float64) []HeatmapCell {
	cells := []HeatmapCell{}
	if size <= 0 || len(positions) == 0 {
		return cells
	}
	type key struct{ col, row int }
	counts := make(map[key]int)
	for _, p := range positions {
		if !p.IsFinite() {
			continue
		}
		counts[key{int(math.Floor(p.X / size)), int(math.Floor(p.Y / size))}]++
	}
	peak := 0
	for k, n := range counts {
		cells = append(cells, HeatmapCell{
			Col:    k.col,
			Row:    k.row,
			X:      (float64(k.col) + 0.5) * size,
			Y:      (float64(k.row) + 0.5) * size,
			Frames: n,
		})
		if n > peak {
			peak = n
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	for i := range cells {
		cells[i].Intensity = float64(cells[i].Frames) / float64(peak)
	}
	return cells
}
