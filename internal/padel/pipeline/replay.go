package pipeline

import (
	"fmt"

	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/l4events"
	"github.com/banshee-data/padel.report/internal/padel/l5stats"
	"github.com/banshee-data/padel.report/internal/padel/result"
)

// Recompute reruns event inference and statistics over the stored tracks
// of a with cfg, replacing its rallies, statistics and event warnings.
// Detection and tracking warnings are kept; the tracks themselves are not
// recomputed.
func Recompute(cfg Config, courtCfg l2court.ModelConfig, a *result.Analysis) error {
	court, err := a.Court.Model(courtCfg)
	if err != nil {
		return fmt.Errorf("rebuild court: %w", err)
	}
	tracks := a.HistoryTracks()
	rallies, warnings, err := l4events.Run(cfg.Events, court, l4events.FramesFromTracks(tracks))
	if err != nil {
		return fmt.Errorf("replay events: %w", err)
	}

	kept := make([]result.Warning, 0, len(a.Warnings)+len(warnings))
	for _, w := range a.Warnings {
		if w.Kind != result.WarningAmbiguousAttribution {
			kept = append(kept, w)
		}
	}
	for _, w := range warnings {
		kept = append(kept, result.WarningFromError(a.LastFrame, w))
	}
	if rallies == nil {
		rallies = []l4events.Rally{}
	}

	a.Rallies = rallies
	a.Warnings = kept
	a.FPS = cfg.Stats.FPS
	a.SetStats(l5stats.Compute(cfg.Stats, court, tracks, rallies))
	diagf("recomputed run %s: %d rallies, %d warnings", a.RunID, len(rallies), len(kept))
	return nil
}
