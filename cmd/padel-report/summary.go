package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/banshee-data/padel.report/internal/padel/result"
)

// printSummary writes the headline numbers of a.
func printSummary(w io.Writer, a *result.Analysis) {
	fmt.Fprintf(w, "run %s: %d frames (%d-%d), %d tracks, %d rallies, %d touches, %d warnings\n",
		a.RunID, a.FramesProcessed, a.FirstFrame, a.LastFrame, len(a.Tracks),
		a.MatchStats.Rallies, a.MatchStats.Touches, len(a.Warnings))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tTOUCHES\tRALLIES\tHIT ERRORS")
	for _, p := range a.PlayerStats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", p.Player, p.Touches, p.Rallies, p.HitErrors)
	}
	tw.Flush()
}
