package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/padel.report/internal/fsutil"
	"github.com/banshee-data/padel.report/internal/padel/l2court"
	"github.com/banshee-data/padel.report/internal/padel/pipeline"
	"github.com/banshee-data/padel.report/internal/padel/result"
	"github.com/banshee-data/padel.report/internal/padel/storage/sqlite"
)

type reportOptions struct {
	in        string
	db        string
	run       string
	html      string
	png       string
	out       string
	recompute bool
	tuning    string
}

func newReportCmd() *cobra.Command {
	var o reportOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render reports from a stored analysis",
		Long: "report loads an analysis from a JSON file or a SQLite database and renders it. " +
			"With --recompute, rallies and statistics are re-inferred from the stored tracks.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.load(cmd.Context())
			if err != nil {
				return err
			}
			if o.recompute {
				tuning, err := loadTuning(o.tuning)
				if err != nil {
					return err
				}
				cfg := pipeline.ConfigFromTuning(tuning)
				if a.FPS > 0 && o.tuning == "" {
					cfg.Events.FPS = a.FPS
					cfg.Stats.FPS = a.FPS
				}
				if err := pipeline.Recompute(cfg, l2court.ModelConfigFromTuning(tuning), a); err != nil {
					return err
				}
			}
			if o.out != "" {
				if err := result.Save(fsutil.OSFileSystem{}, o.out, a); err != nil {
					return err
				}
			}
			if err := writeReports(a, o.html, o.png); err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), a)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "Analysis JSON to load")
	f.StringVar(&o.db, "db", "", "SQLite database to load from (with --run)")
	f.StringVar(&o.run, "run", "", "Run id to load from --db")
	f.StringVar(&o.html, "html", "", "Write the chart report here")
	f.StringVar(&o.png, "png", "", "Write the trajectory plot here")
	f.StringVar(&o.out, "out", "", "Write the (recomputed) analysis JSON here")
	f.BoolVar(&o.recompute, "recompute", false, "Re-infer rallies and statistics from the stored tracks")
	f.StringVar(&o.tuning, "tuning", "", "Tuning JSON for --recompute")
	cmd.MarkFlagsMutuallyExclusive("in", "db")
	cmd.MarkFlagsOneRequired("in", "db")
	cmd.MarkFlagsRequiredTogether("db", "run")
	return cmd
}

func (o *reportOptions) load(ctx context.Context) (*result.Analysis, error) {
	if o.in != "" {
		return result.Load(fsutil.OSFileSystem{}, o.in)
	}
	db, err := sqlite.Open(o.db)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	a, err := db.LoadAnalysis(ctx, o.run)
	var notFound *sqlite.RunNotFoundError
	if errors.As(err, &notFound) {
		return nil, fmt.Errorf("%w (list runs with: padel-report runs --db %s)", err, o.db)
	}
	return a, err
}
