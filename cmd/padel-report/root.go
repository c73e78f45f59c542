package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/padel.report/internal/padel/pipeline"
	"github.com/banshee-data/padel.report/internal/padel/storage/greptime"
	"github.com/banshee-data/padel.report/internal/padel/storage/sqlite"
	"github.com/banshee-data/padel.report/internal/version"
	"github.com/banshee-data/padel.report/internal/vision"
)

type rootOptions struct {
	verbose bool
	trace   bool
}

func newRootCmd() *cobra.Command {
	var o rootOptions
	cmd := &cobra.Command{
		Use:           "padel-report",
		Short:         "Padel match tracking and event inference",
		Long:          "padel-report turns fixed-camera padel video (or recorded detections) into tracks, rallies, touches and player statistics.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.configureLogging(cmd.ErrOrStderr())
		},
	}
	cmd.SetVersionTemplate(version.String() + "\n")
	cmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Log lifecycle and diagnostic detail to stderr")
	cmd.PersistentFlags().BoolVar(&o.trace, "trace", false, "Log per-frame telemetry to stderr (implies --verbose)")

	cmd.AddCommand(newAnalyseCmd(), newReportCmd(), newRunsCmd())
	return cmd
}

// configureLogging routes the ops stream to w always and the diag and
// trace streams only when requested.
func (o rootOptions) configureLogging(w io.Writer) {
	var diag, trace io.Writer
	if o.verbose || o.trace {
		diag = w
	}
	if o.trace {
		trace = w
	}
	pipeline.SetLogWriters(w, diag, trace)
	vision.SetLogWriters(w, diag)
	sqlite.SetLogWriters(w, diag)
	greptime.SetLogWriters(w, diag)
}
