package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/padel.report/internal/config"
	"github.com/banshee-data/padel.report/internal/fsutil"
	"github.com/banshee-data/padel.report/internal/padel/l1detections"
	"github.com/banshee-data/padel.report/internal/padel/pipeline"
	"github.com/banshee-data/padel.report/internal/padel/report"
	"github.com/banshee-data/padel.report/internal/padel/result"
	"github.com/banshee-data/padel.report/internal/padel/storage/greptime"
	"github.com/banshee-data/padel.report/internal/padel/storage/sqlite"
	"github.com/banshee-data/padel.report/internal/vision"
)

type analyseOptions struct {
	calibration string
	detections  string
	video       string
	model       string
	labels      []string
	tuning      string

	out      string
	db       string
	html     string
	png      string
	greptime string
	database string

	workers int
	queue   int
}

func newAnalyseCmd() *cobra.Command {
	var o analyseOptions
	cmd := &cobra.Command{
		Use:     "analyse",
		Aliases: []string{"analyze"},
		Short:   "Analyse a match from video or recorded detections",
		Long: "analyse runs detection, tracking, event inference and statistics over one match " +
			"and writes the analysis to the requested outputs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return o.run(ctx, cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.calibration, "calibration", "", "Court calibration YAML")
	f.StringVar(&o.detections, "detections", "", "Recorded detections (JSONL) to replay instead of running a model")
	f.StringVar(&o.video, "video", "", "Match video file (requires --model and an opencv build)")
	f.StringVar(&o.model, "model", "", "YOLO ONNX model for --video")
	f.StringSliceVar(&o.labels, "labels", vision.DefaultLabels, "Model class labels in class-id order")
	f.StringVar(&o.tuning, "tuning", "", "Tuning JSON (defaults to built-in values)")
	f.StringVar(&o.out, "out", "", "Write the analysis JSON here")
	f.StringVar(&o.db, "db", "", "Persist the analysis into this SQLite database")
	f.StringVar(&o.html, "html", "", "Write the chart report here")
	f.StringVar(&o.png, "png", "", "Write the trajectory plot here")
	f.StringVar(&o.greptime, "greptime", "", "Stream samples and touches to GreptimeDB at host:port")
	f.StringVar(&o.database, "greptime-db", "public", "GreptimeDB database")
	f.IntVar(&o.workers, "workers", 0, "Concurrent detector calls (overrides tuning)")
	f.IntVar(&o.queue, "queue", 0, "Frames detected ahead of tracking (overrides tuning)")
	cmd.MarkFlagRequired("calibration")
	cmd.MarkFlagsMutuallyExclusive("detections", "video")
	cmd.MarkFlagsOneRequired("detections", "video")
	cmd.MarkFlagsRequiredTogether("video", "model")
	return cmd
}

func (o *analyseOptions) run(ctx context.Context, cmd *cobra.Command) error {
	tuning, err := loadTuning(o.tuning)
	if err != nil {
		return err
	}
	cal, err := config.LoadCalibration(o.calibration)
	if err != nil {
		return err
	}
	court, err := courtFromCalibration(cal, tuning)
	if err != nil {
		return err
	}

	cfg := pipeline.ConfigFromTuning(tuning)
	cfg.Events.FPS = cal.FPS
	cfg.Stats.FPS = cal.FPS
	cfg.Adapter.FrameWidth, cfg.Adapter.FrameHeight = cal.FrameDimensions()
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	if o.queue > 0 {
		cfg.QueueSize = o.queue
	}

	r := pipeline.NewRunner(cfg, court)
	r.Progress = func(p pipeline.Progress) {
		fmt.Fprintf(cmd.ErrOrStderr(), "frame %d: %d frames, %d live tracks, %d rallies (%s)\n",
			p.FrameIndex, p.FramesProcessed, p.LiveTracks, p.Rallies, p.Elapsed.Round(time.Millisecond))
	}

	if o.db != "" {
		db, err := sqlite.Open(o.db)
		if err != nil {
			return err
		}
		defer db.Close()
		r.Sinks = append(r.Sinks, db)
	}
	if o.greptime != "" {
		w, err := dialGreptime(o.greptime, o.database)
		if err != nil {
			return err
		}
		r.Sinks = append(r.Sinks, w)
	}

	var (
		source   l1detections.FrameSource
		detector l1detections.Detector
	)
	switch {
	case o.detections != "":
		fh, err := os.Open(o.detections)
		if err != nil {
			return fmt.Errorf("open detections: %w", err)
		}
		defer fh.Close()
		rec := l1detections.NewRecording(fh)
		source, detector = rec, rec
		r.Source = filepath.Base(o.detections)
	default:
		video, err := vision.OpenVideo(o.video)
		if err != nil {
			return err
		}
		defer video.Close()
		if fps := video.FPS(); fps > 0 && fps != cal.FPS {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: video reports %.2f fps, calibration says %.2f; using calibration\n", fps, cal.FPS)
		}
		dcfg := vision.DetectorConfigFromTuning(tuning)
		dcfg.ModelPath = o.model
		dcfg.Labels = o.labels
		det, err := vision.NewONNXDetector(dcfg)
		if err != nil {
			return err
		}
		defer det.Close()
		source, detector = video, det
		r.Source = filepath.Base(o.video)
	}

	a, err := r.Run(ctx, source, detector)
	var sinkErr *pipeline.SinkError
	if err != nil && !errors.As(err, &sinkErr) {
		return err
	}
	if werr := o.writeOutputs(a); werr != nil {
		return errors.Join(err, werr)
	}
	printSummary(cmd.OutOrStdout(), a)
	return err
}

// writeOutputs writes the file outputs of a.
func (o *analyseOptions) writeOutputs(a *result.Analysis) error {
	if o.out != "" {
		if err := result.Save(fsutil.OSFileSystem{}, o.out, a); err != nil {
			return err
		}
	}
	return writeReports(a, o.html, o.png)
}

// writeReports renders the HTML report and trajectory plot when their
// paths are set.
func writeReports(a *result.Analysis, htmlPath, pngPath string) error {
	if htmlPath != "" {
		fh, err := os.Create(htmlPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		if err := report.WriteHTML(fh, a); err != nil {
			fh.Close()
			return err
		}
		if err := fh.Close(); err != nil {
			return fmt.Errorf("close report: %w", err)
		}
	}
	if pngPath != "" {
		if err := report.WriteTrajectoryPNG(pngPath, a); err != nil {
			return err
		}
	}
	return nil
}

// dialGreptime connects a writer to addr (host:port).
func dialGreptime(addr, database string) (*greptime.Writer, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("greptime address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("greptime port %q: %w", portStr, err)
	}
	return greptime.Dial(host, port, database)
}
