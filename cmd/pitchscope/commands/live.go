package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/pitchscope/pkg/cli"
	"github.com/haivivi/pitchscope/pkg/observe"
	"github.com/haivivi/pitchscope/pkg/pitch"
	"github.com/haivivi/pitchscope/pkg/stream"
)

var (
	liveSource  sourceFlags
	livePlain   bool
	liveRefresh time.Duration
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Show live pitch from the microphone",
	Long: `Capture from an input device and show the current pitch, its nearest note
and a tuning gauge. Frames that arrive while the model is busy are dropped,
so the display never falls behind.

With --plain, every point is printed as a tab-separated line instead.

Examples:
  pitchscope live
  pitchscope live --input-device 2 --capacity small --record
  pitchscope live --file take1.wav --plain`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

func init() {
	liveSource.register(liveCmd.Flags())
	liveCmd.Flags().BoolVar(&livePlain, "plain", false, "print points as lines instead of the status view")
	liveCmd.Flags().DurationVar(&liveRefresh, "refresh", 100*time.Millisecond, "status view refresh interval")
	addPipelineFlags(liveCmd.Flags())
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := resolveProfile(cmd)
	if err != nil {
		return err
	}

	logger := slog.Default()
	var logs *cli.LogWriter
	if !livePlain {
		logs = cli.NewLogWriter(64)
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: level}))
	}

	run, err := startLive(ctx, p, &liveSource, logger, observe.DefaultMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := run.Stop(); err != nil {
			slog.Warn("stop failed", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	if livePlain {
		return printPoints(ctx, out, run)
	}
	return showStatus(ctx, out, run, logs, liveRefresh)
}

// printPoints writes the stored points, then every new one until ctx ends
// or the replay finishes.
func printPoints(ctx context.Context, w io.Writer, run *liveRun) error {
	snapshot, ch, cancel := run.pipeline.Sink().Follow(256)
	defer cancel()

	fmt.Fprintln(w, "idx\ttime\tnote\tfrequency\tconfidence\tlatency")
	for _, pt := range snapshot {
		writePoint(w, pt)
	}
	for {
		select {
		case pt := <-ch:
			writePoint(w, pt)
		case <-run.done():
			run.pipeline.Wait()
			for {
				select {
				case pt := <-ch:
					writePoint(w, pt)
				default:
					return nil
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func writePoint(w io.Writer, pt stream.Point) {
	fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%s\t%s\n",
		pt.Idx,
		pt.TimestampMs/1000,
		pt.PitchNote,
		cli.FormatHz(pt.PitchHz),
		cli.FormatConfidence(pt.Confidence),
		cli.FormatLatency(pt.LatencyMs),
	)
}

// showStatus redraws the status view every refresh until ctx ends or the
// replay finishes.
func showStatus(ctx context.Context, w io.Writer, run *liveRun, logs *cli.LogWriter, refresh time.Duration) error {
	t := time.NewTicker(refresh)
	defer t.Stop()

	styles := cli.NewStyles(cli.DefaultTheme)
	width, height := termSize()
	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-run.done():
			run.pipeline.Wait()
			fmt.Fprintln(w, statusFrame(run, styles, logs, time.Since(started)).Render(width, height))
			return nil
		case <-t.C:
			fmt.Fprint(w, "\033[H\033[2J")
			fmt.Fprintln(w, statusFrame(run, styles, logs, time.Since(started)).Render(width, height))
		}
	}
}

func statusFrame(run *liveRun, styles cli.Styles, logs *cli.LogWriter, elapsed time.Duration) cli.Frame {
	pl := run.pipeline
	status := pl.State().String()
	if pl.Paused() {
		status += ", paused"
	}

	var now []string
	if pt, ok := pl.Sink().Last(); ok {
		dev := pitch.Deviation(pt.PitchHz)
		now = []string{
			styles.Note.Render(pt.PitchNote) + " " + cli.FormatHz(pt.PitchHz) + "  " + cli.FormatCents(dev),
			cli.TuningGauge(dev, 41),
			"confidence " + cli.Bar(pt.Confidence, 20) + " " + cli.FormatConfidence(pt.Confidence),
		}
	} else {
		now = []string{styles.Help.Render("waiting for the first frame...")}
	}

	admitted, dropped := pl.Stats()
	points := pl.Sink().Snapshot()
	var notes []string
	for _, pt := range points[max(0, len(points)-16):] {
		notes = append(notes, pt.PitchNote)
	}
	var latency string
	if n := len(points); n > 0 {
		latency = cli.FormatLatency(points[n-1].LatencyMs)
	}
	streamLines := []string{
		fmt.Sprintf("elapsed %s  points %d  admitted %d  dropped %d  latency %s",
			cli.FormatDuration(elapsed), pl.Sink().NextIdx(), admitted, dropped, latency),
		"recent " + strings.Join(notes, " "),
	}
	if dropped > 0 && admitted > 0 && dropped > 4*admitted {
		streamLines = append(streamLines, styles.Warn.Render("backend slower than the frame rate; most frames dropped"))
	}

	sections := []cli.Section{
		{Label: "Pitch", Lines: now},
		{Label: "Stream", Lines: streamLines},
	}
	if logs != nil {
		sections = append(sections, cli.Section{Label: "Log", Lines: logs.Lines()})
	}
	return cli.Frame{
		Styles:   styles,
		Title:    "pitchscope " + run.backend,
		Status:   status,
		Sections: sections,
		Help:     "ctrl+c to quit",
	}
}

// termSize reads COLUMNS and LINES, defaulting to 80x24.
func termSize() (width, height int) {
	width, height = 80, 24
	if v, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && v > 20 {
		width = v
	}
	if v, err := strconv.Atoi(os.Getenv("LINES")); err == nil && v > 10 {
		height = v
	}
	return width, height
}
