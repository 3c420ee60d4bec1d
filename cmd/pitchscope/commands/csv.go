package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/haivivi/pitchscope/pkg/audio/resampler"
	"github.com/haivivi/pitchscope/pkg/audio/wav"
	"github.com/haivivi/pitchscope/pkg/cli"
	"github.com/haivivi/pitchscope/pkg/observe"
	"github.com/haivivi/pitchscope/pkg/storage"
	"github.com/haivivi/pitchscope/pkg/stream"
)

var (
	csvOut      string
	csvProgress bool
)

var csvCmd = &cobra.Command{
	Use:   "csv <input.wav>",
	Short: "Estimate pitch for every frame of a WAV file and write CSV",
	Long: `Run the whole file through the model, one frame every 10 ms, and write
one row per frame:

  time,frequency,confidence

Frames whose inference fails are skipped. The output may be a local path or
an s3:// URI; "-" or no --out writes to stdout.

Examples:
  pitchscope csv take1.wav > take1.csv
  pitchscope csv take1.wav -o s3://exports/take1.csv --capacity full`,
	Args: cobra.ExactArgs(1),
	RunE: runCSV,
}

func init() {
	csvCmd.Flags().StringVarP(&csvOut, "out", "o", "", "output path or URI (default stdout)")
	csvCmd.Flags().BoolVar(&csvProgress, "progress", false, "show progress on stderr")
	addPipelineFlags(csvCmd.Flags())
	rootCmd.AddCommand(csvCmd)
}

func runCSV(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	logger := slog.Default()

	p, err := resolveProfile(cmd)
	if err != nil {
		return err
	}
	engine, err := resampler.ParseEngine(p.Engine)
	if err != nil {
		return err
	}

	audio, err := wav.ReadFile(args[0])
	if err != nil {
		return err
	}
	logger.Debug("input loaded", "file", args[0], "rate", audio.Rate, "channels", audio.Channels, "duration", audio.Duration())

	adapter, _, closeCache, err := newAdapter(p, logger)
	if err != nil {
		return err
	}
	err = adapter.Init(ctx)
	closeCache()
	if err != nil {
		adapter.Close()
		return err
	}
	defer adapter.Close()

	opts := stream.BatchOptions{
		Engine:  engine,
		Logger:  logger,
		Metrics: observe.DefaultMetrics(),
	}
	if csvProgress {
		errw := cmd.ErrOrStderr()
		opts.Progress = func(done, total int) {
			fmt.Fprintf(errw, "\r%s %d/%d", cli.Bar(float64(done)/float64(max(total, 1)), 30), done, total)
			if done == total {
				fmt.Fprintln(errw)
			}
		}
	}

	rows, err := stream.Batch(ctx, adapter, audio.Samples, audio.Rate, opts)
	if err != nil {
		return err
	}
	logger.Debug("batch done", "rows", len(rows))

	return writeRows(ctx, cmd.OutOrStdout(), csvOut, rows)
}

// writeRows writes CSV to w when dst is "" or "-", else to the storage
// location dst.
func writeRows(ctx context.Context, w io.Writer, dst string, rows []stream.Row) error {
	if dst == "" || dst == "-" {
		return stream.WriteCSV(w, rows)
	}
	var r storage.Resolver
	fs, name, err := r.Open(ctx, dst)
	if err != nil {
		return err
	}
	return storage.WriteFunc(ctx, fs, name, func(w io.Writer) error {
		return stream.WriteCSV(w, rows)
	})
}
