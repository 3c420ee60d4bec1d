package commands

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/pitchscope/cmd/pitchscope/internal/build"
	"github.com/haivivi/pitchscope/pkg/observe"
	"github.com/haivivi/pitchscope/pkg/pointserver"
)

var (
	serveSource  sourceFlags
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live pipeline behind an HTTP and websocket point server",
	Long: `Run the live pipeline and serve its points to display clients.

Routes:
  GET  /points?since=N   snapshot of the point window
  GET  /state            pipeline state and frame counters
  POST /pause            {"paused": true|false}
  POST /reset            clear the window and restart numbering
  GET  /ws               websocket stream of points
  GET  /healthz          liveness
  GET  /metrics          Prometheus metrics

Examples:
  pitchscope serve --listen :8080
  pitchscope serve --allow-origin http://localhost:5173 --record`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveSource.register(serveCmd.Flags())
	serveCmd.Flags().String("listen", "", "listen address (default 127.0.0.1:8080)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allow-origin", nil, "allowed browser origins (default any)")
	addPipelineFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	p, err := resolveProfile(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("allow-origin") {
		p.AllowedOrigins = serveOrigins
	}

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: build.Version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if serr := provider.Shutdown(cmd.Context()); serr != nil {
			logger.Warn("telemetry shutdown failed", "error", serr)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", p.Listen)
	if err != nil {
		return err
	}

	run, err := startLive(ctx, p, &serveSource, logger, metrics)
	if err != nil {
		ln.Close()
		return err
	}

	srv := pointserver.New(run.pipeline, pointserver.Config{
		AllowedOrigins: p.AllowedOrigins,
		Backend:        run.backend,
		Model:          run.model,
		MetricsHandler: provider.Handler(),
		Metrics:        metrics,
		Logger:         logger,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "serving points on http://%s\n", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		select {
		case <-run.done():
			run.pipeline.Wait()
			logger.Info("replay finished; still serving", "points", run.pipeline.Sink().NextIdx())
		case <-gctx.Done():
		}
		return nil
	})

	err = g.Wait()
	if serr := run.Stop(); serr != nil {
		logger.Warn("stop failed", "error", serr)
	}
	return err
}
