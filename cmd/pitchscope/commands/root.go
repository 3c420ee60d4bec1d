package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/pitchscope/pkg/cli"
)

const appName = "pitchscope"

var (
	verbose      bool
	contextName  string
	configPath   string
	formatOutput string

	// globalConfig is loaded on first use.
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Streaming CREPE pitch estimation",
	Long: `pitchscope - real-time pitch estimation with the CREPE model.

Audio is resampled to 16 kHz, cut into 1024-sample frames every 10 ms and
run through a CREPE model on one of two backends:
  kernel   ncnn (Vulkan or CPU)
  graph    ONNX Runtime (WebGPU, CoreML, ... or CPU)

Configuration is stored in $XDG_CONFIG_HOME/pitchscope/config.yaml and holds
named contexts, each with a pipeline profile. Flags override the profile.

Examples:
  # Configure a context
  pitchscope config add-context studio
  pitchscope config set capacity small
  pitchscope config set model s3://models/crepe/crepe-small.param

  # Batch: WAV in, CSV out
  pitchscope csv take1.wav -o take1.csv

  # Live
  pitchscope live
  pitchscope serve --listen :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd.ErrOrStderr())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVarP(&contextName, "context", "c", "", "config context (default: current context)")
	pf.StringVar(&configPath, "config", "", "config file path")
	pf.StringVarP(&formatOutput, "format", "f", "table", "output format: table, yaml, json")
}

// setupLogger installs the default slog logger. -v switches to debug.
func setupLogger(w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// GetConfig returns the loaded configuration.
func GetConfig() (*cli.Config, error) {
	if globalConfig != nil && (configPath == "" || globalConfig.Path() == configPath) {
		return globalConfig, nil
	}
	cfg, err := cli.LoadConfigWithPath(appName, configPath)
	if err != nil {
		return nil, fmt.Errorf("config not available: %w", err)
	}
	globalConfig = cfg
	return cfg, nil
}

// output renders v in the --format format to cmd's stdout.
func output(cmd *cobra.Command, v any) error {
	f, err := cli.ParseOutputFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{Format: f, Writer: cmd.OutOrStdout()})
}
