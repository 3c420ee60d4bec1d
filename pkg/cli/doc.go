// Package cli provides the configuration and terminal output shared by the
// pitchscope commands.
//
// This package includes:
//   - Configuration contexts, each holding a pipeline [Profile]
//   - Output formatting (YAML, JSON, table)
//   - Profile file loading (YAML/JSON)
//   - A log writer and status frame for the live terminal view
//
// Configuration lives in $XDG_CONFIG_HOME/pitchscope/config.yaml (see
// [Paths]) and supports multiple contexts similar to kubectl:
//
//	cfg, err := cli.LoadConfig("pitchscope")
//	ctx, err := cfg.ResolveContext(flagContext)
//	profile := ctx.Profile.WithDefaults()
//
//	cli.Output(sessions, cli.OutputOptions{Format: cli.FormatTable})
package cli
