package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/pitchscope/pkg/cli"
)

var (
	addContextFrom string
	configShowAll  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration contexts",
	Long: `Manage named contexts. Each context holds a pipeline profile: backend,
model location, capacity, resampler engine, store directory, listen address
and S3 settings.

Examples:
  pitchscope config add-context studio
  pitchscope config add-context laptop --from laptop.yaml
  pitchscope config use-context studio
  pitchscope config get-contexts
  pitchscope config set capacity small
  pitchscope config set -c laptop backend graph
  pitchscope config get model
  pitchscope config view`,
}

// contextTable renders contexts with the current one marked.
type contextTable struct {
	current  string
	contexts []*cli.Context
}

func (t contextTable) Header() []string {
	return []string{"current", "name", "backend", "capacity", "model"}
}

func (t contextTable) Rows() [][]string {
	rows := make([][]string, len(t.contexts))
	for i, c := range t.contexts {
		mark := ""
		if c.Name == t.current {
			mark = "*"
		}
		p := c.Profile.WithDefaults()
		rows[i] = []string{mark, c.Name, p.Backend, p.Capacity, p.Model}
	}
	return rows
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create or replace a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx := &cli.Context{}
		if addContextFrom != "" {
			if err := cli.LoadFile(addContextFrom, &ctx.Profile); err != nil {
				return err
			}
		}
		if err := cfg.AddContext(args[0], ctx); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "context %q saved", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "switched to context %q", args[0])
		return nil
	},
}

var configGetContextsCmd = &cobra.Command{
	Use:     "get-contexts",
	Aliases: []string{"list-contexts"},
	Short:   "List contexts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured.")
			fmt.Fprintln(cmd.OutOrStdout(), "Create one with: pitchscope config add-context <name>")
			return nil
		}
		t := contextTable{current: cfg.CurrentContext}
		for _, n := range names {
			t.contexts = append(t.contexts, cfg.Contexts[n])
		}
		if formatOutput != "table" {
			return output(cmd, cfg.Contexts)
		}
		return output(cmd, t)
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Print the current context",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			return fmt.Errorf("no current context set")
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile value in a context",
	Long: "Set a profile value in the selected context (--context, else current).\n\nKeys:\n  " +
		strings.Join(cli.ProfileKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := targetContext()
		if err != nil {
			return err
		}
		if err := ctx.Profile.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "%s.%s updated", ctx.Name, args[0])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a profile value of a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, ctx, err := targetContext()
		if err != nil {
			return err
		}
		p := ctx.Profile.Masked()
		v, err := p.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the effective profile of a context",
	Long: `Show the profile of the selected context with defaults applied.
Credentials are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx, err := cfg.ResolveContext(contextName)
		if err != nil {
			return err
		}
		p := ctx.Profile
		if configShowAll {
			p = p.WithDefaults()
		}
		view := struct {
			Context string      `json:"context" yaml:"context"`
			Path    string      `json:"path" yaml:"path"`
			Profile cli.Profile `json:"profile" yaml:"profile"`
		}{ctx.Name, cfg.Path(), p.Masked()}
		if formatOutput == "table" {
			return cli.Output(view, cli.OutputOptions{Format: cli.FormatYAML, Writer: cmd.OutOrStdout()})
		}
		return output(cmd, view)
	},
}

// targetContext returns the context named by --context, else the current
// one. Unlike ResolveContext it never returns an unsaved default.
func targetContext() (*cli.Config, *cli.Context, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, nil, err
	}
	var ctx *cli.Context
	if contextName != "" {
		ctx, err = cfg.GetContext(contextName)
	} else {
		ctx, err = cfg.GetCurrentContext()
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, ctx, nil
}

func init() {
	configAddContextCmd.Flags().StringVar(&addContextFrom, "from", "", "initialize the profile from a YAML or JSON file")
	configViewCmd.Flags().BoolVar(&configShowAll, "defaults", true, "apply defaults to unset fields")

	configCmd.AddCommand(
		configAddContextCmd,
		configDeleteContextCmd,
		configUseContextCmd,
		configGetContextsCmd,
		configCurrentContextCmd,
		configSetCmd,
		configGetCmd,
		configViewCmd,
	)
	rootCmd.AddCommand(configCmd)
}
