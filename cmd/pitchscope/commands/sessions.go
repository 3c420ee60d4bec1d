package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/pitchscope/pkg/cli"
	"github.com/haivivi/pitchscope/pkg/kv"
	"github.com/haivivi/pitchscope/pkg/stream"
)

var sessionsExportOut string

// sessionTable renders recorded sessions as a table.
type sessionTable []stream.Session

func (t sessionTable) Header() []string {
	return []string{"id", "started", "duration", "backend", "model", "points"}
}

func (t sessionTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, s := range t {
		dur := "-"
		if !s.Ended.IsZero() {
			dur = cli.FormatDuration(s.Ended.Sub(s.Started))
		}
		rows[i] = []string{
			s.ID,
			s.Started.Local().Format(time.DateTime),
			dur,
			s.Backend,
			s.Model,
			strconv.FormatInt(s.Points, 10),
		}
	}
	return rows
}

// pointTable renders the points of one session.
type pointTable []stream.Point

func (t pointTable) Header() []string {
	return []string{"idx", "time", "note", "frequency", "confidence", "latency"}
}

func (t pointTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, p := range t {
		rows[i] = []string{
			strconv.FormatInt(p.Idx, 10),
			strconv.FormatFloat(p.TimestampMs/1000, 'f', 2, 64),
			p.PitchNote,
			cli.FormatHz(p.PitchHz),
			cli.FormatConfidence(p.Confidence),
			cli.FormatLatency(p.LatencyMs),
		}
	}
	return rows
}

// sessionDetail is the yaml/json form of 'sessions show'.
type sessionDetail struct {
	Session stream.Session `json:"session" yaml:"session"`
	Points  []stream.Point `json:"points" yaml:"points"`
}

// openSessions opens the session store of the resolved profile.
func openSessions(cmd *cobra.Command) (*kv.Badger, error) {
	p, err := resolveProfile(cmd)
	if err != nil {
		return nil, err
	}
	dir, _, err := storeDirs(p)
	if err != nil {
		return nil, err
	}
	return kv.NewBadger(kv.BadgerOptions{Dir: dir})
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Recorded sessions",
	Long: `Inspect sessions recorded with 'pitchscope live --record' or
'pitchscope serve --record'.

Examples:
  pitchscope sessions list
  pitchscope sessions show 3f2a...
  pitchscope sessions export 3f2a... -o s3://exports/take.csv
  pitchscope sessions delete 3f2a...`,
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := stream.Sessions(cmd.Context(), store)
		if err != nil {
			return err
		}
		if len(sessions) == 0 && formatOutput == "table" {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
			return nil
		}
		return output(cmd, sessionTable(sessions))
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the points of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		s, points, err := stream.LoadSession(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		if formatOutput == "table" {
			return output(cmd, pointTable(points))
		}
		return output(cmd, sessionDetail{Session: s, Points: points})
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a session as time,frequency,confidence CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		_, points, err := stream.LoadSession(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		return writeRows(cmd.Context(), cmd.OutOrStdout(), sessionsExportOut, stream.PointRows(points))
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete sessions",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		var errs []error
		for _, id := range args {
			if err := stream.DeleteSession(cmd.Context(), store, id); err != nil {
				errs = append(errs, err)
				continue
			}
			cli.PrintSuccess(cmd.OutOrStdout(), "deleted %s", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	sessionsExportCmd.Flags().StringVarP(&sessionsExportOut, "out", "o", "", "output path or URI (default stdout)")
	for _, c := range []*cobra.Command{sessionsListCmd, sessionsShowCmd, sessionsExportCmd, sessionsDeleteCmd} {
		c.Flags().String("store-dir", "", "directory for recorded sessions and the model cache")
		sessionsCmd.AddCommand(c)
	}
	rootCmd.AddCommand(sessionsCmd)
}
