package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/pitchscope/pkg/audio/portaudio"
)

// deviceTable renders input devices as a table.
type deviceTable []portaudio.DeviceInfo

func (t deviceTable) Header() []string {
	return []string{"default", "index", "name", "host api", "channels", "rate", "latency"}
}

func (t deviceTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, d := range t {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		rows[i] = []string{
			def,
			strconv.Itoa(d.Index),
			d.Name,
			d.HostAPI,
			strconv.Itoa(d.MaxInputChannels),
			fmt.Sprintf("%.0f", d.DefaultSampleRate),
			fmt.Sprintf("%.1fms", d.LowInputLatency*1000),
		}
	}
	return rows
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	Long: `List the input devices PortAudio can open. Use the index with
--input-device or 'pitchscope config set input_device <index>'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := portaudio.Initialize(); err != nil {
			return err
		}
		defer portaudio.Terminate()

		devs, err := portaudio.InputDevices()
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No input devices found.")
			return nil
		}
		return output(cmd, deviceTable(devs))
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
