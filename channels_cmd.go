package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/voxplay/voxplay/internal/cache"
	"github.com/voxplay/voxplay/internal/channels"
	"github.com/voxplay/voxplay/internal/sink"
	"github.com/voxplay/voxplay/playback"
)

var (
	channelFilter  string
	channelProfile string
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List output channels on the TTS server",
	Long: paragraph(fmt.Sprintf("\nList the output channels known to the TTS server. With %s, mark the channels assigned to that voice profile and show the devices native playback would address.",
		keyword("--profile"))),
	Example: paragraph("voxplay channels\nvoxplay channels --filter booth\nvoxplay channels --profile narrator"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := playback.LoadConfigFromViper()
		if err != nil {
			return err
		}
		client := channels.FromConfig(cfg, channels.WithLogger(log.WithPrefix("channels")))

		list, err := client.ListChannels(cmd.Context())
		if err != nil {
			return err
		}
		list = channels.Filter(list, channelFilter)

		if channelProfile == "" {
			channelProfile = profile
		}
		var assigned []string
		if channelProfile != "" {
			assigned, err = profileResolver{client}.GetProfileChannels(cmd.Context(), channelProfile)
			if err != nil {
				return err
			}
		}
		return printChannels(cmd.OutOrStdout(), list, assigned, channelProfile != "")
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List native output devices and cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := playback.LoadConfigFromViper()
		if err != nil {
			return err
		}

		backend, err := nativeBackend(cfg)
		if err != nil {
			log.Debug("no native backend", "err", err)
		}
		s := sink.New(backend, log.WithPrefix("sink"))
		defer s.Close() //nolint:errcheck

		if err := listDevices(cmd.OutOrStdout(), s); err != nil {
			return err
		}

		if !cfg.Cache.Enabled {
			return nil
		}
		m, err := cache.NewManager(cfg.Cache, log.WithPrefix("cache"))
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck
		_, disk := m.Stats()
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", faint(fmt.Sprintf(
			"audio cache: %d files, %s of %s on disk",
			disk.Items, humanize.IBytes(uint64(disk.Size)), humanize.IBytes(uint64(disk.Capacity)))))
		return err
	},
}

func init() {
	channelsCmd.Flags().StringVarP(&channelFilter, "filter", "f", "", "fuzzy filter on channel names")
	channelsCmd.Flags().StringVarP(&channelProfile, "profile", "p", "", "mark the channels assigned to this profile")
}

// printChannels writes the channel table. With showRoute it also reports
// which output path a profile with the given assignment would use.
func printChannels(w io.Writer, list []playback.Channel, assigned []string, showRoute bool) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No channels.")
		return err
	}

	isAssigned := make(map[string]bool, len(assigned))
	for _, id := range assigned {
		isAssigned[id] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tID\tDEVICES") //nolint:errcheck
	for _, ch := range list {
		mark := ""
		if isAssigned[ch.ID] {
			mark = "*"
		}
		name := ch.Name
		if ch.IsDefault {
			name += " (default)"
		}
		devices := strings.Join(ch.DeviceIDs, ", ")
		if devices == "" {
			devices = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, name, ch.ID, devices) //nolint:errcheck
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !showRoute {
		return nil
	}
	native := playback.NativeDevices(assigned, list)
	route := "waveform (default output)"
	if len(native) > 0 {
		route = fmt.Sprintf("native, %s device(s): %s", humanize.Comma(int64(len(native))), strings.Join(native, ", "))
	}
	_, err := fmt.Fprintf(w, "\n%s %s\n", keyword("route:"), route)
	return err
}

// listDevices prints the devices of s, or a note when there is no native
// output at all.
func listDevices(w io.Writer, s *sink.Sink) error {
	devices, err := s.ListOutputDevices()
	if sink.IsUnsupported(err) {
		_, err = fmt.Fprintln(w, "No native output available.")
		return err
	}
	if err != nil {
		return err
	}
	return printDevices(w, devices)
}

func printDevices(w io.Writer, devices []sink.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No output devices.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDEFAULT") //nolint:errcheck
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Name, def) //nolint:errcheck
	}
	return tw.Flush()
}
