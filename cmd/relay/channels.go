package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/registry"
	"github.com/spf13/cobra"
)

const defaultChannelsFile = "./configs/channels.yaml"

// channelsCmd edits the channels file. A running relay picks the change up
// through its file watcher.
func channelsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List, add, update or remove monitored channels",
		Long:  "Channel ids are negative numbers; pass them after -- so they are not read as flags.",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "channels file (default: $CHANNELS_FILE or "+defaultChannelsFile+")")

	cmd.AddCommand(channelsListCmd(&file))
	cmd.AddCommand(channelsAddCmd(&file))
	cmd.AddCommand(channelsRemoveCmd(&file))
	return cmd
}

func resolveChannelsFile(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("CHANNELS_FILE"); v != "" {
		return v
	}
	return defaultChannelsFile
}

func channelsListCmd(file *string) *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print configured channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(resolveChannelsFile(*file), nil)
			if err != nil {
				return err
			}
			return printChannels(cmd.OutOrStdout(), reg.All(activeOnly))
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active channels")
	return cmd
}

func printChannels(w io.Writer, channels []domain.ChannelConfig) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tNAME\tACTIVE\tTOPIC\tTEXT\tPRICE")
	for _, c := range channels {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%t\t%t\n",
			c.ChannelID, c.ChannelName, c.IsActive(), c.DestinationTopic, c.TextEnabled(), c.PriceEnabled())
	}
	return tw.Flush()
}

func channelsAddCmd(file *string) *cobra.Command {
	var (
		name         string
		topic        int
		inactive     bool
		noText       bool
		noPrice      bool
		pricePattern string
		media        domain.MediaTypes
	)
	cmd := &cobra.Command{
		Use:   "add [flags] -- <channel-id>",
		Short: "Add a channel or replace its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, text, price := !inactive, !noText, !noPrice
			mt := media
			c := domain.ChannelConfig{
				ChannelID:        args[0],
				ChannelName:      name,
				Active:           &active,
				IncludeText:      &text,
				IncludePrice:     &price,
				PricePattern:     pricePattern,
				MediaTypes:       &mt,
				DestinationTopic: topic,
			}
			if err := upsertChannel(resolveChannelsFile(*file), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel %s saved\n", c.ChannelID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name used for attribution")
	cmd.Flags().IntVar(&topic, "topic", 0, "destination topic id (0 = main chat)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "register the channel paused")
	cmd.Flags().BoolVar(&noText, "no-text", false, "skip name and price extraction")
	cmd.Flags().BoolVar(&noPrice, "no-price", false, "skip price extraction")
	cmd.Flags().StringVar(&pricePattern, "price-pattern", "", "custom price regex tried first")
	cmd.Flags().BoolVar(&media.Photos, "photos", true, "forward photos")
	cmd.Flags().BoolVar(&media.Videos, "videos", false, "forward videos")
	cmd.Flags().BoolVar(&media.Documents, "documents", false, "forward documents")
	return cmd
}

func channelsRemoveCmd(file *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove -- <channel-id>",
		Short: "Stop monitoring a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := removeChannel(resolveChannelsFile(*file), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("channel %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel %s removed\n", args[0])
			return nil
		},
	}
}

// upsertChannel persists immediately so a watcher reload never drops the change.
func upsertChannel(path string, c domain.ChannelConfig) error {
	reg, err := registry.Load(path, nil)
	if err != nil {
		return err
	}
	if err := reg.Upsert(c); err != nil {
		return err
	}
	return reg.Save()
}

func removeChannel(path, channelID string) (bool, error) {
	reg, err := registry.Load(path, nil)
	if err != nil {
		return false, err
	}
	if !reg.Remove(channelID) {
		return false, nil
	}
	return true, reg.Save()
}
