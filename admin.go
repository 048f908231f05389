package main

import (
	"fmt"
	netrpc "net/rpc"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/wfunc/foosref/rpc"
)

func newAdminCommand() *cobra.Command {
	var addr string

	dial := func() (*netrpc.Client, error) {
		client, err := netrpc.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return client, nil
	}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operate a running referee over RPC",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "localhost:9090", "admin RPC address")

	cmd.AddCommand(&cobra.Command{
		Use:   "reset CHANNEL",
		Short: "Clear a channel's game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Close()

			var reply rpc.ResetReply
			if err := client.Call("Admin.ResetChannel", &rpc.ChannelArgs{ChannelID: args[0]}, &reply); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel %s reset\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "state CHANNEL",
		Short: "Show a channel's game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Close()

			var reply rpc.ChannelStateReply
			if err := client.Call("Admin.ChannelState", &rpc.ChannelArgs{ChannelID: args[0]}, &reply); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "channel:   %s\n", reply.ChannelID)
			fmt.Fprintf(out, "phase:     %s\n", reply.Phase)
			fmt.Fprintf(out, "open:      %t\n", reply.Open)
			fmt.Fprintf(out, "players:   %s\n", strings.Join(reply.Players, ", "))
			fmt.Fprintf(out, "last game: %s\n", humanize.Time(reply.LastGameAt))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "channels",
		Short: "List channels with a game state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Close()

			var reply rpc.ListChannelsReply
			if err := client.Call("Admin.ListChannels", &rpc.ListChannelsArgs{}, &reply); err != nil {
				return err
			}
			for _, id := range reply.Channels {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	return cmd
}
