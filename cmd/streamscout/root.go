package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for streamscout.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streamscout",
		Short: "Build M3U playlists from live stream listing sites",
		Long: `streamscout discovers channel pages on a live stream listing site, opens each
channel in a headless Chrome and records the HLS manifest (.m3u8) the player
requests. Resolved channels are written to an M3U playlist.

Every run is recorded in a local history database so past playlists can be
listed and exported again.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
