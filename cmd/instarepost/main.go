// Command instarepost runs the Instagram repost bot and manages its stored
// Instagram account.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/instarepost/core/buildinfo"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "instarepost",
	Short: "Telegram bot that reposts Instagram posts with credit to the author",
	Long: `instarepost downloads an Instagram post from a link sent to the bot, lets
the user write a new caption and reposts the media with an
"Original by @author" attribution.

Running without a subcommand starts the bot (same as "instarepost serve").`,
	Version:       buildinfo.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "instarepost", buildinfo.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $CONFIG_PATH, then config.yaml; missing file means env only)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd, loginCmd, logoutCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
