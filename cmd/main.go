// Command pollwatch watches Doodle polls and tells Slack channels when
// participants vote.
//
//	pollwatch serve -c pollwatch.yaml
//	pollwatch check https://doodle.com/poll/...
//	pollwatch version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "pollwatch",
	Short: "Watch Doodle polls from Slack",
	Long: `pollwatch watches Doodle polls and posts the changes to the Slack
channels that subscribed to them with /doodle subscribe <url>.

Configuration comes from an optional file and POLLWATCH_* environment
variables, e.g. POLLWATCH_SLACK_TOKEN.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pollwatch %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
