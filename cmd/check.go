package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
	"github.com/CedricFinance/pollwatch/infrastructure/doodle"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Fetch a poll once and print what was read",
	Long: `Fetch a poll page and print its title, options and participants the way
the monitor reads them. Useful to see whether a poll can be watched.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Duration("timeout", 30*time.Second, "fetch timeout")
}

func runCheck(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client := doodle.NewClient(timeout)
	defer client.Close()

	snapshot, err := services.NewSnapshotSource(client, doodle.Parser{}).Snapshot(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printSnapshot(cmd, snapshot)
	return nil
}

func printSnapshot(cmd *cobra.Command, snapshot *entities.Snapshot) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s\n", snapshot.Title)
	fmt.Fprintf(out, "Options: %s\n", strings.Join(snapshot.OptionsText, " | "))
	fmt.Fprintf(out, "Participants: %d\n", len(snapshot.Participants))
	for _, p := range snapshot.Participants {
		votes := make([]string, 0, len(p.Preferences))
		for _, preference := range p.Preferences {
			votes = append(votes, entities.PreferenceLabel(preference))
		}
		fmt.Fprintf(out, "  %s: %s\n", p.Name, strings.Join(votes, ", "))
	}
}
