package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove stale staging artifacts and old history",
	Long: `Remove staged artifacts older than --older-than. Artifacts normally go away
when their review ends; these are left over from runs that were killed.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Duration("older-than", 24*time.Hour, "age of staging artifacts to remove")
	cleanCmd.Flags().Duration("history-older-than", 0, "also prune history sessions older than this")
}

func runClean(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	historyAge, _ := cmd.Flags().GetDuration("history-older-than")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.stager.Sweep(olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d staging artifact(s) from %s\n", n, a.stager.Dir())

	if historyAge > 0 {
		if a.history == nil {
			return fmt.Errorf("review history is not available (history.path)")
		}
		pruned, err := a.history.Prune(time.Now().Add(-historyAge))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d history session(s)\n", pruned)
	}
	return nil
}
