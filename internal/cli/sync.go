package cli

import (
	"github.com/spf13/cobra"

	"github.com/andywolf/milestonesync/internal/ref"
	"github.com/andywolf/milestonesync/internal/tracker"
)

var syncCmd = &cobra.Command{
	Use:   "sync <milestone-url>",
	Short: "Assign a milestone to every sub-issue of its issues",
	Long: `Assign the milestone to every descendant of the issues in the milestone.

Sub-issues may live in other repositories; they are assigned the milestone
with the same title in their own repository. Issues whose repository has no
such milestone are reported and left unchanged.

Example:
  msync sync https://github.com/org/app/milestone/7 --issues 12,15-18 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var syncAllCmd = &cobra.Command{
	Use:   "sync-all <owner/repo>",
	Short: "Run sync for every milestone of a repository",
	Long: `Run sync for every milestone of the repository, in milestone number order.

Example:
  msync sync-all org/app --state open
  msync sync-all org/app --milestone "Q3 2025"`,
	Args: cobra.ExactArgs(1),
	RunE: runSyncAll,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(syncAllCmd)

	addRunFlags(syncCmd)
	addSelectionFlags(syncCmd)
	syncCmd.Flags().StringSlice("issues", nil, "Only these root issue numbers (e.g. 12,15-18)")

	addRunFlags(syncAllCmd)
	syncAllCmd.Flags().String("state", tracker.StateAll, "Milestone state: open, closed or all")
	syncAllCmd.Flags().String("milestone", "", "Only the milestone with this title")
}

func runSync(cmd *cobra.Command, args []string) error {
	ms, err := ref.ParseMilestoneURL(args[0])
	if err != nil {
		return err
	}
	sel, err := selectionFromFlags(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cmd, "sync")
	if err != nil {
		return err
	}
	defer s.Close()
	return s.ctrl.Sync(cmd.Context(), ms, sel)
}

func runSyncAll(cmd *cobra.Command, args []string) error {
	repo, err := ref.ParseRepo(args[0])
	if err != nil {
		return err
	}
	only, _ := cmd.Flags().GetString("milestone")

	s, err := newSession(cmd, "sync-all")
	if err != nil {
		return err
	}
	defer s.Close()
	return s.ctrl.SyncAll(cmd.Context(), repo, s.cfg.Run.State, only)
}
