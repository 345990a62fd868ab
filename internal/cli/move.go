package cli

import (
	"github.com/spf13/cobra"

	"github.com/andywolf/milestonesync/internal/ref"
)

var moveCmd = &cobra.Command{
	Use:   "move-subissues <source-issue-url> <target-issue-url>",
	Short: "Move every sub-issue of one issue under another",
	Long: `Remove each direct sub-issue from the source issue, add it to the target
issue and optionally label it.

Example:
  msync move-subissues https://github.com/org/app/issues/10 \
    https://github.com/org/app/issues/42 --label migrated`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)

	addRunFlags(moveCmd)
	moveCmd.Flags().StringArray("label", nil, "Label to add to each moved issue (repeatable)")
}

func runMove(cmd *cobra.Command, args []string) error {
	src, err := ref.ParseIssueURL(args[0])
	if err != nil {
		return err
	}
	dst, err := ref.ParseIssueURL(args[1])
	if err != nil {
		return err
	}
	labels, _ := cmd.Flags().GetStringArray("label")

	s, err := newSession(cmd, "move-subissues")
	if err != nil {
		return err
	}
	defer s.Close()
	return s.ctrl.MoveSubIssues(cmd.Context(), src, dst, labels)
}
