package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andywolf/milestonesync/internal/config"
	"github.com/andywolf/milestonesync/internal/controller"
	"github.com/andywolf/milestonesync/internal/ref"
	"github.com/andywolf/milestonesync/internal/routing"
	"github.com/andywolf/milestonesync/internal/tracker"
)

var convertCmd = &cobra.Command{
	Use:   "convert <milestone-url>",
	Short: "Turn the issues of a milestone into milestones",
	Long: `Create a milestone for each issue of the source milestone, titled like the
issue, in every repository that hosts one of its sub-issues, and assign the
sub-issues to it.

Issues without sub-issues are placed by prefix routes (first match wins) or,
when no route matches, in every target repository. Issues that match neither
are skipped with a warning.

Example:
  msync convert https://github.com/org/plan/milestone/3 \
    --route "[MPC]=org/mpc" --route "[Web]=org/web" --due-date 2026-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

var divisionCmd = &cobra.Command{
	Use:   "division <milestone-url>",
	Short: "Create a milestone for each labelled issue of a milestone",
	Long: `Create, in the source repository, a milestone for every issue of the source
milestone carrying the label (default "Division").

Example:
  msync division https://github.com/org/app/milestone/2 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runDivision,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(divisionCmd)

	addConvertFlags(convertCmd)

	addRunFlags(divisionCmd)
	divisionCmd.Flags().String("label", controller.DefaultDivisionLabel, "Label selecting the issues")
	divisionCmd.Flags().String("due-date", "", "Due date of created milestones, YYYY-MM-DD (default from config)")
}

func addConvertFlags(cmd *cobra.Command) {
	addRunFlags(cmd)
	addSelectionFlags(cmd)
	cmd.Flags().String("due-date", "", "Due date of created milestones, YYYY-MM-DD (default from config)")
	cmd.Flags().String("label", "", "Only issues with this label")
	cmd.Flags().StringArray("route", nil, "Route PREFIX=owner/repo for issues without sub-issues (repeatable)")
	cmd.Flags().String("routes-file", "", "YAML file with routes and target_repos")
	cmd.Flags().StringArray("target-repo", nil, "Fallback owner/repo when no route matches (repeatable)")
	cmd.Flags().Bool("recursive", false, "Assign the whole sub-issue tree, not just direct sub-issues")
}

func runConvert(cmd *cobra.Command, args []string) error {
	ms, err := ref.ParseMilestoneURL(args[0])
	if err != nil {
		return err
	}
	sel, err := selectionFromFlags(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cmd, "convert")
	if err != nil {
		return err
	}
	defer s.Close()

	router, err := buildRouter(cmd, s.cfg)
	if err != nil {
		return err
	}
	due, err := tracker.DueDate(s.cfg.Run.DueDate)
	if err != nil {
		return err
	}
	label, _ := cmd.Flags().GetString("label")
	recursive, _ := cmd.Flags().GetBool("recursive")

	return s.ctrl.Convert(cmd.Context(), ms, controller.ConvertOptions{
		Label:     label,
		DueDate:   due,
		Router:    router,
		Recursive: recursive,
		Selection: sel,
	})
}

// buildRouter merges routes from flags, the routes file and the config, in
// that order of precedence. Target repositories come from the first source
// that lists any.
func buildRouter(cmd *cobra.Command, cfg *config.Config) (*routing.Router, error) {
	flagRoutes, _ := cmd.Flags().GetStringArray("route")
	table, err := routing.ParseRoutes(flagRoutes)
	if err != nil {
		return nil, err
	}
	targets, _ := cmd.Flags().GetStringArray("target-repo")

	if path, _ := cmd.Flags().GetString("routes-file"); path != "" {
		file, err := routing.LoadFile(path)
		if err != nil {
			return nil, err
		}
		fileTable, err := routing.FromSpecs(file.Routes)
		if err != nil {
			return nil, fmt.Errorf("invalid routes in %s: %w", path, err)
		}
		table = append(table, fileTable...)
		if len(targets) == 0 {
			targets = file.TargetRepos
		}
	}

	cfgTable, err := routing.FromSpecs(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}
	table = append(table, cfgTable...)
	if len(targets) == 0 {
		targets = cfg.TargetRepos
	}

	fallback, err := routing.ParseTargets(targets)
	if err != nil {
		return nil, err
	}
	return routing.NewRouter(table, fallback), nil
}

func runDivision(cmd *cobra.Command, args []string) error {
	ms, err := ref.ParseMilestoneURL(args[0])
	if err != nil {
		return err
	}

	s, err := newSession(cmd, "division")
	if err != nil {
		return err
	}
	defer s.Close()

	due, err := tracker.DueDate(s.cfg.Run.DueDate)
	if err != nil {
		return err
	}
	label, _ := cmd.Flags().GetString("label")
	return s.ctrl.Division(cmd.Context(), ms, label, due)
}
