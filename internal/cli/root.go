package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/milestonesync/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "msync",
	Short: "msync - keep GitHub sub-issues on their parent's milestone",
	Long: `msync synchronizes milestones across GitHub sub-issue hierarchies.

It assigns a milestone to every descendant of the issues in that milestone,
turns issues into milestones in the repositories that host their sub-issues,
and moves sub-issues between parents. Every command supports --dry-run.

Example:
  msync sync https://github.com/org/app/milestone/7 --dry-run
  msync convert https://github.com/org/plan/milestone/3 --route "[MPC]=org/mpc"`,
	SilenceUsage: true,
}

// Execute runs the root command. Cancelling ctx interrupts the running command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .msync.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().String("backend", "", "tracker backend: gh or api")
	rootCmd.PersistentFlags().String("journal", "", "append a JSON line per mutation to this file")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("tracker.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("logging.journal", rootCmd.PersistentFlags().Lookup("journal"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".msync")
	}

	viper.SetEnvPrefix("MSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		os.Exit(1)
	}
}
