package main

import (
	"os"

	"github.com/brizzai/drinklog/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func main() {
	Execute()
}

var configFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "drinklog",
	Short: "Command line client for the drink log API",
	Long: `drinklog signs in to the drink log backend and sends authenticated requests.
Expired access tokens are refreshed transparently; concurrent requests share one refresh.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")
	config.InitFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newRequestCmd(),
		newProbeCmd(),
		newMockServerCmd(),
	)
}
