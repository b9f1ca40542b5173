package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	// configPath is shared by all subcommands.
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "grimoire",
	Short: "Grimoire - collaborative RPG character sheet service",
	Long: `Grimoire serves structured RPG character sheets and dice-macro documents
over HTTP and pushes accepted edits live to every client viewing the same
document over a websocket room layer.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// No subcommand: show help instead of silently succeeding.
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing; the printer package
	// formats errors itself.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "grimoire.yml", "path to the configuration file")
}
