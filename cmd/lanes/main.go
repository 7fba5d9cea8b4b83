// Package main provides the entry point for the lanes CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dongho-jung/lanes/internal/app"
	"github.com/dongho-jung/lanes/internal/embed"
	"github.com/dongho-jung/lanes/internal/git"
	"github.com/dongho-jung/lanes/internal/logging"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
	// Commit is the git commit hash, set at build time via ldflags
	Commit = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lanes",
	Short: "lanes - merge choreography for multi-lane runs",
	Long: `lanes inspects the lane branches of a run, explains how they overlap,
proposes a merge order and method per lane, and executes that proposal
into the run's integration branch.`,
	RunE:         runHelp,
	SilenceUsage: true,
}

var showVersion bool

func init() {
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(proposalCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print version information")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd)
	},
}

func printVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "lanes %s (%s)\n", Version, Commit)
}

// runHelp prints the embedded help document.
func runHelp(cmd *cobra.Command, args []string) error {
	if showVersion {
		printVersion(cmd)
		return nil
	}
	help, err := embed.GetHelp()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), help)
	return nil
}

// loadApp builds the application context for the current directory and
// installs logging for the named command. Callers must Close the app.
func loadApp(command string) (*app.App, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	a, err := app.New(app.ResolveProjectDir(git.New(), cwd))
	if err != nil {
		return nil, err
	}
	a.SetupLogging(command)
	logging.Debug("-> %s (project=%s, runs=%s)", command, a.ProjectDir, a.Config.RunsDir)
	return a, nil
}
