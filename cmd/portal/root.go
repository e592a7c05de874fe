package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frontiertower/guest-portal/internal/config"
)

var (
	// Version is set at build time with -ldflags "-X main.Version=...".
	Version = "dev"

	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "portal – Frontier Tower guest network portal backend",
	Long: "portal authorizes captive-portal guests on the building's network controller.\n\n" +
		"Run 'portal serve' to start the HTTP API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "portal %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file (default: ./portal.yaml if present)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(versionCmd)
}
