// Package cli holds the folium command line: the proxy server and a client
// that runs one photo through the upload pipeline.
package cli

import (
	"os"

	"github.com/jdsidebottom/foliumai/internal/config"
	"github.com/jdsidebottom/foliumai/internal/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:          "folium",
		Short:        "FoliumAI plant identification",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before reading configuration")

	rootCmd.AddCommand(
		serveCommand(),
		identifyCommand(),
		versionCommand(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		// LOG_LEVEL may come from the .env file loaded above.
		logger.SetLevel(os.Getenv("LOG_LEVEL"))
		return nil
	}

	return rootCmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(Version)
		},
	}
}
