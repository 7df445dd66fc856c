package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apiodactyl/apiodactyl/internal/config"
)

var (
	cfgFile    string
	dataDir    string
	appVersion string // set in Execute, reported by serve, openapi and mcp
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apiodactyl",
		Short: "API key authentication service",
		Long: `Apiodactyl: bearer API key authentication with a validation cache.

Apiodactyl stores only SHA-256 hashes of API keys, validates bearer tokens through
a short-lived in-memory cache, and exposes key administration over HTTP, the CLI
and a built-in MCP server for AI agents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./apiodactyl.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite key store (default: ~/.apiodactyl)")
	viper.BindPFlag("store.data_dir", cmd.PersistentFlags().Lookup("data-dir"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("apiodactyl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.apiodactyl")
	}

	config.SetDefaults(viper.GetViper())

	// The config file is optional, but an explicit or malformed one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: read config: %v\n", err)
		}
	}
}
