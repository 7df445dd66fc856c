package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apiodactyl/apiodactyl/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage apiodactyl configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default apiodactyl.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

func runConfigInit(force bool) error {
	path := "apiodactyl.yaml"
	if cfgFile != "" {
		path = cfgFile
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Set APIODACTYL_ADMIN_TOKEN, then run 'apiodactyl serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# Config file: %s\n", used)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# No config file found; using defaults and environment")
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}
