package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apiodactyl/apiodactyl/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin keys",
		Long:  "Bootstrap the first admin key or create additional admin keys directly in the key store.",
	}

	cmd.AddCommand(newAdminBootstrapCmd())
	cmd.AddCommand(newAdminCreateKeyCmd())

	return cmd
}

// ---------- admin bootstrap ----------

func newAdminBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the admin key from the configured admin token",
		Long: `Create an admin key from APIODACTYL_ADMIN_TOKEN (or auth.admin_token) when the key
store holds no admin key. Does nothing when an admin key already exists.`,
		Example: `  APIODACTYL_ADMIN_TOKEN=ak_... apiodactyl admin bootstrap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminBootstrap()
		},
	}
	return cmd
}

func runAdminBootstrap() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc := newAuthService(cfg, st, quietLogger())
	defer authSvc.Close()

	if err := authSvc.EnsureAdminExists(context.Background(), cfg.Auth.AdminToken); err != nil {
		return err
	}

	fmt.Println("Admin key is in place.")
	return nil
}

// ---------- admin create-key ----------

func newAdminCreateKeyCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create an additional admin key",
		Long:  "Create an admin key. A random key is generated unless --key is given. The raw key is shown once.",
		Example: `  apiodactyl admin create-key
  apiodactyl admin create-key --key ak_0123456789abcdef0123456789abcdef`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(key, true)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Use this key instead of generating one")

	return cmd
}

// printCreatedKey prints a newly created key and its details.
func printCreatedKey(rawKey string, id int64, isAdmin bool) {
	kind := "API"
	if isAdmin {
		kind = "Admin"
	}
	fmt.Printf("%s key created:\n", kind)
	fmt.Println()
	fmt.Printf("  Key:   %s\n", rawKey)
	fmt.Printf("  ID:    %d\n", id)
	fmt.Printf("  Admin: %t\n", isAdmin)
	fmt.Printf("  Hash:  %s\n", service.HashKey(rawKey))
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
}
