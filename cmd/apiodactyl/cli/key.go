package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/apiodactyl/apiodactyl/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Generate, create, list, promote and revoke the API keys used to authenticate against apiodactyl.",
	}

	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyPromoteCmd())

	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd() *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key without touching the key store",
		Long: `Print a new random key, its SHA-256 hash and an INSERT statement that registers it.
Useful for provisioning keys through migrations or infrastructure tooling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawKey := service.GenerateKey()
			hash := service.HashKey(rawKey)
			fmt.Printf("Key:  %s\n", rawKey)
			fmt.Printf("Hash: %s\n", hash)
			fmt.Println()
			fmt.Println(insertStatement(hash, admin))
			return nil
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "Mark the key as admin in the INSERT statement")

	return cmd
}

// insertStatement returns SQL that registers a key hash in the api_keys table.
func insertStatement(hash string, admin bool) string {
	return fmt.Sprintf("INSERT INTO api_keys (key_hash, is_admin, created_at) VALUES ('%s', %t, CURRENT_TIMESTAMP);", hash, admin)
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		admin bool
		key   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create an API key in the key store. The raw key is shown once and cannot be retrieved again.",
		Example: `  apiodactyl key create
  apiodactyl key create --admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(key, admin)
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "Grant admin privileges")
	cmd.Flags().StringVar(&key, "key", "", "Use this key instead of generating one")

	return cmd
}

func runKeyCreate(rawKey string, admin bool) error {
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

	if rawKey == "" {
		rawKey = service.GenerateKey()
	}

	key, err := authSvc.CreateKey(context.Background(), rawKey, admin)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateKey) {
			return fmt.Errorf("that key is already registered")
		}
		return fmt.Errorf("create key: %w", err)
	}

	printCreatedKey(rawKey, key.ID, key.IsAdmin)
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
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

	keys, err := authSvc.ListKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	if jsonOutput {
		details := make([]interface{}, len(keys))
		for i, k := range keys {
			details[i] = k.Details()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(details)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys configured. Use 'apiodactyl key create' to create one.")
		return nil
	}

	fmt.Printf("%-8s %-6s %-20s %-20s\n", "ID", "ADMIN", "CREATED", "LAST USED")
	fmt.Printf("%-8s %-6s %-20s %-20s\n", "--", "-----", "-------", "---------")
	for _, k := range keys {
		admin := "no"
		if k.IsAdmin {
			admin = "yes"
		}
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-8d %-6s %-20s %-20s\n", k.ID, admin, k.CreatedAt.Format("2006-01-02 15:04:05"), lastUsed)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var (
		key string
		id  int64
	)

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		Long: `Delete an API key so that no further requests authenticate with it.
Identify the key by its raw value (--key) or its ID (--id). With neither flag the
raw key is read from the terminal without echo.`,
		Example: `  apiodactyl key revoke --id 7
  apiodactyl key revoke            # prompts for the key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" && id != 0 {
				return fmt.Errorf("use either --key or --id, not both")
			}
			return runKeyRevoke(key, id)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Raw API key to revoke")
	cmd.Flags().Int64Var(&id, "id", 0, "ID of the API key to revoke")

	return cmd
}

func runKeyRevoke(rawKey string, id int64) error {
	if rawKey == "" && id == 0 {
		fmt.Print("API key: ")
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		fmt.Println()
		rawKey = strings.TrimSpace(string(keyBytes))
		if rawKey == "" {
			return fmt.Errorf("no key given")
		}
	}

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

	ctx := context.Background()
	if id != 0 {
		if err := authSvc.RevokeKeyByID(ctx, id); err != nil {
			if errors.Is(err, service.ErrKeyNotFound) {
				return fmt.Errorf("no API key with id %d", id)
			}
			return fmt.Errorf("revoke key: %w", err)
		}
		fmt.Printf("Revoked API key %d\n", id)
		return nil
	}

	revoked, err := authSvc.RevokeKey(ctx, rawKey)
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	if !revoked {
		return fmt.Errorf("key not found")
	}
	fmt.Println("Revoked API key")
	return nil
}

// ---------- key promote ----------

func newKeyPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote <id>",
		Short: "Grant admin privileges to an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid key id %q", args[0])
			}
			return runKeyPromote(id)
		},
	}
	return cmd
}

func runKeyPromote(id int64) error {
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

	key, err := authSvc.PromoteKey(context.Background(), id)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			return fmt.Errorf("no API key with id %d", id)
		}
		return fmt.Errorf("promote key: %w", err)
	}
	fmt.Printf("API key %d is now an admin key\n", key.ID)
	return nil
}
