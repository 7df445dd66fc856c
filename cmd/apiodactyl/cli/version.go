package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apiodactyl/apiodactyl/internal/store"
)

type versionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Drivers   []string `json:"store_drivers"`
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   version,
				Commit:    commit,
				Built:     date,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
				Drivers:   store.Drivers(),
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "apiodactyl %s (%s, built %s)\n", info.Version, info.Commit, info.Built)
			fmt.Fprintf(out, "  %s %s\n", info.GoVersion, info.Platform)
			fmt.Fprintf(out, "  store drivers: %s\n", strings.Join(info.Drivers, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
