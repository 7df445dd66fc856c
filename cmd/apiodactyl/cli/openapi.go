package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apiodactyl/apiodactyl/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  "Generate the OpenAPI 3 document describing the authentication API.",
		Example: `  apiodactyl openapi
  apiodactyl openapi --base-url https://auth.example.com -o spec.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(baseURL, outputFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Server URL advertised in the document")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(baseURL, outputFile string) error {
	doc := openapi.GenerateAuthSpec(baseURL, versionString())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outputFile, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write spec: %w", err)
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}
