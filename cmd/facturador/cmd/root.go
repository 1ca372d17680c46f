package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	// Global flags
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "facturador",
	Short: "Authorize electronic invoices with the tax authority",
	Long: `Facturador drafts invoices, numbers them and obtains their authorization
code from the tax authority's web services.

Configuration is read from the environment (and a .env file when present).

Examples:
  # Run the HTTP API, applying pending migrations first
  facturador serve --migrate

  # Inspect the current access ticket
  facturador ticket status

  # Compare a local counter with the authority
  facturador sequence sync pos:3:type:6

  # Check a printed barcode
  facturador barcode validate 201234567860060000374123456789012202610267`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, text)")
}

// printResult writes v as indented JSON, or through text when the text
// format is selected and text is not nil.
func printResult(v any, text func() string) error {
	if outputFormat == "text" && text != nil {
		fmt.Println(text())
		return nil
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
