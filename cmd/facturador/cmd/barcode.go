package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3tcapital/facturador/internal/core/compliance"
)

var barcodeCmd = &cobra.Command{
	Use:   "barcode",
	Short: "Work with printed invoice barcodes",
}

var barcodeValidateCmd = &cobra.Command{
	Use:   "validate <barcode>...",
	Short: "Check the length and check digit of barcodes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBarcodeValidate,
}

// BarcodeResult is the outcome for one barcode.
type BarcodeResult struct {
	Barcode string `json:"barcode"`
	Valid   bool   `json:"valid"`
}

func init() {
	rootCmd.AddCommand(barcodeCmd)
	barcodeCmd.AddCommand(barcodeValidateCmd)
}

func runBarcodeValidate(_ *cobra.Command, args []string) error {
	results := make([]BarcodeResult, 0, len(args))
	allValid := true
	for _, code := range args {
		valid := compliance.ValidateBarcode(code)
		allValid = allValid && valid
		results = append(results, BarcodeResult{Barcode: code, Valid: valid})
	}

	err := printResult(results, func() string {
		out := ""
		for i, r := range results {
			if i > 0 {
				out += "\n"
			}
			status := "VALID"
			if !r.Valid {
				status = "INVALID"
			}
			out += fmt.Sprintf("%s: %s", r.Barcode, status)
		}
		return out
	})
	if err != nil {
		return err
	}

	if !allValid {
		return fmt.Errorf("validation failed for some barcodes")
	}
	return nil
}
