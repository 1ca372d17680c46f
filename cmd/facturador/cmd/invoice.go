package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	ctxutil "github.com/3tcapital/facturador/internal/infrastructure/context"
)

var invoiceWorkers int

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Operate on stored invoices",
}

var invoiceAuthorizeCmd = &cobra.Command{
	Use:   "authorize <id>...",
	Short: "Authorize drafts and rejected invoices",
	Long: `Authorize one or more stored invoices by id.

Each invoice is submitted on its own; a failure on one does not stop
the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvoiceAuthorize,
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceAuthorizeCmd)

	invoiceAuthorizeCmd.Flags().IntVarP(&invoiceWorkers, "workers", "w", 4, "Number of concurrent submissions")
}

func runInvoiceAuthorize(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(args))
	for _, raw := range args {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid invoice id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}

	ctx, correlationID := ctxutil.EnsureCorrelationID(cmd.Context())
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	a.log.Info("Authorizing invoices", "count", len(ids), "correlation_id", correlationID)
	res := a.lifecycle.AuthorizeMany(ctx, ids, invoiceWorkers)
	if err := printResult(res, func() string {
		out := fmt.Sprintf("%d authorized, %d rejected, %d failed", res.Stats.Authorized, res.Stats.Rejected, res.Stats.Failed)
		for _, item := range res.Items {
			switch {
			case item.Error != "":
				out += fmt.Sprintf("\n%s: %s", item.ID, item.Error)
			case item.Number != nil:
				out += fmt.Sprintf("\n%s: %s #%d", item.ID, item.State, *item.Number)
			default:
				out += fmt.Sprintf("\n%s: %s", item.ID, item.State)
			}
		}
		return out
	}); err != nil {
		return err
	}

	if res.Stats.Failed > 0 {
		return fmt.Errorf("%d of %d invoices failed", res.Stats.Failed, res.Stats.Total)
	}
	return nil
}
