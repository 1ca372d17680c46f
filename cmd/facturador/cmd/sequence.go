package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3tcapital/facturador/internal/core/sequence"
)

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Inspect and reconcile number sequences",
	Long: `Inspect and reconcile number sequences.

Scopes are written pos:<point of sale>:type:<doc type> for authority
numbered documents and series:<name> for internal series.`,
}

var sequenceStatusCmd = &cobra.Command{
	Use:   "status <scope>",
	Short: "Show the last number handed out for a scope",
	Args:  cobra.ExactArgs(1),
	RunE:  runSequenceStatus,
}

var sequenceSyncCmd = &cobra.Command{
	Use:   "sync <scope>",
	Short: "Align a local counter with the authority's last authorized number",
	Args:  cobra.ExactArgs(1),
	RunE:  runSequenceSync,
}

func init() {
	rootCmd.AddCommand(sequenceCmd)
	sequenceCmd.AddCommand(sequenceStatusCmd, sequenceSyncCmd)
}

func runSequenceStatus(cmd *cobra.Command, args []string) error {
	scope, err := sequence.ParseScope(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	counter, err := a.allocator.Status(cmd.Context(), scope)
	if err != nil {
		return err
	}
	return printResult(counter, func() string {
		return fmt.Sprintf("%s: last number %d (updated %s)", counter.Scope, counter.LastNumber, counter.UpdatedAt.Format("2006-01-02 15:04:05"))
	})
}

func runSequenceSync(cmd *cobra.Command, args []string) error {
	scope, err := sequence.ParseScope(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.allocator.Synchronize(cmd.Context(), scope)
	if err != nil {
		return err
	}
	return printResult(report, func() string {
		if !report.Updated {
			return fmt.Sprintf("%s: in sync at %d", report.Scope, report.Local)
		}
		return fmt.Sprintf("%s: moved from %d to %d (delta %d)", report.Scope, report.Local, report.Remote, report.Delta)
	})
}
