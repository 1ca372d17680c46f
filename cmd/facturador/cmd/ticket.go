package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/3tcapital/facturador/internal/core/ticket"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Inspect and renew the access ticket",
}

var ticketStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored access ticket without renewing it",
	Args:  cobra.NoArgs,
	RunE:  runTicketStatus,
}

var ticketRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Return a usable access ticket, logging in when the stored one is close to expiry",
	Args:  cobra.NoArgs,
	RunE:  runTicketRenew,
}

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketStatusCmd, ticketRenewCmd)
}

func runTicketStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	status, err := a.tickets.Status(cmd.Context(), a.cfg.Authority.Environment)
	if err != nil {
		return err
	}
	return printResult(status, func() string { return describeTicket(status) })
}

func runTicketRenew(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	env := a.cfg.Authority.Environment
	if _, err := a.tickets.GetValidTicket(cmd.Context(), env); err != nil {
		return err
	}
	status, err := a.tickets.Status(cmd.Context(), env)
	if err != nil {
		return err
	}
	return printResult(status, func() string { return describeTicket(status) })
}

func describeTicket(s ticket.Status) string {
	if !s.Present {
		return fmt.Sprintf("%s/%s: no ticket stored", s.Environment, s.Service)
	}
	line := fmt.Sprintf("%s/%s: expires %s (%s left)",
		s.Environment, s.Service, s.ExpiresAt.Format("2006-01-02 15:04:05 MST"), s.Remaining.Round(time.Second))
	if s.RenewalDue {
		line += ", renewal due"
	}
	return line
}
