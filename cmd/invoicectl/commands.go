package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/marketplace-commissions/internal/invoices"
)

// operatorID is the admin identity used for CLI lookups.
var operatorID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("invoicectl"))

func operator() invoices.Actor {
	return invoices.AdminActor(operatorID)
}

type periodView struct {
	ID    string     `json:"id"`
	Start time.Time  `json:"start_date"`
	End   *time.Time `json:"end_date,omitempty"`
	Open  bool       `json:"open"`
}

func (c *cli) syncCmd() *cobra.Command {
	var storeID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fold a store's completed orders into its open invoice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseID(storeID, "--store-id")
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				inv, err := rt.Invoices.Service.SyncInvoice(ctx, id)
				if err != nil {
					return err
				}
				return c.print(invoices.ToDTO(inv))
			})
		},
	}
	cmd.Flags().StringVar(&storeID, "store-id", "", "Store to sync")
	_ = cmd.MarkFlagRequired("store-id")
	return cmd
}

func (c *cli) estimateCmd() *cobra.Command {
	var storeID string
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Show what a sync would add without linking orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseID(storeID, "--store-id")
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				est, err := rt.Invoices.Service.Estimate(ctx, id)
				if err != nil {
					return err
				}
				return c.print(est)
			})
		},
	}
	cmd.Flags().StringVar(&storeID, "store-id", "", "Store to estimate")
	_ = cmd.MarkFlagRequired("store-id")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <invoice-or-order-id>",
		Short: "Print an invoice, looked up by invoice id or by a billed order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "id")
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				detail, err := rt.Invoices.Service.GetInvoice(ctx, operator(), id)
				if err != nil {
					return err
				}
				return c.print(detail)
			})
		},
	}
}

func (c *cli) activityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity <invoice-id>",
		Short: "Print an invoice's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "invoice id")
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				rows, err := rt.Invoices.Service.Activity(ctx, operator(), id)
				if err != nil {
					return err
				}
				return c.print(invoices.ToActivityDTOs(rows))
			})
		},
	}
}

func (c *cli) confirmCmd() *cobra.Command {
	var adminID string
	cmd := &cobra.Command{
		Use:   "confirm <invoice-id>",
		Short: "Confirm the pending payment proof and settle the invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := parseID(args[0], "invoice id")
			if err != nil {
				return err
			}
			admin, err := parseID(adminID, "--admin-id")
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				inv, err := rt.Invoices.Service.Confirm(ctx, invoices.AdminActor(admin), invoiceID)
				if err != nil {
					return err
				}
				return c.print(invoices.ToDTO(inv))
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin-id", "", "Admin recorded as the verifier")
	_ = cmd.MarkFlagRequired("admin-id")
	return cmd
}

func (c *cli) rejectCmd() *cobra.Command {
	var (
		adminID         string
		reason          string
		expectedVersion int
	)
	cmd := &cobra.Command{
		Use:   "reject <invoice-id>",
		Short: "Reject the pending payment proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := parseID(args[0], "invoice id")
			if err != nil {
				return err
			}
			admin, err := parseID(adminID, "--admin-id")
			if err != nil {
				return err
			}
			input := invoices.RejectInput{InvoiceID: invoiceID, Reason: reason}
			if cmd.Flags().Changed("expected-version") {
				input.ExpectedVersion = &expectedVersion
			}
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				inv, err := rt.Invoices.Service.Reject(ctx, invoices.AdminActor(admin), input)
				if err != nil {
					return err
				}
				return c.print(invoices.ToDTO(inv))
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin-id", "", "Admin recorded as the reviewer")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the store")
	cmd.Flags().IntVar(&expectedVersion, "expected-version", 0, "Fail unless the invoice is still at this version")
	_ = cmd.MarkFlagRequired("admin-id")
	return cmd
}

func (c *cli) periodsCmd() *cobra.Command {
	var (
		storeID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List a store's billing periods, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := parseID(storeID, "--store-id")
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				rows, err := rt.Invoices.Periods.ListPeriods(ctx, id, limit)
				if err != nil {
					return err
				}
				out := make([]periodView, 0, len(rows))
				for _, p := range rows {
					out = append(out, periodView{ID: p.ID.String(), Start: p.StartDate.UTC(), End: p.EndDate, Open: p.IsOpen()})
				}
				return c.print(out)
			})
		},
	}
	cmd.Flags().StringVar(&storeID, "store-id", "", "Store whose periods to list")
	cmd.Flags().IntVar(&limit, "limit", 12, "Maximum periods to print")
	_ = cmd.MarkFlagRequired("store-id")
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Sync every store that has completed orders waiting for an invoice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				result, err := rt.Invoices.Service.SweepAll(ctx)
				if result != nil {
					if printErr := c.print(result); printErr != nil {
						return printErr
					}
				}
				if err != nil {
					rt.Logger.Error(ctx, "sweep finished with failures", err)
				}
				return err
			})
		},
	}
}

type deadLetterView struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	Reason      string    `json:"reason"`
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}

func (c *cli) deadLettersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List invoice events the outbox relay gave up on, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, rt *runtime) error {
				rows, err := rt.DeadLetters.Recent(ctx, limit)
				if err != nil {
					return err
				}
				out := make([]deadLetterView, 0, len(rows))
				for _, r := range rows {
					v := deadLetterView{
						EventID:     r.EventID.String(),
						EventType:   string(r.EventType),
						AggregateID: r.AggregateID.String(),
						Reason:      string(r.ErrorReason),
						Attempts:    r.AttemptCount,
						FailedAt:    r.FailedAt.UTC(),
					}
					if r.ErrorMessage != nil {
						v.Error = *r.ErrorMessage
					}
					out = append(out, v)
				}
				return c.print(out)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to print")
	return cmd
}
