package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-commissions/internal/invoices"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

type invoiceSweeper interface {
	SweepAll(ctx context.Context) (*invoices.SweepResult, error)
}

// InvoiceSweepJobParams configure the invoice sweep job.
type InvoiceSweepJobParams struct {
	Logger   *logger.Logger
	Invoices invoiceSweeper
}

// NewInvoiceSweepJob builds a job that folds pending completed orders into
// every affected store's open invoice.
func NewInvoiceSweepJob(params InvoiceSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	return &invoiceSweepJob{logg: params.Logger, invoices: params.Invoices}, nil
}

type invoiceSweepJob struct {
	logg     *logger.Logger
	invoices invoiceSweeper
}

func (j *invoiceSweepJob) Name() string { return "invoice-sweep" }

func (j *invoiceSweepJob) Run(ctx context.Context) error {
	result, err := j.invoices.SweepAll(ctx)
	if result != nil {
		fields := map[string]any{
			"stores_scanned": result.StoresScanned,
			"stores_synced":  result.StoresSynced,
			"stores_failed":  len(result.Failed),
		}
		j.logg.Info(j.logg.WithFields(ctx, fields), "invoice sweep finished")
	}
	if err != nil {
		return fmt.Errorf("invoice sweep: %w", err)
	}
	return nil
}
