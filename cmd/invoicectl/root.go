package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-commissions/internal/bootstrap"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
)

const defaultCommandTimeout = 2 * time.Minute

// runtime holds the handles a command runs against.
type runtime struct {
	Invoices    *bootstrap.Invoices
	DeadLetters *outbox.DeadLetters
	Logger      *logger.Logger
	close       func() error
}

func (r *runtime) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

type connectFunc func(ctx context.Context) (*runtime, error)

type cli struct {
	out     io.Writer
	connect connectFunc
	timeout time.Duration
}

func newRootCmd(out io.Writer, connect connectFunc) *cobra.Command {
	c := &cli{out: out, connect: connect}

	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Operate store commission invoices",
		Long:          "invoicectl syncs, inspects and settles store commission invoices directly against the database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", defaultCommandTimeout, "Deadline for the whole command")

	root.AddCommand(
		c.syncCmd(),
		c.estimateCmd(),
		c.showCmd(),
		c.activityCmd(),
		c.confirmCmd(),
		c.rejectCmd(),
		c.periodsCmd(),
		c.sweepCmd(),
		c.deadLettersCmd(),
	)
	return root
}

// run connects, executes fn and always releases the runtime.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rt, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()
	return fn(ctx, rt)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a uuid: %w", name, err)
	}
	return id, nil
}
