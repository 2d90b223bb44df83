package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/migrate"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

type migrator struct {
	out io.Writer
	dir string
}

func newRootCmd(out io.Writer) *cobra.Command {
	m := &migrator{out: out}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply and author goose schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&m.dir, "dir", "", "Migrations directory (default: embedded set; "+migrate.DefaultDir+" for create and validate)")

	root.AddCommand(
		m.dbCmd("up", "Apply all pending migrations", cobra.NoArgs, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			results, err := r.Up(ctx)
			m.printResults(results...)
			return err
		}),
		m.dbCmd("down", "Roll back the latest migration", cobra.NoArgs, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			result, err := r.Down(ctx)
			if result != nil {
				m.printResults(result)
			}
			return err
		}),
		m.dbCmd("status", "List migrations and whether they are applied", cobra.NoArgs, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			statuses, err := r.Status(ctx)
			for _, s := range statuses {
				fmt.Fprintf(m.out, "%-8s %d %s\n", s.State, s.Source.Version, s.Source.Path)
			}
			return err
		}),
		m.dbCmd("to VERSION", "Migrate up or down to VERSION (YYYYMMDDHHMMSS)", cobra.ExactArgs(1), func(ctx context.Context, r *migrate.Runner, args []string) error {
			target, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			results, err := r.To(ctx, target)
			m.printResults(results...)
			return err
		}),
		&cobra.Command{
			Use:   "create NAME",
			Short: "Write a new timestamped SQL migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := migrate.CreateSQLMigration(m.authoringDir(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(m.out, "created", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration names and goose annotations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrate.ValidateDir(m.authoringDir()); err != nil {
					return err
				}
				fmt.Fprintln(m.out, "migrations ok")
				return nil
			},
		},
	)
	return root
}

func (m *migrator) authoringDir() string {
	if m.dir == "" {
		return migrate.DefaultDir
	}
	return m.dir
}

type runnerFunc func(ctx context.Context, r *migrate.Runner, args []string) error

// dbCmd opens the configured database and hands a runner to fn.
func (m *migrator) dbCmd(use, short string, args cobra.PositionalArgs, fn runnerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) (err error) {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logg := logger.New(logger.Options{
				ServiceName: "migrate",
				Level:       logger.ParseLevel(cfg.App.LogLevel),
				WarnStack:   cfg.App.LogWarnStack,
				Output:      os.Stderr,
			})
			ctx := logg.WithFields(cmd.Context(), map[string]any{"env": cfg.App.Env, "cmd": cmd.Name()})

			client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
			if err != nil {
				return fmt.Errorf("bootstrap database: %w", err)
			}
			defer func() {
				if cerr := client.Close(); err == nil {
					err = cerr
				}
			}()
			sqlDB, err := client.DB().DB()
			if err != nil {
				return err
			}
			r, err := migrate.NewRunner(sqlDB, cfg.FeatureFlags.UseSQLite, m.dir)
			if err != nil {
				return err
			}
			if err := fn(ctx, r, argv); err != nil {
				logg.Error(ctx, "migration failed", err)
				return err
			}
			return nil
		},
	}
}

func (m *migrator) printResults(results ...*goose.MigrationResult) {
	for _, res := range results {
		fmt.Fprintln(m.out, res.String())
	}
}
