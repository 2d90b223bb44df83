package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

// MaybeRunDev brings the schema up on boot. SQLite mode always does; Postgres
// only in dev with MKT_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlite := cfg.FeatureFlags.UseSQLite
	if !sqlite && (!cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate) {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	r, err := NewRunner(sqlDB, sqlite, "")
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "sqlite": sqlite})
	results, err := r.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "schema up to date")
	return nil
}
