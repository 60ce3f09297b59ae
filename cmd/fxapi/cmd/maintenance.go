package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.pilab.hu/fxapi/config"
	"go.pilab.hu/fxapi/log"
)

func newEnsureIndexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-indexes",
		Short: "Create the MongoDB indexes and TTL monitors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cfg.StorageBackend != config.StorageMongoDB {
				appLogger.Info(ctx, "Nothing to do for storage backend", log.Fields{"storage": cfg.StorageBackend})
				return nil
			}

			a := &app{}
			defer a.Close(context.Background())
			if err := openStorage(ctx, cfg, a); err != nil {
				return err
			}
			appLogger.Info(ctx, "Indexes ensured", log.Fields{"database": cfg.MongoDBName})
			return nil
		},
	}
}

func newPurgeExpiredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-expired",
		Short: "Delete expired refresh tokens ahead of the TTL monitor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			n, err := a.services.RefreshLedger().PurgeExpired(ctx)
			if err != nil {
				return err
			}
			appLogger.Info(ctx, "Expired refresh tokens purged", log.Fields{"deleted": n})
			cmd.Printf("purged %d expired refresh tokens\n", n)
			return nil
		},
	}
}
