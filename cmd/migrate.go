package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/store"
)

type versioned interface {
	SchemaVersion(ctx context.Context) (int, error)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply history schema migrations",
	Long:  "Opens the configured history store and applies all pending schema migrations in order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Initialize(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		fields := []zap.Field{zap.String("driver", cfg.Store.Driver), zap.Int("latest", store.LatestSchemaVersion())}
		if v, ok := st.(versioned); ok {
			version, err := v.SchemaVersion(ctx)
			if err != nil {
				return eris.Wrap(err, "migrate: read schema version")
			}
			fields = append(fields, zap.Int("version", version))
		}
		zap.L().Info("all migrations applied successfully", fields...)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
