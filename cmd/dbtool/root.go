package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"

	"venue-pickup-service/internal/config"
	"venue-pickup-service/internal/platform/db"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dbtool",
		Short:         "Schema, seed and business-date tools for the pickup service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newMigrateCmd(), newSeedCmd(), newBusinessDateCmd())
	return cmd
}

// connectDB reads DATABASE_URL from the environment or .env.
func connectDB(ctx context.Context) (*sql.DB, error) {
	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	if cfg.Storage != config.StoragePostgres {
		return nil, errors.Errorf("dbtool needs STORAGE=postgres, got %q", cfg.Storage)
	}
	return db.Open(ctx, cfg.DatabaseURL)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
