package main

import (
	"time"

	"venue-pickup-service/internal/adapters/repositories"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the pickup schema if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()

			start := time.Now()
			logrus.Info("initializing database schema")
			if err := repositories.InitSchema(cmd.Context(), pg); err != nil {
				return err
			}
			logrus.WithField("dur_ms", time.Since(start).Milliseconds()).Info("schema ready")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var (
		path    string
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load venues, cast profiles and attendance from a JSON seed file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()

			if migrate {
				if err := repositories.InitSchema(cmd.Context(), pg); err != nil {
					return err
				}
			}

			logrus.WithField("path", path).Info("seeding database")
			if err := repositories.SeedFromJSON(cmd.Context(), pg, path); err != nil {
				return err
			}
			logrus.Info("seeding complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "file", "data/seeds/pickups.json", "Seed file path")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create the schema before seeding")
	return cmd
}
