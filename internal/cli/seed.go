package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mindquake-service/internal/catalog"
	"mindquake-service/internal/domain"
	"mindquake-service/internal/infra/postgres"
)

// NewSeedCatalogCmd upserts the achievement catalog into Postgres.
func NewSeedCatalogCmd(configPath *string) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "seed-catalog",
		Short: "Upsert the achievement catalog into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			path := catalogPath
			if path == "" {
				path = cfg.Catalog.Path
			}
			list, err := loadCatalog(path)
			if err != nil {
				return err
			}

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()

			n, err := postgres.NewCatalogSeeder(db).Seed(cmd.Context(), list)
			if err != nil {
				return err
			}
			slog.Info("achievement catalog seeded", "achievements", len(list), "rows", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "path to the achievement catalog (defaults to catalog.path)")
	return cmd
}

func loadCatalog(path string) ([]domain.Achievement, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path not configured")
	}
	file, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	return file.Achievements(), nil
}
