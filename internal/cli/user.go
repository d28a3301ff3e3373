package cli

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"mindquake-service/internal/domain"
	"mindquake-service/internal/infra/postgres"
)

// NewCreateUserCmd registers a player record so it can take quizzes.
func NewCreateUserCmd(configPath *string) *cobra.Command {
	var u domain.User
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create or rename a player in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if u.ID == "" || u.DisplayName == "" {
				return fmt.Errorf("--id and --name are required")
			}

			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.NewProgressStore(pool).UpsertUser(cmd.Context(), u); err != nil {
				return err
			}
			slog.Info("user saved", "user_id", u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "user id")
	cmd.Flags().StringVar(&u.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&u.AvatarURL, "avatar", "", "avatar url")
	return cmd
}
