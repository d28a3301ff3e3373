package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"mindquake-service/internal/domain"
)

// OpenBun opens a bun handle for migrations and catalog seeding.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type achievementRow struct {
	bun.BaseModel `bun:"table:achievements"`

	ID       string `bun:"id,pk,type:uuid"`
	Key      string `bun:"key,notnull,unique"`
	Name     string `bun:"name,notnull"`
	Icon     string `bun:"icon,notnull"`
	Category string `bun:"category,notnull"`
	Tier     string `bun:"tier,notnull"`
}

// CatalogSeeder writes the achievement catalog. Seeding is idempotent: entries are matched
// on key and their display fields refreshed.
type CatalogSeeder struct {
	db *bun.DB
}

func NewCatalogSeeder(db *bun.DB) *CatalogSeeder {
	return &CatalogSeeder{db: db}
}

// Seed upserts every achievement and returns how many rows were written.
func (s *CatalogSeeder) Seed(ctx context.Context, list []domain.Achievement) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}
	rows := make([]achievementRow, 0, len(list))
	for _, a := range list {
		rows = append(rows, achievementRow{
			ID:       a.ID,
			Key:      a.Key,
			Name:     a.Name,
			Icon:     a.Icon,
			Category: a.Category,
			Tier:     string(a.Tier),
		})
	}

	res, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (key) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("icon = EXCLUDED.icon").
		Set("category = EXCLUDED.category").
		Set("tier = EXCLUDED.tier").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(rows), nil
	}
	return int(n), nil
}
