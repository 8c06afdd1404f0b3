package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"kickexpert-competition-service/internal/domain"
)

// CompetitionRepository reads competition metadata from Postgres.
type CompetitionRepository struct {
	pool *pgxpool.Pool
}

func NewCompetitionRepository(pool *pgxpool.Pool) *CompetitionRepository {
	return &CompetitionRepository{pool: pool}
}

func (r *CompetitionRepository) GetCompetition(ctx context.Context, competitionID string) (domain.Competition, error) {
	var (
		c        domain.Competition
		rawPrize []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, starts_at, ends_at, status, entry_cost, COALESCE(prize_table, '{}'::jsonb)
		 FROM competitions WHERE id=$1`, competitionID,
	).Scan(&c.ID, &c.Name, &c.StartsAt, &c.EndsAt, &c.Status, &c.EntryCost, &rawPrize)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Competition{}, domain.ErrCompetitionNotFound
	}
	if err != nil {
		return domain.Competition{}, fmt.Errorf("load competition: %w", err)
	}
	if len(rawPrize) > 0 {
		if err := json.Unmarshal(rawPrize, &c.PrizeTable); err != nil {
			return domain.Competition{}, fmt.Errorf("unmarshal prize table: %w", err)
		}
	}
	return c, nil
}
