package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"kickexpert-competition-service/internal/domain"
)

// RegistrationRepository answers the registration gate from Postgres.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepository(pool *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{pool: pool}
}

func (r *RegistrationRepository) ConfirmedRegistration(ctx context.Context, competitionID, userID string) (domain.Registration, error) {
	var reg domain.Registration
	err := r.pool.QueryRow(ctx,
		`SELECT competition_id, user_id, status, paid_credits, created_at
		 FROM registrations
		 WHERE competition_id=$1 AND user_id=$2 AND status='confirmed'`,
		competitionID, userID,
	).Scan(&reg.CompetitionID, &reg.UserID, &reg.Status, &reg.PaidCredits, &reg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Registration{}, domain.ErrNotRegistered
	}
	if err != nil {
		return domain.Registration{}, fmt.Errorf("load registration: %w", err)
	}
	return reg, nil
}
