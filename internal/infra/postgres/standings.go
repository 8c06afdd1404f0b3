package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"kickexpert-competition-service/internal/domain"
)

// StandingsSource reads finalized sessions for ranking.
type StandingsSource struct {
	pool *pgxpool.Pool
}

func NewStandingsSource(pool *pgxpool.Pool) *StandingsSource {
	return &StandingsSource{pool: pool}
}

func (s *StandingsSource) FinalizedSessions(ctx context.Context, competitionID string) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, competition_id, user_id, status, total_questions, correct_answers, score_percentage,
		        COALESCE(difficulty_breakdown, '{}'::jsonb), started_at, ended_at
		 FROM sessions
		 WHERE competition_id=$1 AND status='finalized'`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("load finalized sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var (
			session      domain.Session
			rawBreakdown []byte
		)
		if err := rows.Scan(&session.ID, &session.CompetitionID, &session.UserID, &session.Status,
			&session.TotalQuestions, &session.CorrectAnswers, &session.ScorePercentage,
			&rawBreakdown, &session.StartedAt, &session.EndedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(rawBreakdown, &session.DifficultyBreakdown); err != nil {
			return nil, fmt.Errorf("unmarshal difficulty breakdown: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load finalized sessions: %w", err)
	}
	return sessions, nil
}

// ProfileDirectory resolves display names in one query.
type ProfileDirectory struct {
	pool *pgxpool.Pool
}

func NewProfileDirectory(pool *pgxpool.Pool) *ProfileDirectory {
	return &ProfileDirectory{pool: pool}
}

func (d *ProfileDirectory) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT user_id, display_name FROM profiles WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(userIDs))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return names, nil
}
