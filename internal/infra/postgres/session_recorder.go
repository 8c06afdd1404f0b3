package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"kickexpert-competition-service/internal/domain"
)

// SessionRecorder persists the session lifecycle in Postgres. The schema
// backs the two uniqueness guarantees the flow relies on: one session per
// (competition, user) and one answer per question per session.
type SessionRecorder struct {
	pool *pgxpool.Pool
}

func NewSessionRecorder(pool *pgxpool.Pool) *SessionRecorder {
	return &SessionRecorder{pool: pool}
}

// Open inserts the session row, gated on a confirmed registration in the
// same statement so no session can exist without one.
func (r *SessionRecorder) Open(ctx context.Context, session domain.Session) error {
	breakdown, err := json.Marshal(session.DifficultyBreakdown)
	if err != nil {
		return fmt.Errorf("marshal difficulty breakdown: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, competition_id, user_id, status, total_questions, difficulty_breakdown, started_at)
		 SELECT $1, $2, $3, $4, $5, $6::jsonb, $7
		 WHERE EXISTS (
		   SELECT 1 FROM registrations
		   WHERE competition_id=$2 AND user_id=$3 AND status='confirmed'
		 )`,
		session.ID, session.CompetitionID, session.UserID, string(domain.SessionOpen),
		session.TotalQuestions, breakdown, session.StartedAt)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotRegistered
	}
	return nil
}

func (r *SessionRecorder) RecordAnswer(ctx context.Context, record domain.AnswerRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answers (session_id, competition_id, question_id, source_ref, selected, is_correct, difficulty, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.SessionID, record.CompetitionID, record.QuestionID, record.SourceRef,
		record.Selected, record.Correct, record.Difficulty, record.AnsweredAt)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// Finalize writes end time, aggregates, and the finalized status in one
// update; only an open session can be finalized.
func (r *SessionRecorder) Finalize(ctx context.Context, sessionID string, endedAt time.Time, result domain.SessionResult) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status='finalized', ended_at=$2, correct_answers=$3, score_percentage=$4
		 WHERE id=$1 AND status='open'`,
		sessionID, endedAt, result.CorrectAnswers, result.ScorePercentage)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionClosed
	}
	return nil
}

func (r *SessionRecorder) MarkAbandoned(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status='abandoned' WHERE id=$1 AND status='open'`,
		sessionID)
	if err != nil {
		return fmt.Errorf("abandon session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionClosed
	}
	return nil
}
