package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"kickexpert-competition-service/internal/domain"
)

// QuestionLoader loads a competition's merged question set from Postgres,
// ordered by board position.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, competitionID string) (domain.QuestionSet, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, COALESCE(source_id, ''), category, difficulty, question, choices, correct_answer, COALESCE(explanation, '')
		 FROM questions
		 WHERE competition_id=$1
		 ORDER BY position, id`, competitionID)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	set := domain.QuestionSet{CompetitionID: competitionID}
	for rows.Next() {
		var (
			q          domain.Question
			rawChoices []byte
		)
		if err := rows.Scan(&q.ID, &q.SourceID, &q.Category, &q.Difficulty, &q.Text, &rawChoices, &q.CorrectAnswer, &q.Explanation); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawChoices, &q.Choices); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("unmarshal choices for question %d: %w", q.ID, err)
		}
		set.Questions = append(set.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w", err)
	}
	return set, nil
}
