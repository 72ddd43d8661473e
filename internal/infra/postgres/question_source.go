package postgres

import (
	"context"
	"fmt"

	"duelazo-match-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionSource loads per-difficulty question pools from Postgres.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) LoadPool(ctx context.Context, difficulty domain.Difficulty) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, option_a, option_b, option_c, option_d, correct_answer
		   FROM questions WHERE difficulty=$1`, string(difficulty))
	if err != nil {
		return nil, fmt.Errorf("load %s pool: %w", difficulty, err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			a, b    string
			c, d    string
			correct string
		)
		if err := rows.Scan(&q.ID, &q.Text, &a, &b, &c, &d, &correct); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Options = []string{a, b, c, d}
		q.CorrectAnswer = correct
		q.Difficulty = difficulty
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s pool: %w", difficulty, err)
	}
	return questions, nil
}
