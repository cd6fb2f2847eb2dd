package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// ResultsArchive persists results artifacts in the quiz_results table.
type ResultsArchive struct {
	pool *pgxpool.Pool
}

func NewResultsArchive(pool *pgxpool.Pool) *ResultsArchive {
	return &ResultsArchive{pool: pool}
}

// Save keeps the first artifact written for a session.
func (a *ResultsArchive) Save(ctx context.Context, results domain.Results) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO quiz_results (session_id, quiz_id, host, ended_at, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING`,
		results.SessionID, results.QuizID, results.Host, results.EndedAt, raw,
	)
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

func (a *ResultsArchive) Load(ctx context.Context, sessionID string) (domain.Results, error) {
	var raw []byte
	err := a.pool.QueryRow(ctx, `SELECT data FROM quiz_results WHERE session_id=$1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Results{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Results{}, fmt.Errorf("load results: %w", err)
	}
	var results domain.Results
	if err := json.Unmarshal(raw, &results); err != nil {
		return domain.Results{}, fmt.Errorf("unmarshal results: %w", err)
	}
	return results, nil
}
