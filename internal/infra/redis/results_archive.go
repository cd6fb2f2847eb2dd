package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// ResultsArchive stores results artifacts as JSON under quiz:results:{sessionID}.
type ResultsArchive struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultsArchive keeps results for ttl; zero keeps them forever.
func NewResultsArchive(client *redis.Client, ttl time.Duration) *ResultsArchive {
	return &ResultsArchive{client: client, ttl: ttl}
}

func (a *ResultsArchive) Save(ctx context.Context, results domain.Results) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	// SETNX: the first artifact wins, matching end() idempotency.
	return a.client.SetNX(ctx, a.key(results.SessionID), raw, a.ttl).Err()
}

func (a *ResultsArchive) Load(ctx context.Context, sessionID string) (domain.Results, error) {
	raw, err := a.client.Get(ctx, a.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
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

func (a *ResultsArchive) key(sessionID string) string {
	return "quiz:results:" + sessionID
}
