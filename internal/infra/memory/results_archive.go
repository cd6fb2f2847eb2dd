package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// ResultsArchive keeps results of swept sessions for the life of the process.
type ResultsArchive struct {
	mu      sync.RWMutex
	results map[string]domain.Results
}

func NewResultsArchive() *ResultsArchive {
	return &ResultsArchive{results: make(map[string]domain.Results)}
}

// Save is first-write-wins; results are immutable once produced.
func (a *ResultsArchive) Save(_ context.Context, results domain.Results) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.results[results.SessionID]; !ok {
		a.results[results.SessionID] = results
	}
	return nil
}

func (a *ResultsArchive) Load(_ context.Context, sessionID string) (domain.Results, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	results, ok := a.results[sessionID]
	if !ok {
		return domain.Results{}, domain.ErrSessionNotFound
	}
	return results, nil
}
