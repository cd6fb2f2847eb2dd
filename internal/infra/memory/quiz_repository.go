package memory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content from the authoring store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository fronts a QuizLoader with a per-process cache so hosts
// starting sessions of the same quiz hit the loader once per TTL. Unknown
// quiz ids are remembered for a tenth of the TTL.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[string]quizEntry
}

type quizEntry struct {
	quiz      domain.Quiz
	missing   bool
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]quizEntry),
	}
}

// GetQuiz implements app.QuizRepository.
func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, err, ok := r.lookup(quizID); ok {
		return quiz, err
	}

	result, err, _ := r.group.Do(quizID, func() (interface{}, error) {
		if quiz, err, ok := r.lookup(quizID); ok {
			return quiz, err
		}
		// The load is shared by every waiter; one caller going away must not fail the rest.
		quiz, err := r.loader.LoadQuiz(context.WithoutCancel(ctx), quizID)
		switch {
		case errors.Is(err, domain.ErrQuizNotFound):
			r.store(quizID, quizEntry{missing: true}, r.ttl/10)
			return domain.Quiz{}, err
		case err != nil:
			return domain.Quiz{}, err
		}
		r.store(quizID, quizEntry{quiz: quiz}, jittered(r.ttl))
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) lookup(quizID string) (domain.Quiz, error, bool) {
	r.mu.RLock()
	entry, ok := r.entries[quizID]
	r.mu.RUnlock()
	if !ok || !entry.expiresAt.After(r.now()) {
		return domain.Quiz{}, nil, false
	}
	if entry.missing {
		return domain.Quiz{}, domain.ErrQuizNotFound, true
	}
	return entry.quiz, nil, true
}

func (r *QuizRepository) store(quizID string, entry quizEntry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	entry.expiresAt = r.now().Add(ttl)
	r.mu.Lock()
	r.entries[quizID] = entry
	r.mu.Unlock()
}

// jittered spreads expirations by up to 10% of ttl.
func jittered(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + time.Duration(rand.Int63n(int64(ttl)/10+1))
}

// StaticQuizLoader serves quizzes from a map (demo mode and tests).
type StaticQuizLoader map[string]domain.Quiz

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) StaticQuizLoader {
	return StaticQuizLoader(quizzes)
}

func (l StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
