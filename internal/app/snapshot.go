package app

import (
	"fmt"
	"time"

	"live-quiz-service/internal/domain"
)

const (
	minAnswers = 2
	maxAnswers = 6
)

// TakeSnapshot deep-copies the quiz's questions so later edits to the source
// quiz never reach a running session.
func TakeSnapshot(quiz domain.Quiz, at time.Time) (domain.Snapshot, error) {
	if len(quiz.Questions) == 0 {
		return domain.Snapshot{}, domain.ErrEmptyQuiz
	}
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if err := validateQuestion(i, q); err != nil {
			return domain.Snapshot{}, err
		}
		questions[i] = copyQuestion(q)
	}
	return domain.Snapshot{
		QuizID:    quiz.ID,
		Version:   quiz.Version,
		TakenAt:   at,
		Questions: questions,
	}, nil
}

func validateQuestion(index int, q domain.Question) error {
	if q.ID != index+1 {
		return fmt.Errorf("%w: question %d has id %d", domain.ErrInvalidQuiz, index+1, q.ID)
	}
	if q.DurationSeconds <= 0 || q.Points <= 0 {
		return fmt.Errorf("%w: question %d needs a positive time and points", domain.ErrInvalidQuiz, q.ID)
	}
	if len(q.Answers) < minAnswers || len(q.Answers) > maxAnswers {
		return fmt.Errorf("%w: question %d has %d answers", domain.ErrInvalidQuiz, q.ID, len(q.Answers))
	}
	for i, a := range q.Answers {
		if a.ID != i {
			return fmt.Errorf("%w: question %d answer %d has id %d", domain.ErrInvalidQuiz, q.ID, i, a.ID)
		}
	}
	if q.Media != nil && q.Media.Kind != domain.MediaImage && q.Media.Kind != domain.MediaVideo {
		return fmt.Errorf("%w: question %d has media of kind %q", domain.ErrInvalidQuiz, q.ID, q.Media.Kind)
	}
	if len(q.CorrectAnswerIDs) == 0 {
		return fmt.Errorf("%w: question %d has no correct answer", domain.ErrInvalidQuiz, q.ID)
	}
	if _, err := normalizeSelection(q, q.CorrectAnswerIDs, false); err != nil {
		return fmt.Errorf("%w: question %d correct answers out of range", domain.ErrInvalidQuiz, q.ID)
	}
	return nil
}

func copyQuestion(q domain.Question) domain.Question {
	out := q
	out.Answers = append([]domain.Answer(nil), q.Answers...)
	out.CorrectAnswerIDs = sortedCopy(q.CorrectAnswerIDs)
	if q.Media != nil {
		media := *q.Media
		out.Media = &media
	}
	return out
}

func copyQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = copyQuestion(q)
	}
	return out
}
