package app

import (
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestTakeSnapshotValidates(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(q *domain.Quiz)
		want   error
	}{
		{name: "empty", mutate: func(q *domain.Quiz) { q.Questions = nil }, want: domain.ErrEmptyQuiz},
		{name: "gap in question ids", mutate: func(q *domain.Quiz) { q.Questions[1].ID = 5 }, want: domain.ErrInvalidQuiz},
		{name: "zero duration", mutate: func(q *domain.Quiz) { q.Questions[0].DurationSeconds = 0 }, want: domain.ErrInvalidQuiz},
		{name: "one answer", mutate: func(q *domain.Quiz) { q.Questions[2].Answers = q.Questions[2].Answers[:1] }, want: domain.ErrInvalidQuiz},
		{name: "no correct answer", mutate: func(q *domain.Quiz) { q.Questions[0].CorrectAnswerIDs = nil }, want: domain.ErrInvalidQuiz},
		{name: "unknown media kind", mutate: func(q *domain.Quiz) { q.Questions[2].Media.Kind = "audio" }, want: domain.ErrInvalidQuiz},
		{name: "empty media kind", mutate: func(q *domain.Quiz) { q.Questions[0].Media = &domain.Media{Data: "x.png"} }, want: domain.ErrInvalidQuiz},
		{name: "correct id out of range", mutate: func(q *domain.Quiz) { q.Questions[0].CorrectAnswerIDs = []int{7} }, want: domain.ErrInvalidQuiz},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quiz := testQuiz()
			tc.mutate(&quiz)
			_, err := TakeSnapshot(quiz, time.Now())
			if !errors.Is(err, tc.want) || !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTakeSnapshotSortsAnswerKey(t *testing.T) {
	snapshot := mustSnapshot(t, testQuiz())
	if got := snapshot.Questions[1].CorrectAnswerIDs; got[0] != 0 || got[1] != 2 {
		t.Fatalf("expected sorted answer key, got %v", got)
	}
	if snapshot.QuizID != "quiz-1" || snapshot.Len() != 3 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestTakeSnapshotAcceptsVideoMedia(t *testing.T) {
	quiz := testQuiz()
	quiz.Questions[0].Media = &domain.Media{Kind: domain.MediaVideo, Data: "https://example.com/intro.mp4"}
	snapshot := mustSnapshot(t, quiz)
	if got := snapshot.Questions[0].Media; got == nil || got.Kind != domain.MediaVideo {
		t.Fatalf("expected video media kept, got %+v", got)
	}
}
