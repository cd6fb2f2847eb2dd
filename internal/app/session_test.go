package app

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestAdvanceIsMonotonicAndGatedByTimer(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)

	pos, err := session.Advance()
	if err != nil || pos != 0 {
		t.Fatalf("first advance: pos=%d err=%v", pos, err)
	}
	if _, err := session.Advance(); !errors.Is(err, domain.ErrQuestionStillOpen) {
		t.Fatalf("expected still open, got %v", err)
	}

	clock.Advance(10 * time.Second)
	if pos, err = session.Advance(); err != nil || pos != 1 {
		t.Fatalf("second advance: pos=%d err=%v", pos, err)
	}
	clock.Advance(20 * time.Second)
	if pos, err = session.Advance(); err != nil || pos != 2 {
		t.Fatalf("third advance: pos=%d err=%v", pos, err)
	}
	clock.Advance(10 * time.Second)
	if _, err := session.Advance(); !errors.Is(err, domain.ErrNoMoreQuestions) {
		t.Fatalf("expected no more questions, got %v", err)
	}
	if got := session.Status().Position; got != 2 {
		t.Fatalf("position moved after rejected advance: %d", got)
	}
}

func TestAdvanceFromStalePositionLosesRace(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)

	if _, err := session.AdvanceFrom(-1); err != nil {
		t.Fatalf("advance from lobby: %v", err)
	}
	clock.Advance(10 * time.Second)

	_, err := session.AdvanceFrom(-1)
	if !errors.Is(err, domain.ErrPositionMoved) || !errors.Is(err, domain.ErrRaceLost) {
		t.Fatalf("expected race lost, got %v", err)
	}
	if pos, err := session.AdvanceFrom(0); err != nil || pos != 1 {
		t.Fatalf("advance from current: pos=%d err=%v", pos, err)
	}
}

func TestQuestionClosesExactlyAtDuration(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	mustJoin(t, session, "p1", "Ann")
	mustAdvance(t, session)

	clock.Advance(10*time.Second - time.Millisecond)
	if _, err := session.SubmitCurrent("p1", []int{1}); err != nil {
		t.Fatalf("submit before deadline: %v", err)
	}
	status := session.Status()
	if status.State != domain.StateQuestionActive || status.AnswerAvailable {
		t.Fatalf("expected active question, got %+v", status)
	}

	clock.Advance(time.Millisecond)
	_, err := session.SubmitCurrent("p1", []int{0})
	if !errors.Is(err, domain.ErrQuestionClosed) || !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected question closed, got %v", err)
	}
	status = session.Status()
	if status.State != domain.StateAnswerReveal || !status.AnswerAvailable || status.TimeRemaining != 0 {
		t.Fatalf("expected answer reveal, got %+v", status)
	}

	entry, ok := session.Entry("p1", 0)
	if !ok || !reflect.DeepEqual(entry.SelectedAnswerIDs, []int{1}) {
		t.Fatalf("ledger changed after close: %+v", entry)
	}
}

func TestSubmitAfterEndIsRejected(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	mustJoin(t, session, "p1", "Ann")
	mustAdvance(t, session)

	if _, err := session.SubmitCurrent("p1", []int{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	session.End()

	if _, err := session.SubmitCurrent("p1", []int{2}); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected question closed after end, got %v", err)
	}
	entry, _ := session.Entry("p1", 0)
	if !reflect.DeepEqual(entry.SelectedAnswerIDs, []int{1}) {
		t.Fatalf("ledger changed after end: %+v", entry)
	}
	if _, err := session.Advance(); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected session ended, got %v", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	mustJoin(t, session, "p1", "Ann")
	mustAdvance(t, session)

	first, created := session.End()
	if !created {
		t.Fatalf("expected first end to create results")
	}
	clock.Advance(time.Minute)
	second, created := session.End()
	if created {
		t.Fatalf("expected second end to be a no-op")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ between end calls:\n%+v\n%+v", first, second)
	}
	stored, err := session.Results()
	if err != nil || !reflect.DeepEqual(first, stored) {
		t.Fatalf("stored results differ: %v", err)
	}
}

func TestEndFromLobbyProducesEmptyResults(t *testing.T) {
	session := newTestSession(t, newManualClock())
	mustJoin(t, session, "p1", "Ann")

	results, _ := session.End()
	if len(results.PerPlayer) != 1 || len(results.PerPlayer[0].Answers) != 0 {
		t.Fatalf("expected one player with no outcomes, got %+v", results.PerPlayer)
	}
}

func TestJoinOnlyInLobby(t *testing.T) {
	session := newTestSession(t, newManualClock())
	mustJoin(t, session, "p1", "Ann")
	mustJoin(t, session, "p2", "Ann")
	mustAdvance(t, session)

	if _, err := session.Join("p3", "Late"); !errors.Is(err, domain.ErrSessionNotJoinable) {
		t.Fatalf("expected not joinable, got %v", err)
	}
	if got := session.Status().Players; !reflect.DeepEqual(got, []string{"Ann", "Ann"}) {
		t.Fatalf("unexpected roster %v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	mustJoin(t, session, "p1", "Ann")

	if _, err := session.SubmitCurrent("p1", []int{0}); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	mustAdvance(t, session)

	cases := []struct {
		name     string
		player   string
		position int
		ids      []int
		want     error
	}{
		{name: "unknown player", player: "ghost", position: 0, ids: []int{1}, want: domain.ErrPlayerNotFound},
		{name: "future question", player: "p1", position: 1, ids: []int{1}, want: domain.ErrWrongQuestion},
		{name: "two picks on single answer", player: "p1", position: 0, ids: []int{0, 1}, want: domain.ErrInvalidSelection},
		{name: "out of range", player: "p1", position: 0, ids: []int{4}, want: domain.ErrInvalidSelection},
		{name: "negative id", player: "p1", position: 0, ids: []int{-1}, want: domain.ErrInvalidSelection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := session.Submit(tc.player, tc.position, tc.ids); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, ok := session.Entry("p1", 0); ok {
		t.Fatalf("rejected submissions must not reach the ledger")
	}
}

func TestResubmitOverwritesEntry(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	mustJoin(t, session, "p1", "Ann")
	mustAdvance(t, session)

	clock.Advance(2 * time.Second)
	mustSubmit(t, session, "p1", []int{0})
	clock.Advance(3 * time.Second)
	mustSubmit(t, session, "p1", []int{1})

	entry, _ := session.Entry("p1", 0)
	if !reflect.DeepEqual(entry.SelectedAnswerIDs, []int{1}) {
		t.Fatalf("expected overwrite, got %v", entry.SelectedAnswerIDs)
	}
	if got := entry.AnsweredAt.Sub(entry.QuestionStartedAt); got != 5*time.Second {
		t.Fatalf("expected answeredAt restamped, elapsed %v", got)
	}
}

func TestMultiAnswerRequiresExactMatch(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		mustJoin(t, session, id, id)
	}
	mustAdvance(t, session)
	clock.Advance(10 * time.Second)
	mustAdvance(t, session)

	mustSubmit(t, session, "p1", []int{0, 2})
	mustSubmit(t, session, "p2", []int{0})
	mustSubmit(t, session, "p3", []int{0, 1, 2})
	mustSubmit(t, session, "p4", []int{2, 0})

	results, _ := session.End()
	want := map[string]bool{"p1": true, "p2": false, "p3": false, "p4": true}
	for _, row := range results.PerPlayer {
		if got := row.Answers[1].Correct; got != want[row.PlayerID] {
			t.Fatalf("%s: correct=%v want %v", row.PlayerID, got, want[row.PlayerID])
		}
	}
}

func TestEmptySelectionCountsAsUnanswered(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	mustJoin(t, session, "p1", "Ann")
	mustAdvance(t, session)
	mustSubmit(t, session, "p1", []int{})

	results, _ := session.End()
	outcome := results.PerPlayer[0].Answers[0]
	if outcome.Correct || outcome.AnsweredAt != nil {
		t.Fatalf("expected unanswered outcome, got %+v", outcome)
	}
}

func TestReadsFollowLifecycle(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	mustJoin(t, session, "p1", "Ann")

	status := session.Status()
	if status.State != domain.StateLobby || status.Position != -1 || status.IsoTimeLastQuestionStarted != nil {
		t.Fatalf("unexpected lobby status %+v", status)
	}
	if _, err := session.CurrentQuestion(); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	if _, err := session.Results(); !errors.Is(err, domain.ErrSessionNotEnded) {
		t.Fatalf("expected not ended, got %v", err)
	}

	mustAdvance(t, session)
	if ps := session.PlayerStatus(); !ps.Started || ps.Ended {
		t.Fatalf("unexpected player status %+v", ps)
	}
	q, err := session.CurrentQuestion()
	if err != nil || q.ID != 1 || q.Solutions != 1 || q.Position != 0 {
		t.Fatalf("unexpected question %+v err=%v", q, err)
	}
	status = session.Status()
	if status.TimeRemaining != 10 {
		t.Fatalf("expected full time remaining, got %v", status.TimeRemaining)
	}
	revealed, err := session.RevealedAnswers()
	if err != nil || len(revealed) != 0 {
		t.Fatalf("answers must stay hidden while open: %v %v", revealed, err)
	}

	clock.Advance(10 * time.Second)
	revealed, err = session.RevealedAnswers()
	if err != nil || !reflect.DeepEqual(revealed, []int{1}) {
		t.Fatalf("expected revealed [1], got %v %v", revealed, err)
	}

	session.End()
	if ps := session.PlayerStatus(); ps.Started || !ps.Ended {
		t.Fatalf("unexpected player status after end %+v", ps)
	}
	if _, err := session.CurrentQuestion(); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected session ended, got %v", err)
	}
	if status := session.Status(); status.Active || status.State != domain.StateEnded {
		t.Fatalf("unexpected ended status %+v", status)
	}
}

func TestStatusVersionBumpsOnMutation(t *testing.T) {
	session := newTestSession(t, newManualClock())
	before := session.Status().Version
	mustJoin(t, session, "p1", "Ann")
	if after := session.Status().Version; after <= before {
		t.Fatalf("expected version to grow: %d -> %d", before, after)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	session := newTestSession(t, newManualClock())
	ch, cancel := session.Subscribe()
	defer cancel()

	mustJoin(t, session, "p1", "Ann")
	mustAdvance(t, session)

	first := <-ch
	if first.Type != domain.EventJoined {
		t.Fatalf("expected joined event, got %+v", first)
	}
	second := <-ch
	if second.Type != domain.EventAdvanced || second.Position != 0 {
		t.Fatalf("expected advanced event, got %+v", second)
	}
}

func TestNotifyRunsAfterCommit(t *testing.T) {
	var got []domain.SessionEvent
	var session *Session
	snapshot, err := TakeSnapshot(testQuiz(), time.Now())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	session = NewSession("S1", "host", snapshot, NewClock(newManualClock().Now), func(evt domain.SessionEvent) {
		// Reading inside the hook must not deadlock and must see the change.
		if session.Status().Version != evt.Version {
			t.Errorf("hook saw stale view for %+v", evt)
		}
		got = append(got, evt)
	})
	mustJoin(t, session, "p1", "Ann")
	if len(got) != 1 || got[0].Type != domain.EventJoined {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestConcurrentSubmitsNeverLandAfterEnd(t *testing.T) {
	clock := newManualClock()
	session := newTestSession(t, clock)
	const players = 16
	for i := 0; i < players; i++ {
		mustJoin(t, session, playerID(i), playerID(i))
	}
	mustAdvance(t, session)

	var ended atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				wasEnded := ended.Load()
				_, err := session.SubmitCurrent(id, []int{n % 4})
				if wasEnded && err == nil {
					t.Errorf("%s: submission accepted after end", id)
					return
				}
				if err != nil && !errors.Is(err, domain.ErrQuestionClosed) {
					t.Errorf("%s: unexpected error %v", id, err)
					return
				}
				_ = session.Status()
			}
		}(playerID(i))
	}

	results, _ := session.End()
	ended.Store(true)
	wg.Wait()

	for _, row := range results.PerPlayer {
		entry, ok := session.Entry(row.PlayerID, 0)
		answered := row.Answers[0].AnsweredAt != nil
		if ok != answered {
			t.Fatalf("%s: results and ledger disagree", row.PlayerID)
		}
		if ok && row.Answers[0].Correct != reflect.DeepEqual(entry.SelectedAnswerIDs, []int{1}) {
			t.Fatalf("%s: results built from a different ledger entry", row.PlayerID)
		}
	}
}

func TestSnapshotIsolatesRunningSession(t *testing.T) {
	quiz := testQuiz()
	session := NewSession("S1", "host", mustSnapshot(t, quiz), NewClock(newManualClock().Now), nil)

	quiz.Questions[0].Text = "edited"
	quiz.Questions[0].Answers[0].Text = "edited"
	quiz.Questions[0].CorrectAnswerIDs[0] = 3

	mustAdvance(t, session)
	q, _ := session.CurrentQuestion()
	if q.Text == "edited" || q.Answers[0].Text == "edited" {
		t.Fatalf("session saw edits to the source quiz: %+v", q)
	}
	status := session.Status()
	if got := status.Questions[0].CorrectAnswerIDs; !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("answer key changed: %v", got)
	}
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:   "quiz-1",
		Name: "General knowledge",
		Questions: []domain.Question{
			{
				ID: 1, Text: "2 + 2?", DurationSeconds: 10, Points: 1,
				Answers:          []domain.Answer{{ID: 0, Text: "3"}, {ID: 1, Text: "4"}, {ID: 2, Text: "5"}, {ID: 3, Text: "22"}},
				CorrectAnswerIDs: []int{1},
			},
			{
				ID: 2, Text: "Pick the primes", DurationSeconds: 20, Points: 2,
				Answers:          []domain.Answer{{ID: 0, Text: "2"}, {ID: 1, Text: "4"}, {ID: 2, Text: "5"}, {ID: 3, Text: "9"}},
				CorrectAnswerIDs: []int{2, 0},
			},
			{
				ID: 3, Text: "Is Go compiled?", DurationSeconds: 10, Points: 1,
				Answers:          []domain.Answer{{ID: 0, Text: "Yes"}, {ID: 1, Text: "No"}},
				CorrectAnswerIDs: []int{0},
				Media:            &domain.Media{Kind: domain.MediaImage, Data: "https://example.com/gopher.png"},
			},
		},
	}
}

func mustSnapshot(t *testing.T, quiz domain.Quiz) domain.Snapshot {
	t.Helper()
	snapshot, err := TakeSnapshot(quiz, time.Now())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snapshot
}

func newTestSession(t *testing.T, clock *manualClock) *Session {
	t.Helper()
	return NewSession("S1", "host", mustSnapshot(t, testQuiz()), NewClock(clock.Now), nil)
}

func mustJoin(t *testing.T, s *Session, id, name string) {
	t.Helper()
	if _, err := s.Join(id, name); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
}

func mustAdvance(t *testing.T, s *Session) {
	t.Helper()
	if _, err := s.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

func mustSubmit(t *testing.T, s *Session, id string, ids []int) {
	t.Helper()
	if _, err := s.SubmitCurrent(id, ids); err != nil {
		t.Fatalf("submit %s: %v", id, err)
	}
}

func playerID(i int) string {
	return "p" + string(rune('a'+i))
}
