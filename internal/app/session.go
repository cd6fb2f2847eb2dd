package app

import (
	"sync"
	"sync/atomic"
	"time"

	"live-quiz-service/internal/domain"
)

// Session is the in-memory authority for one run of a quiz. Mutations are
// serialized by mu; reads go through an immutable view swapped atomically
// after each mutation, so pollers never block on writers and never observe a
// half-applied change.
type Session struct {
	id       string
	host     string
	snapshot domain.Snapshot
	clock    Clock
	notify   func(domain.SessionEvent)

	mu          sync.Mutex
	state       domain.SessionState // stored state; never AnswerReveal
	position    int
	starts      []time.Time
	players     []domain.Player
	playerIndex map[string]struct{}
	ledger      *Ledger
	results     *domain.Results
	endedAt     time.Time
	version     int64
	subscribers map[chan domain.SessionEvent]struct{}

	view     atomic.Pointer[sessionView]
	archived atomic.Bool
}

type sessionView struct {
	state     domain.SessionState
	position  int
	startedAt time.Time
	players   []domain.Player
	version   int64
	endedAt   time.Time
	results   *domain.Results
}

// NewSession creates a session in the lobby. notify, when set, is called
// outside the lock after every successful mutation.
func NewSession(id, host string, snapshot domain.Snapshot, clock Clock, notify func(domain.SessionEvent)) *Session {
	s := &Session{
		id:          id,
		host:        host,
		snapshot:    snapshot,
		clock:       clock,
		notify:      notify,
		state:       domain.StateLobby,
		position:    -1,
		playerIndex: make(map[string]struct{}),
		ledger:      newLedger(id),
		subscribers: make(map[chan domain.SessionEvent]struct{}),
	}
	s.publishLocked()
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Host() string   { return s.host }
func (s *Session) QuizID() string { return s.snapshot.QuizID }

// Join adds a player; only allowed in the lobby.
func (s *Session) Join(playerID, name string) (domain.Player, error) {
	s.mu.Lock()
	if s.state != domain.StateLobby {
		s.mu.Unlock()
		return domain.Player{}, domain.ErrSessionNotJoinable
	}
	player := domain.Player{ID: playerID, Name: name, JoinedAt: s.clock.Now()}
	s.players = append(s.players, player)
	s.playerIndex[playerID] = struct{}{}
	evt := s.commitLocked(domain.EventJoined)
	s.mu.Unlock()

	s.emit(evt)
	return player, nil
}

// Advance moves to the next question and restamps the clock.
func (s *Session) Advance() (int, error) {
	return s.advance(0, false)
}

// AdvanceFrom is Advance guarded by the position the caller last observed.
func (s *Session) AdvanceFrom(observed int) (int, error) {
	return s.advance(observed, true)
}

func (s *Session) advance(observed int, guarded bool) (int, error) {
	s.mu.Lock()
	now := s.clock.Now()
	if s.state == domain.StateEnded {
		s.mu.Unlock()
		return 0, domain.ErrSessionEnded
	}
	if guarded && observed != s.position {
		s.mu.Unlock()
		return 0, domain.ErrPositionMoved
	}

	switch s.observedLocked(now) {
	case domain.StateQuestionActive:
		s.mu.Unlock()
		return 0, domain.ErrQuestionStillOpen
	case domain.StateAnswerReveal:
		if s.position+1 >= s.snapshot.Len() {
			s.mu.Unlock()
			return 0, domain.ErrNoMoreQuestions
		}
	}

	s.position++
	s.state = domain.StateQuestionActive
	s.starts = append(s.starts, now)
	position := s.position
	evt := s.commitLocked(domain.EventAdvanced)
	s.mu.Unlock()

	s.emit(evt)
	return position, nil
}

// End freezes the ledger and materializes the results. Repeated calls return
// the same artifact; created reports whether this call did the work.
func (s *Session) End() (results domain.Results, created bool) {
	s.mu.Lock()
	if s.results != nil {
		results = *s.results
		s.mu.Unlock()
		return results, false
	}

	s.endedAt = s.clock.Now()
	s.ledger.freeze()
	built := buildResults(domain.Results{
		SessionID: s.id,
		QuizID:    s.snapshot.QuizID,
		Host:      s.host,
		EndedAt:   s.endedAt,
	}, s.snapshot, s.players, s.starts, s.ledger)
	s.results = &built
	s.state = domain.StateEnded
	evt := s.commitLocked(domain.EventEnded)
	s.mu.Unlock()

	s.emit(evt)
	return built, true
}

// Submit records a selection for the question at position. The lifecycle check
// and the write happen under the same lock, so nothing lands after End.
func (s *Session) Submit(playerID string, position int, selected []int) (domain.LedgerEntry, error) {
	s.mu.Lock()
	entry, evt, err := s.submitLocked(playerID, position, selected, false)
	s.mu.Unlock()
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	s.emit(evt)
	return entry, nil
}

// SubmitCurrent is Submit against whatever question is live.
func (s *Session) SubmitCurrent(playerID string, selected []int) (domain.LedgerEntry, error) {
	s.mu.Lock()
	entry, evt, err := s.submitLocked(playerID, 0, selected, true)
	s.mu.Unlock()
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	s.emit(evt)
	return entry, nil
}

func (s *Session) submitLocked(playerID string, position int, selected []int, current bool) (domain.LedgerEntry, domain.SessionEvent, error) {
	now := s.clock.Now()
	if _, ok := s.playerIndex[playerID]; !ok {
		return domain.LedgerEntry{}, domain.SessionEvent{}, domain.ErrPlayerNotFound
	}
	switch s.state {
	case domain.StateEnded:
		return domain.LedgerEntry{}, domain.SessionEvent{}, domain.ErrQuestionClosed
	case domain.StateLobby:
		return domain.LedgerEntry{}, domain.SessionEvent{}, domain.ErrSessionNotStarted
	}
	if current {
		position = s.position
	}
	if position != s.position {
		return domain.LedgerEntry{}, domain.SessionEvent{}, domain.ErrWrongQuestion
	}
	if s.observedLocked(now) != domain.StateQuestionActive {
		return domain.LedgerEntry{}, domain.SessionEvent{}, domain.ErrQuestionClosed
	}
	ids, err := normalizeSelection(s.snapshot.Questions[position], selected, true)
	if err != nil {
		return domain.LedgerEntry{}, domain.SessionEvent{}, err
	}
	entry, err := s.ledger.record(playerID, position, ids, s.starts[position], now)
	if err != nil {
		return domain.LedgerEntry{}, domain.SessionEvent{}, err
	}
	return entry, s.commitLocked(domain.EventAnswered), nil
}

// observedLocked derives AnswerReveal from the clock instead of a timer.
func (s *Session) observedLocked(now time.Time) domain.SessionState {
	if s.state != domain.StateQuestionActive {
		return s.state
	}
	q := s.snapshot.Questions[s.position]
	if questionClosed(q.Duration(), now.Sub(s.starts[s.position])) {
		return domain.StateAnswerReveal
	}
	return s.state
}

// commitLocked bumps the version, swaps in a fresh read view and fans the
// event out to in-process subscribers.
func (s *Session) commitLocked(typ domain.EventType) domain.SessionEvent {
	s.version++
	s.publishLocked()
	evt := domain.SessionEvent{
		Type:      typ,
		SessionID: s.id,
		Position:  s.position,
		Version:   s.version,
		At:        s.clock.Now(),
	}
	s.broadcastLocked(evt)
	return evt
}

func (s *Session) publishLocked() {
	v := &sessionView{
		state:    s.state,
		position: s.position,
		// players is append-only; capping the slice keeps later appends invisible.
		players: s.players[:len(s.players):len(s.players)],
		version: s.version,
		endedAt: s.endedAt,
		results: s.results,
	}
	if s.position >= 0 {
		v.startedAt = s.starts[s.position]
	}
	s.view.Store(v)
}

func (s *Session) emit(evt domain.SessionEvent) {
	if s.notify != nil {
		s.notify(evt)
	}
}

// Subscribe returns a channel of session events. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(evt domain.SessionEvent) {
	for ch := range s.subscribers {
		select {
		case ch <- evt:
		default:
			// Slow subscriber: drop its oldest event rather than block the writer.
			select {
			case <-ch:
			default:
			}
			ch <- evt
		}
	}
}

// observe computes the observed state of a view at now.
func (s *Session) observe(v *sessionView, now time.Time) (domain.SessionState, bool) {
	if v.state != domain.StateQuestionActive {
		return v.state, false
	}
	q := s.snapshot.Questions[v.position]
	if questionClosed(q.Duration(), now.Sub(v.startedAt)) {
		return domain.StateAnswerReveal, true
	}
	return v.state, false
}

// Status is the host's poll; it never takes the mutation lock.
func (s *Session) Status() domain.SessionStatus {
	v := s.view.Load()
	now := s.clock.Now()
	state, available := s.observe(v, now)

	names := make([]string, len(v.players))
	for i, p := range v.players {
		names[i] = p.Name
	}
	status := domain.SessionStatus{
		SessionID:       s.id,
		QuizID:          s.snapshot.QuizID,
		Active:          v.state != domain.StateEnded,
		State:           state,
		Position:        v.position,
		Questions:       copyQuestions(s.snapshot.Questions),
		Players:         names,
		AnswerAvailable: available,
		Version:         v.version,
	}
	if v.position >= 0 {
		startedAt := v.startedAt
		status.IsoTimeLastQuestionStarted = &startedAt
	}
	if state == domain.StateQuestionActive {
		q := s.snapshot.Questions[v.position]
		status.TimeRemaining = Remaining(q.Duration(), now.Sub(v.startedAt)).Seconds()
	}
	return status
}

// PlayerStatus reports whether play has begun or finished.
func (s *Session) PlayerStatus() domain.PlayerStatus {
	v := s.view.Load()
	return domain.PlayerStatus{
		Started: v.state == domain.StateQuestionActive,
		Ended:   v.state == domain.StateEnded,
	}
}

// CurrentQuestion returns the live question without its answer key.
func (s *Session) CurrentQuestion() (domain.PublicQuestion, error) {
	v := s.view.Load()
	switch v.state {
	case domain.StateLobby:
		return domain.PublicQuestion{}, domain.ErrSessionNotStarted
	case domain.StateEnded:
		return domain.PublicQuestion{}, domain.ErrSessionEnded
	}
	q := s.snapshot.Questions[v.position]
	pq := domain.PublicQuestion{
		ID:                         q.ID,
		Text:                       q.Text,
		Points:                     q.Points,
		DurationSeconds:            q.DurationSeconds,
		Answers:                    append([]domain.Answer(nil), q.Answers...),
		Solutions:                  len(q.CorrectAnswerIDs),
		Position:                   v.position,
		IsoTimeLastQuestionStarted: v.startedAt,
	}
	if q.Media != nil {
		media := *q.Media
		pq.Media = &media
	}
	return pq, nil
}

// RevealedAnswers returns the answer key once the live question has closed,
// and an empty set while it is still open.
func (s *Session) RevealedAnswers() ([]int, error) {
	v := s.view.Load()
	switch v.state {
	case domain.StateLobby:
		return nil, domain.ErrSessionNotStarted
	case domain.StateEnded:
		return nil, domain.ErrSessionEnded
	}
	if _, closed := s.observe(v, s.clock.Now()); !closed {
		return []int{}, nil
	}
	return sortedCopy(s.snapshot.Questions[v.position].CorrectAnswerIDs), nil
}

// Results returns the artifact once the session has ended.
func (s *Session) Results() (domain.Results, error) {
	v := s.view.Load()
	if v.results == nil {
		return domain.Results{}, domain.ErrSessionNotEnded
	}
	return *v.results, nil
}

// EndedAt reports when the session ended, if it has.
func (s *Session) EndedAt() (time.Time, bool) {
	v := s.view.Load()
	return v.endedAt, v.state == domain.StateEnded
}

// MarkArchived records that the results artifact reached the archive.
func (s *Session) MarkArchived() { s.archived.Store(true) }

// Archived reports whether the session may be forgotten without losing its results.
func (s *Session) Archived() bool { return s.archived.Load() }

// Entry returns the ledger row for a player at a position.
func (s *Session) Entry(playerID string, position int) (domain.LedgerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.entry(playerID, position)
}
