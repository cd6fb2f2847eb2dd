package app

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// ErrDuplicateSession is returned by a SessionRepository when the id is taken.
var ErrDuplicateSession = errors.New("session id already in use")

// SessionRepository abstracts where live sessions are held (in-memory, Redis-marked, etc).
type SessionRepository interface {
	// Create registers a session. It fails with domain.ErrQuizAlreadyRunning if
	// the quiz already has a live session and ErrDuplicateSession on id reuse.
	Create(session *Session) error
	Get(sessionID string) (*Session, bool)
	LiveForQuiz(quizID string) (*Session, bool)
	// LatestForQuiz names the most recent session of a quiz, ended or swept included.
	LatestForQuiz(quizID string) (string, bool)
	BindPlayer(playerID string, session *Session)
	ForPlayer(playerID string) (*Session, bool)
	// JoinedSession names the session a player joined; it outlives Delete.
	JoinedSession(playerID string) (string, bool)
	// Release drops the quiz's live marker once its session has ended.
	Release(session *Session)
	// Delete forgets the session and its player bindings.
	Delete(sessionID string)
	Sessions() []*Session
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsArchive keeps results artifacts after their session is swept.
type ResultsArchive interface {
	Save(ctx context.Context, results domain.Results) error
	// Load returns domain.ErrSessionNotFound when nothing was archived.
	Load(ctx context.Context, sessionID string) (domain.Results, error)
}

// EventPublisher fans session events out beyond this process.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.SessionEvent) error
}

// Metrics receives counters for the session lifecycle.
type Metrics interface {
	SessionCreated()
	SessionEnded()
	PlayerJoined()
	AnswerSubmitted(outcome string)
	AdvanceRejected(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SessionCreated()        {}
func (noopMetrics) SessionEnded()          {}
func (noopMetrics) PlayerJoined()          {}
func (noopMetrics) AnswerSubmitted(string) {}
func (noopMetrics) AdvanceRejected(string) {}

const (
	sessionIDLength   = 6
	sessionIDAttempts = 8
	publishTimeout    = 2 * time.Second
)

// SessionService contains the host and player use cases of a live quiz.
type SessionService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	archive  ResultsArchive
	events   EventPublisher
	metrics  Metrics
	logger   *zap.Logger
	clock    Clock
	topN     int

	newSessionID func() (string, error)
	newPlayerID  func() string
}

// Option customizes a SessionService.
type Option func(*SessionService)

func WithClock(clock Clock) Option {
	return func(s *SessionService) { s.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *SessionService) { s.logger = logger }
}

func WithArchive(archive ResultsArchive) Option {
	return func(s *SessionService) { s.archive = archive }
}

func WithPublisher(events EventPublisher) Option {
	return func(s *SessionService) { s.events = events }
}

func WithMetrics(metrics Metrics) Option {
	return func(s *SessionService) { s.metrics = metrics }
}

// WithTopPlayers sets the ranking cut-off of results summaries.
func WithTopPlayers(n int) Option {
	return func(s *SessionService) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithIDGenerators replaces session and player id generation (tests).
func WithIDGenerators(session func() (string, error), player func() string) Option {
	return func(s *SessionService) {
		s.newSessionID = session
		s.newPlayerID = player
	}
}

func NewSessionService(store SessionRepository, quizzes QuizRepository, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:     store,
		quizzes:      quizzes,
		metrics:      noopMetrics{},
		logger:       zap.NewNop(),
		clock:        NewClock(nil),
		topN:         DefaultTopPlayers,
		newSessionID: GenerateSessionID,
		newPlayerID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

// GenerateSessionID returns a short code players can type to join.
func GenerateSessionID() (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	code := make([]byte, sessionIDLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}

// CreateSession snapshots the quiz and opens a lobby hosted by caller.
func (s *SessionService) CreateSession(ctx context.Context, caller domain.Caller, quizID string) (string, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	if quiz.Owner != "" && quiz.Owner != caller.ID {
		return "", domain.ErrNotQuizOwner
	}
	snapshot, err := TakeSnapshot(quiz, s.clock.Now())
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < sessionIDAttempts; attempt++ {
		id, err := s.newSessionID()
		if err != nil {
			return "", err
		}
		session := NewSession(id, caller.ID, snapshot, s.clock, s.notifier())
		err = s.sessions.Create(session)
		if errors.Is(err, ErrDuplicateSession) {
			continue
		}
		if err != nil {
			return "", err
		}
		s.metrics.SessionCreated()
		s.logger.Info("session created",
			zap.String("session_id", id),
			zap.String("quiz_id", quizID),
			zap.String("host", caller.ID),
			zap.Int("questions", snapshot.Len()),
		)
		s.publish(domain.SessionEvent{Type: domain.EventCreated, SessionID: id, Position: -1, At: s.clock.Now()})
		return id, nil
	}
	return "", ErrDuplicateSession
}

// JoinSession adds a named player to a session still in its lobby.
func (s *SessionService) JoinSession(_ context.Context, sessionID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ErrInvalidName
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	player, err := session.Join(s.newPlayerID(), name)
	if err != nil {
		return "", err
	}
	s.sessions.BindPlayer(player.ID, session)
	s.metrics.PlayerJoined()
	s.logger.Debug("player joined", zap.String("session_id", sessionID), zap.String("player_id", player.ID))
	return player.ID, nil
}

// AdvanceSession moves the session to its next question.
func (s *SessionService) AdvanceSession(ctx context.Context, caller domain.Caller, sessionID string) (int, error) {
	session, err := s.hostSession(ctx, caller, sessionID)
	if err != nil {
		return 0, err
	}
	return s.advanced(session, session.Advance)
}

// AdvanceSessionFrom advances only if the session is still at observed.
func (s *SessionService) AdvanceSessionFrom(ctx context.Context, caller domain.Caller, sessionID string, observed int) (int, error) {
	session, err := s.hostSession(ctx, caller, sessionID)
	if err != nil {
		return 0, err
	}
	return s.advanced(session, func() (int, error) { return session.AdvanceFrom(observed) })
}

func (s *SessionService) advanced(session *Session, advance func() (int, error)) (int, error) {
	position, err := advance()
	if err != nil {
		s.metrics.AdvanceRejected(reason(err))
		s.logger.Info("advance rejected", zap.String("session_id", session.ID()), zap.Error(err))
		return 0, err
	}
	s.logger.Info("session advanced", zap.String("session_id", session.ID()), zap.Int("position", position))
	return position, nil
}

// EndSession ends the session and archives its results. Calling it again
// returns the same artifact.
func (s *SessionService) EndSession(ctx context.Context, caller domain.Caller, sessionID string) (domain.Results, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return s.archivedResults(ctx, caller, sessionID)
	}
	if session.Host() != caller.ID {
		return domain.Results{}, domain.ErrNotSessionHost
	}

	results, created := session.End()
	if !created {
		if !session.Archived() {
			s.archiveResults(ctx, session, results)
		}
		return results, nil
	}
	s.sessions.Release(session)
	s.metrics.SessionEnded()
	s.logger.Info("session ended",
		zap.String("session_id", sessionID),
		zap.Int("players", len(results.PerPlayer)),
	)
	s.archiveResults(ctx, session, results)
	return results, nil
}

// archiveResults saves results and marks the session archived on success.
// Failures are retried by Sweep.
func (s *SessionService) archiveResults(ctx context.Context, session *Session, results domain.Results) bool {
	if s.archive == nil {
		return false
	}
	if err := s.archive.Save(ctx, results); err != nil {
		s.logger.Warn("archive results", zap.String("session_id", session.ID()), zap.Error(err))
		return false
	}
	session.MarkArchived()
	return true
}

// ActiveSession resolves the live session of a quiz for its host. Once the
// quiz has no live session it resolves the most recent one, so ending through
// the quiz route stays idempotent.
func (s *SessionService) ActiveSession(ctx context.Context, caller domain.Caller, quizID string) (string, error) {
	if session, ok := s.sessions.LiveForQuiz(quizID); ok {
		if session.Host() != caller.ID {
			return "", domain.ErrNotSessionHost
		}
		return session.ID(), nil
	}
	sessionID, ok := s.sessions.LatestForQuiz(quizID)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	if session, ok := s.sessions.Get(sessionID); ok {
		if session.Host() != caller.ID {
			return "", domain.ErrNotSessionHost
		}
		return sessionID, nil
	}
	if _, err := s.archivedResults(ctx, caller, sessionID); err != nil {
		return "", err
	}
	return sessionID, nil
}

// SessionStatus is the host panel's per-tick poll.
func (s *SessionService) SessionStatus(ctx context.Context, caller domain.Caller, sessionID string) (domain.SessionStatus, error) {
	session, err := s.hostSession(ctx, caller, sessionID)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return session.Status(), nil
}

// SessionResults returns the results artifact of an ended session.
func (s *SessionService) SessionResults(ctx context.Context, caller domain.Caller, sessionID string) (domain.Results, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return s.archivedResults(ctx, caller, sessionID)
	}
	if session.Host() != caller.ID {
		return domain.Results{}, domain.ErrNotSessionHost
	}
	return session.Results()
}

// SessionSummary computes ranking, correctness and timing aggregates.
func (s *SessionService) SessionSummary(ctx context.Context, caller domain.Caller, sessionID string) (domain.ResultsSummary, error) {
	results, err := s.SessionResults(ctx, caller, sessionID)
	if err != nil {
		return domain.ResultsSummary{}, err
	}
	return Summarize(results, s.topN), nil
}

// Subscribe streams events of a session to its host.
func (s *SessionService) Subscribe(ctx context.Context, caller domain.Caller, sessionID string) (<-chan domain.SessionEvent, func(), error) {
	session, err := s.hostSession(ctx, caller, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// PlayerStatus tells a player whether the session has started or ended.
func (s *SessionService) PlayerStatus(ctx context.Context, playerID string) (domain.PlayerStatus, error) {
	session, err := s.playerSession(playerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		if _, archErr := s.archivedPlayerRow(ctx, playerID); archErr == nil {
			return domain.PlayerStatus{Started: true, Ended: true}, nil
		}
	}
	if err != nil {
		return domain.PlayerStatus{}, err
	}
	return session.PlayerStatus(), nil
}

// CurrentQuestion returns the live question without its answer key.
func (s *SessionService) CurrentQuestion(_ context.Context, playerID string) (domain.PublicQuestion, error) {
	session, err := s.playerSession(playerID)
	if err != nil {
		return domain.PublicQuestion{}, err
	}
	return session.CurrentQuestion()
}

// RevealedAnswers returns the correct answer ids once the question closed.
func (s *SessionService) RevealedAnswers(_ context.Context, playerID string) ([]int, error) {
	session, err := s.playerSession(playerID)
	if err != nil {
		return nil, err
	}
	return session.RevealedAnswers()
}

// SubmitAnswer records the player's selection for the live question.
func (s *SessionService) SubmitAnswer(_ context.Context, playerID string, answerIDs []int) error {
	session, err := s.playerSession(playerID)
	if err != nil {
		return err
	}
	_, err = session.SubmitCurrent(playerID, answerIDs)
	return s.submitted(session, playerID, err)
}

// SubmitAnswerAt records a selection for the question at position, which must be live.
func (s *SessionService) SubmitAnswerAt(_ context.Context, playerID string, position int, answerIDs []int) error {
	session, err := s.playerSession(playerID)
	if err != nil {
		return err
	}
	_, err = session.Submit(playerID, position, answerIDs)
	return s.submitted(session, playerID, err)
}

func (s *SessionService) submitted(session *Session, playerID string, err error) error {
	if err != nil {
		s.metrics.AnswerSubmitted(reason(err))
		s.logger.Debug("submission rejected",
			zap.String("session_id", session.ID()),
			zap.String("player_id", playerID),
			zap.Error(err),
		)
		return err
	}
	s.metrics.AnswerSubmitted("accepted")
	return nil
}

// PlayerResults returns a player's own outcomes after the session ended,
// from the archive once the session has been swept.
func (s *SessionService) PlayerResults(ctx context.Context, playerID string) (domain.PlayerResults, error) {
	session, err := s.playerSession(playerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		row, archErr := s.archivedPlayerRow(ctx, playerID)
		if archErr == nil {
			return domain.PlayerResults{PerQuestion: row.Answers}, nil
		}
	}
	if err != nil {
		return domain.PlayerResults{}, err
	}
	results, err := session.Results()
	if err != nil {
		return domain.PlayerResults{}, err
	}
	row, ok := results.Player(playerID)
	if !ok {
		return domain.PlayerResults{}, domain.ErrPlayerNotFound
	}
	return domain.PlayerResults{PerQuestion: row.Answers}, nil
}

// Sweep forgets sessions that ended more than retention ago. Their results
// stay readable from the archive, so nothing is swept without one, and a
// session whose results never reached the archive is saved again first.
func (s *SessionService) Sweep(ctx context.Context, retention time.Duration) int {
	if s.archive == nil {
		return 0
	}
	cutoff := s.clock.Now().Add(-retention)
	swept := 0
	for _, session := range s.sessions.Sessions() {
		endedAt, ended := session.EndedAt()
		if !ended || !endedAt.Before(cutoff) {
			continue
		}
		if !session.Archived() {
			results, err := session.Results()
			if err != nil || !s.archiveResults(ctx, session, results) {
				continue
			}
		}
		s.sessions.Delete(session.ID())
		swept++
	}
	if swept > 0 {
		s.logger.Info("swept ended sessions", zap.Int("count", swept))
	}
	return swept
}

func (s *SessionService) hostSession(_ context.Context, caller domain.Caller, sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Host() != caller.ID {
		return nil, domain.ErrNotSessionHost
	}
	return session, nil
}

func (s *SessionService) playerSession(playerID string) (*Session, error) {
	session, ok := s.sessions.ForPlayer(playerID)
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return session, nil
}

func (s *SessionService) archivedPlayerRow(ctx context.Context, playerID string) (domain.PlayerResult, error) {
	sessionID, ok := s.sessions.JoinedSession(playerID)
	if !ok || s.archive == nil {
		return domain.PlayerResult{}, domain.ErrPlayerNotFound
	}
	results, err := s.archive.Load(ctx, sessionID)
	if err != nil {
		return domain.PlayerResult{}, domain.ErrPlayerNotFound
	}
	row, ok := results.Player(playerID)
	if !ok {
		return domain.PlayerResult{}, domain.ErrPlayerNotFound
	}
	return row, nil
}

func (s *SessionService) archivedResults(ctx context.Context, caller domain.Caller, sessionID string) (domain.Results, error) {
	if s.archive == nil {
		return domain.Results{}, domain.ErrSessionNotFound
	}
	results, err := s.archive.Load(ctx, sessionID)
	if err != nil {
		return domain.Results{}, err
	}
	if results.Host != caller.ID {
		return domain.Results{}, domain.ErrNotSessionHost
	}
	return results, nil
}

func (s *SessionService) notifier() func(domain.SessionEvent) {
	if s.events == nil {
		return nil
	}
	return s.publish
}

func (s *SessionService) publish(evt domain.SessionEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish session event",
			zap.String("session_id", evt.SessionID),
			zap.String("type", string(evt.Type)),
			zap.Error(err),
		)
	}
}

// reason turns an engine error into a metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuestionClosed):
		return "closed"
	case errors.Is(err, domain.ErrWrongQuestion):
		return "wrong_question"
	case errors.Is(err, domain.ErrInvalidSelection):
		return "invalid_selection"
	case errors.Is(err, domain.ErrSessionNotStarted):
		return "not_started"
	case errors.Is(err, domain.ErrQuestionStillOpen):
		return "still_open"
	case errors.Is(err, domain.ErrNoMoreQuestions):
		return "no_more_questions"
	case errors.Is(err, domain.ErrSessionEnded):
		return "ended"
	case errors.Is(err, domain.ErrPositionMoved):
		return "position_moved"
	case errors.Is(err, domain.ErrPlayerNotFound):
		return "unknown_player"
	default:
		return "other"
	}
}
