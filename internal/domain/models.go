package domain

import "time"

// MediaKind is the type of supplementary media attached to a question.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media is optional supplementary content shown alongside a question.
type Media struct {
	Kind MediaKind `json:"type"`
	Data string    `json:"data"`
}

// Answer is one selectable option. IDs are 0-based and contiguous within a question.
type Answer struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Question models a timed question. IDs are 1-based and contiguous within a quiz.
// Wire names follow the existing clients (time, solutions, url).
type Question struct {
	ID               int      `json:"id"`
	Text             string   `json:"text"`
	DurationSeconds  int      `json:"time"`
	Points           int      `json:"points"`
	Answers          []Answer `json:"answers"`
	CorrectAnswerIDs []int    `json:"solutions"`
	Media            *Media   `json:"url,omitempty"`
}

// Duration returns the question's open window.
func (q Question) Duration() time.Duration {
	return time.Duration(q.DurationSeconds) * time.Second
}

// SingleAnswer reports whether at most one answer may be selected.
func (q Question) SingleAnswer() bool {
	return len(q.CorrectAnswerIDs) == 1
}

// Quiz is the authoring-side template a session is started from.
type Quiz struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Owner     string     `json:"owner"`
	Version   int        `json:"version"`
	Questions []Question `json:"questions"`
}

// Snapshot is the frozen copy of a quiz's questions taken at session start.
type Snapshot struct {
	QuizID    string     `json:"quizId"`
	Version   int        `json:"version"`
	TakenAt   time.Time  `json:"takenAt"`
	Questions []Question `json:"questions"`
}

// Len returns the number of questions in the snapshot.
func (s Snapshot) Len() int { return len(s.Questions) }

// SessionState is the lifecycle phase of a session.
type SessionState string

const (
	StateLobby          SessionState = "lobby"
	StateQuestionActive SessionState = "questionActive"
	StateAnswerReveal   SessionState = "answerReveal"
	StateEnded          SessionState = "ended"
)

// Player is a roster entry. Names need not be unique.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Caller is the resolved identity of whoever invokes a host operation.
type Caller struct {
	ID string
}

// LedgerEntry is the latest submission of one player for one question position.
type LedgerEntry struct {
	SessionID         string    `json:"sessionId"`
	PlayerID          string    `json:"playerId"`
	QuestionPosition  int       `json:"questionPosition"`
	SelectedAnswerIDs []int     `json:"selectedAnswerIds"`
	QuestionStartedAt time.Time `json:"questionStartedAt"`
	AnsweredAt        time.Time `json:"answeredAt"`
}

// AnswerOutcome is one player's result for one question.
type AnswerOutcome struct {
	Correct           bool       `json:"correct"`
	QuestionStartedAt time.Time  `json:"questionStartedAt"`
	AnsweredAt        *time.Time `json:"answeredAt"`
}

// PlayerResult holds a player's outcomes in question order.
type PlayerResult struct {
	PlayerID string          `json:"playerId"`
	Name     string          `json:"name"`
	Answers  []AnswerOutcome `json:"answers"`
}

// Results is the read-only artifact built once when a session ends. PerPlayer
// is in join order; Answers cover every question that was started.
type Results struct {
	SessionID      string         `json:"sessionId"`
	QuizID         string         `json:"quizId"`
	Host           string         `json:"host"`
	TotalQuestions int            `json:"totalQuestions"`
	EndedAt        time.Time      `json:"endedAt"`
	PerPlayer      []PlayerResult `json:"perPlayer"`
}

// Player returns the result row for playerID.
func (r Results) Player(playerID string) (PlayerResult, bool) {
	for _, p := range r.PerPlayer {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return PlayerResult{}, false
}
