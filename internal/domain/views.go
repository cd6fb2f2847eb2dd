package domain

import "time"

// SessionStatus is what the host panel polls every tick. State is the observed
// state, so an expired question reads as AnswerReveal.
type SessionStatus struct {
	SessionID                  string       `json:"sessionId"`
	QuizID                     string       `json:"quizId"`
	Active                     bool         `json:"active"`
	State                      SessionState `json:"state"`
	Position                   int          `json:"position"`
	Questions                  []Question   `json:"questions"`
	Players                    []string     `json:"players"`
	IsoTimeLastQuestionStarted *time.Time   `json:"isoTimeLastQuestionStarted"`
	AnswerAvailable            bool         `json:"answerAvailable"`
	TimeRemaining              float64      `json:"timeRemaining"`
	Version                    int64        `json:"version"`
}

// PublicQuestion is the player-facing question payload; it never carries the
// answer key, only how many answers are correct.
type PublicQuestion struct {
	ID                         int       `json:"id"`
	Text                       string    `json:"text"`
	Points                     int       `json:"points"`
	DurationSeconds            int       `json:"time"`
	Answers                    []Answer  `json:"answers"`
	Solutions                  int       `json:"sols"`
	Media                      *Media    `json:"url,omitempty"`
	Position                   int       `json:"position"`
	IsoTimeLastQuestionStarted time.Time `json:"isoTimeLastQuestionStarted"`
}

// PlayerStatus tells a player whether to show the lobby, a question or results.
type PlayerStatus struct {
	Started bool `json:"started"`
	Ended   bool `json:"ended"`
}

// PlayerResults is a single player's view of the results artifact.
type PlayerResults struct {
	PerQuestion []AnswerOutcome `json:"perQuestion"`
}

// RankedPlayer is one row of the top-N ranking.
type RankedPlayer struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Correct  int     `json:"correct"`
	Score    float64 `json:"score"`
}

// QuestionCorrectness is the share of players who answered a question correctly.
type QuestionCorrectness struct {
	Position       int     `json:"position"`
	PercentCorrect float64 `json:"percentCorrect"`
}

// QuestionTiming is the mean response latency of those who answered.
type QuestionTiming struct {
	Position       int     `json:"position"`
	Answered       int     `json:"answered"`
	AverageSeconds float64 `json:"averageSeconds"`
}

// ResultsSummary bundles the aggregates derived from a Results artifact.
type ResultsSummary struct {
	TopPlayers   []RankedPlayer        `json:"topPlayers"`
	Correctness  []QuestionCorrectness `json:"correctness"`
	AverageTimes []QuestionTiming      `json:"averageTimes"`
}

// EventType names a session mutation.
type EventType string

const (
	EventCreated  EventType = "created"
	EventJoined   EventType = "joined"
	EventAdvanced EventType = "advanced"
	EventAnswered EventType = "answered"
	EventEnded    EventType = "ended"
)

// SessionEvent is emitted after every successful mutation.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Position  int       `json:"position"`
	Version   int64     `json:"version"`
	At        time.Time `json:"at"`
}
