package app

import (
	"math"
	"slices"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// DefaultTopPlayers is the ranking cut-off used when none is configured.
const DefaultTopPlayers = 5

// buildResults materializes the artifact from the frozen ledger. starts holds
// the start stamp of every question that went live, in position order.
func buildResults(base domain.Results, snapshot domain.Snapshot, players []domain.Player, starts []time.Time, ledger *Ledger) domain.Results {
	base.TotalQuestions = snapshot.Len()
	base.PerPlayer = make([]domain.PlayerResult, 0, len(players))
	for _, p := range players {
		row := domain.PlayerResult{
			PlayerID: p.ID,
			Name:     p.Name,
			Answers:  make([]domain.AnswerOutcome, len(starts)),
		}
		for pos, startedAt := range starts {
			outcome := domain.AnswerOutcome{QuestionStartedAt: startedAt}
			if entry, ok := ledger.entry(p.ID, pos); ok && len(entry.SelectedAnswerIDs) > 0 {
				answeredAt := entry.AnsweredAt
				outcome.AnsweredAt = &answeredAt
				outcome.Correct = slices.Equal(entry.SelectedAnswerIDs, snapshot.Questions[pos].CorrectAnswerIDs)
			}
			row.Answers[pos] = outcome
		}
		base.PerPlayer = append(base.PerPlayer, row)
	}
	return base
}

// TopPlayers ranks by correct/total questions, descending. Ties keep join
// order. At most n rows are returned.
func TopPlayers(results domain.Results, n int) []domain.RankedPlayer {
	if results.TotalQuestions == 0 || len(results.PerPlayer) == 0 || n <= 0 {
		return []domain.RankedPlayer{}
	}
	ranked := make([]domain.RankedPlayer, 0, len(results.PerPlayer))
	for _, p := range results.PerPlayer {
		correct := 0
		for _, a := range p.Answers {
			if a.Correct {
				correct++
			}
		}
		ranked = append(ranked, domain.RankedPlayer{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Correct:  correct,
			Score:    float64(correct) / float64(results.TotalQuestions),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// CorrectnessRates returns, per started question, the percentage of all
// players who answered correctly.
func CorrectnessRates(results domain.Results) []domain.QuestionCorrectness {
	players := len(results.PerPlayer)
	if players == 0 {
		return []domain.QuestionCorrectness{}
	}
	out := make([]domain.QuestionCorrectness, startedQuestions(results))
	for pos := range out {
		correct := 0
		for _, p := range results.PerPlayer {
			if pos < len(p.Answers) && p.Answers[pos].Correct {
				correct++
			}
		}
		out[pos] = domain.QuestionCorrectness{
			Position:       pos,
			PercentCorrect: round2(float64(correct) / float64(players) * 100),
		}
	}
	return out
}

// AverageResponseTimes returns the mean answeredAt-questionStartedAt per
// question. Players without an answer are left out of the mean.
func AverageResponseTimes(results domain.Results) []domain.QuestionTiming {
	if len(results.PerPlayer) == 0 {
		return []domain.QuestionTiming{}
	}
	out := make([]domain.QuestionTiming, startedQuestions(results))
	for pos := range out {
		var total float64
		answered := 0
		for _, p := range results.PerPlayer {
			if pos >= len(p.Answers) || p.Answers[pos].AnsweredAt == nil {
				continue
			}
			a := p.Answers[pos]
			total += a.AnsweredAt.Sub(a.QuestionStartedAt).Seconds()
			answered++
		}
		timing := domain.QuestionTiming{Position: pos, Answered: answered}
		if answered > 0 {
			timing.AverageSeconds = round2(total / float64(answered))
		}
		out[pos] = timing
	}
	return out
}

// Summarize computes every aggregate of a results artifact.
func Summarize(results domain.Results, topN int) domain.ResultsSummary {
	return domain.ResultsSummary{
		TopPlayers:   TopPlayers(results, topN),
		Correctness:  CorrectnessRates(results),
		AverageTimes: AverageResponseTimes(results),
	}
}

func startedQuestions(results domain.Results) int {
	n := 0
	for _, p := range results.PerPlayer {
		n = max(n, len(p.Answers))
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
