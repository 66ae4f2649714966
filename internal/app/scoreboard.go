package app

import "classpoll-service/internal/domain"

// applyScores awards one point to every rostered student whose recorded
// answer matches the question's correct option, then returns the ranked
// leaderboard. It runs exactly once per round, on the transition to Ended, so
// no score moves more than one point per question. Students who answered and
// disconnected before the round closed keep their vote in the tally but earn
// nothing.
func applyScores(r *roster, rd *round) []domain.LeaderboardEntry {
	for studentID, chosen := range rd.answers {
		if chosen != rd.question.CorrectOption {
			continue
		}
		if s, ok := r.get(studentID); ok {
			s.Score++
		}
	}
	return r.entries()
}
