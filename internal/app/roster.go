package app

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"classpoll-service/internal/domain"
)

// roster tracks connected students. It is not safe for concurrent use; the
// Coordinator serializes access.
type roster struct {
	students map[string]*domain.Student
	joinSeq  int
	now      func() time.Time
}

func newRoster(now func() time.Time) *roster {
	return &roster{
		students: make(map[string]*domain.Student),
		now:      now,
	}
}

// join admits a student under a fresh id. Duplicate display names are kept
// apart by id, never merged.
func (r *roster) join(displayName string, initialScore int) *domain.Student {
	r.joinSeq++
	s := &domain.Student{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Score:       initialScore,
		JoinOrder:   r.joinSeq,
		JoinedAt:    r.now(),
	}
	r.students[s.ID] = s
	return s
}

func (r *roster) leave(id string) (*domain.Student, bool) {
	s, ok := r.students[id]
	if ok {
		delete(r.students, id)
	}
	return s, ok
}

func (r *roster) get(id string) (*domain.Student, bool) {
	s, ok := r.students[id]
	return s, ok
}

func (r *roster) size() int { return len(r.students) }

// entries returns the ranked leaderboard: descending score, ties broken by
// join order so earlier arrivals rank first.
func (r *roster) entries() []domain.LeaderboardEntry {
	ordered := make([]*domain.Student, 0, len(r.students))
	for _, s := range r.students {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].JoinOrder < ordered[j].JoinOrder
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for _, s := range ordered {
		entries = append(entries, domain.LeaderboardEntry{Name: s.DisplayName, Score: s.Score})
	}
	return entries
}
