package app

import (
	"time"

	"github.com/google/uuid"

	"classpoll-service/internal/domain"
)

// round owns one question from activation to ending. Access is serialized by
// the Coordinator.
type round struct {
	id        string
	question  domain.Question
	startedAt time.Time
	deadline  time.Time
	answers   map[string]string
	status    domain.RoundStatus
}

func newRound(q domain.Question, now time.Time) *round {
	return &round{
		id:        uuid.NewString(),
		question:  q,
		startedAt: now,
		deadline:  now.Add(time.Duration(q.DurationSecond) * time.Second),
		answers:   make(map[string]string),
		status:    domain.RoundActive,
	}
}

// submit records a student's answer. First accepted answer wins; nothing is
// ever overwritten.
func (r *round) submit(studentID, option string) error {
	if r.status != domain.RoundActive {
		return domain.ErrNoActiveQuestion
	}
	if !r.question.HasOption(option) {
		return domain.ErrUnknownOption
	}
	if _, dup := r.answers[studentID]; dup {
		return domain.ErrDuplicateAnswer
	}
	r.answers[studentID] = option
	return nil
}

// end freezes the answers map. Reports whether this call did the transition.
func (r *round) end() bool {
	if r.status != domain.RoundActive {
		return false
	}
	r.status = domain.RoundEnded
	return true
}

// tally derives per-option vote counts. Every option appears, zero or not, so
// counts always sum to the number of recorded answers.
func (r *round) tally() domain.Tally {
	t := make(domain.Tally, len(r.question.Options))
	for _, opt := range r.question.Options {
		t[opt] = 0
	}
	for _, chosen := range r.answers {
		t[chosen]++
	}
	return t
}

// validateQuestion enforces the shape required before a round may start.
func validateQuestion(q domain.Question) error {
	if len(q.Options) < 2 || q.DurationSecond <= 0 {
		return domain.ErrInvalidQuestion
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if opt == "" {
			return domain.ErrInvalidQuestion
		}
		if _, dup := seen[opt]; dup {
			return domain.ErrInvalidQuestion
		}
		seen[opt] = struct{}{}
	}
	if _, ok := seen[q.CorrectOption]; !ok {
		return domain.ErrInvalidQuestion
	}
	return nil
}

// newQuestionID stamps ad-hoc questions that arrive without an id.
func newQuestionID() string { return uuid.NewString() }
