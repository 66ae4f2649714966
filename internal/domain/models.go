package domain

import "time"

// Student represents one connected participant and their cumulative score.
type Student struct {
	ID          string
	DisplayName string
	Score       int
	JoinOrder   int
	JoinedAt    time.Time
}

// Question is a multiple-choice question as posed by the teacher. It is
// immutable once created; options are matched by their exact text.
type Question struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	CorrectOption  string   `json:"correctOption"`
	DurationSecond int      `json:"durationSeconds"`
}

// HasOption reports whether text is one of the question's options.
func (q Question) HasOption(text string) bool {
	for _, opt := range q.Options {
		if opt == text {
			return true
		}
	}
	return false
}

// QuestionSet is a prepared collection of questions the teacher can draw from.
type QuestionSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// FindQuestion returns the question with the given ID, if present.
func (s QuestionSet) FindQuestion(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// RoundStatus tracks where the current question is in its lifecycle.
type RoundStatus int

const (
	RoundActive RoundStatus = iota + 1
	RoundEnded
)

// EndReason distinguishes why a round closed.
type EndReason string

const (
	EndReasonTimeout      EndReason = "timeout"
	EndReasonTeacherEnded EndReason = "teacherEnded"
)

// Tally maps option text to the number of recorded votes for it.
type Tally map[string]int

// Total is the number of recorded answers behind the tally.
func (t Tally) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// LeaderboardEntry is a snapshot-friendly view of one student's standing.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// RoundResult captures the final outcome of a round for broadcasting.
type RoundResult struct {
	QuestionID  string             `json:"questionId"`
	Reason      EndReason          `json:"reason"`
	Votes       Tally              `json:"votes"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}
