package app

import (
	"sync"

	"classpoll-service/internal/domain"
)

// EventType names every event the coordinator can emit. The values double as
// wire message types, so transports forward events without translation.
type EventType string

const (
	EventNewQuestion   EventType = "newQuestion"
	EventTimerUpdate   EventType = "timerUpdate"
	EventTimeUp        EventType = "timeUp"
	EventPollUpdate    EventType = "pollUpdate"
	EventQuestionEnded EventType = "questionEnded"
	EventLeaderboard   EventType = "leaderboard"
	EventAnswerAck     EventType = "answerAck"
)

// Event is one broadcastable occurrence with its typed payload.
type Event struct {
	Type    EventType
	Payload any
}

// QuestionView is the student-facing shape of a question. The correct option
// never leaves the coordinator while a round is live.
type QuestionView struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// NewQuestionPayload announces a question and its countdown to students.
type NewQuestionPayload struct {
	Question QuestionView `json:"question"`
	Time     int          `json:"time"`
}

// AnswerAckPayload confirms a single student's accepted submission.
type AnswerAckPayload struct {
	ChosenOption string `json:"chosenOption"`
}

// Gateway fans events out to subscribed teacher and student channels.
// Delivery is best effort: a slow subscriber has its oldest pending event
// dropped rather than blocking the rest of the audience.
type Gateway struct {
	mu       sync.RWMutex
	students map[string]chan Event
	teachers map[chan Event]struct{}
	buffer   int
}

func NewGateway() *Gateway {
	return &Gateway{
		students: make(map[string]chan Event),
		teachers: make(map[chan Event]struct{}),
		buffer:   16,
	}
}

// SubscribeStudent registers a delivery channel for one student connection.
// The caller must invoke the returned cancel function to avoid leaks.
func (g *Gateway) SubscribeStudent(studentID string) (<-chan Event, func()) {
	ch := make(chan Event, g.buffer)

	g.mu.Lock()
	g.students[studentID] = ch
	g.mu.Unlock()

	cancel := func() {
		g.mu.Lock()
		if cur, ok := g.students[studentID]; ok && cur == ch {
			delete(g.students, studentID)
			close(ch)
		}
		g.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeTeacher registers a delivery channel for a teacher connection.
func (g *Gateway) SubscribeTeacher() (<-chan Event, func()) {
	ch := make(chan Event, g.buffer)

	g.mu.Lock()
	g.teachers[ch] = struct{}{}
	g.mu.Unlock()

	cancel := func() {
		g.mu.Lock()
		if _, ok := g.teachers[ch]; ok {
			delete(g.teachers, ch)
			close(ch)
		}
		g.mu.Unlock()
	}
	return ch, cancel
}

// ToStudents delivers an event to every connected student.
func (g *Gateway) ToStudents(ev Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ch := range g.students {
		send(ch, ev)
	}
}

// ToStudent delivers an event to a single student, if still connected.
func (g *Gateway) ToStudent(studentID string, ev Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if ch, ok := g.students[studentID]; ok {
		send(ch, ev)
	}
}

// ToTeacher delivers an event to every teacher connection.
func (g *Gateway) ToTeacher(ev Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for ch := range g.teachers {
		send(ch, ev)
	}
}

// ToAll delivers an event to teacher and students alike.
func (g *Gateway) ToAll(ev Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ch := range g.students {
		send(ch, ev)
	}
	for ch := range g.teachers {
		send(ch, ev)
	}
}

// send never blocks: when the subscriber's buffer is full the oldest pending
// event is discarded so the newest state wins.
func send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// LeaderboardEvent wraps a ranked snapshot for broadcast.
func LeaderboardEvent(entries []domain.LeaderboardEntry) Event {
	return Event{Type: EventLeaderboard, Payload: entries}
}
