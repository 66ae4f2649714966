package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"classpoll-service/internal/app"
	"classpoll-service/internal/domain"
)

// WSHandler exposes the session coordinator over two websocket endpoints:
// one for the teacher console and one per student.
type WSHandler struct {
	coordinator *app.Coordinator
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type sendQuestionPayload struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
	Duration      int      `json:"duration"`
}

type bankQuestionPayload struct {
	SetID      string `json:"setId"`
	QuestionID string `json:"questionId"`
	Duration   int    `json:"duration"`
}

type answerPayload struct {
	ChosenOption string `json:"chosenOption"`
}

type joinedPayload struct {
	StudentID   string                    `json:"studentId"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// ServeStudentWS admits one student for the lifetime of the connection. The
// display name arrives as a query parameter; the student leaves the roster
// when the socket closes.
func (h *WSHandler) ServeStudentWS(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	studentID, leaderboard, err := h.coordinator.Join(r.Context(), name)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.coordinator.Leave(r.Context(), studentID)

	events, cancel := h.coordinator.Gateway().SubscribeStudent(studentID)
	defer cancel()

	wr := newConnWriter(conn, events)
	defer wr.shutdown()

	wr.enqueue(outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		StudentID:   studentID,
		Leaderboard: leaderboard,
	}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				wr.enqueue(errorMessage("invalid answer payload"))
				continue
			}
			if err := h.coordinator.Submit(studentID, payload.ChosenOption); err != nil {
				wr.enqueue(errorMessage(err.Error()))
			}
		default:
			wr.enqueue(errorMessage("unsupported message type"))
		}
	}
}

// ServeTeacherWS attaches a teacher console: it receives poll/timer/result
// events and drives the question lifecycle.
func (h *WSHandler) ServeTeacherWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.coordinator.Gateway().SubscribeTeacher()
	defer cancel()

	wr := newConnWriter(conn, events)
	defer wr.shutdown()

	wr.enqueue(outboundMessage[any]{Type: "leaderboard", Payload: h.coordinator.Leaderboard()})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "sendQuestion":
			var payload sendQuestionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				wr.enqueue(errorMessage("invalid question payload"))
				continue
			}
			err := h.coordinator.StartQuestion(domain.Question{
				Text:           payload.Text,
				Options:        payload.Options,
				CorrectOption:  payload.CorrectOption,
				DurationSecond: payload.Duration,
			})
			if err != nil {
				wr.enqueue(errorMessage(err.Error()))
			}
		case "bankQuestion":
			var payload bankQuestionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				wr.enqueue(errorMessage("invalid bank question payload"))
				continue
			}
			if err := h.coordinator.StartFromBank(r.Context(), payload.SetID, payload.QuestionID, payload.Duration); err != nil {
				wr.enqueue(errorMessage(err.Error()))
			}
		case "endQuestion":
			h.coordinator.EndQuestion(domain.EndReasonTeacherEnded)
		default:
			wr.enqueue(errorMessage("unsupported message type"))
		}
	}
}

// connWriter owns all writes to one connection so the reader and the event
// forwarder never write concurrently.
type connWriter struct {
	send        chan outboundMessage[any]
	stop        chan struct{}
	writerDone  chan struct{}
	forwardDone chan struct{}
}

func newConnWriter(conn *websocket.Conn, events <-chan app.Event) *connWriter {
	w := &connWriter{
		send:        make(chan outboundMessage[any], 16),
		stop:        make(chan struct{}),
		writerDone:  make(chan struct{}),
		forwardDone: make(chan struct{}),
	}

	go func() {
		defer close(w.writerDone)
		for msg := range w.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	// Forward coordinator events onto the send queue until the subscription
	// or the connection goes away.
	go func() {
		defer close(w.forwardDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case w.send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev.Payload}:
				case <-w.stop:
					return
				}
			case <-w.stop:
				return
			}
		}
	}()

	return w
}

// enqueue drops the message if the writer has already exited.
func (w *connWriter) enqueue(msg outboundMessage[any]) {
	select {
	case w.send <- msg:
	case <-w.writerDone:
	}
}

// shutdown stops the forwarder before closing the send queue, then waits for
// the writer to drain.
func (w *connWriter) shutdown() {
	close(w.stop)
	<-w.forwardDone
	close(w.send)
	<-w.writerDone
}

func errorMessage(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
