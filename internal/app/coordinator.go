package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"classpoll-service/internal/domain"
)

// QuestionBank loads prepared question sets (from cache/backing store).
type QuestionBank interface {
	GetSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// ScoreStore optionally retains scores keyed by display name so a student who
// reconnects under the same name picks up where they left off.
type ScoreStore interface {
	Load(ctx context.Context, displayName string) (int, bool, error)
	Save(ctx context.Context, displayName string, score int) error
}

// Options tune per-session coordinator behavior.
type Options struct {
	// DefaultDurationSeconds applies when the teacher sends a question
	// without an explicit duration.
	DefaultDurationSeconds int
	// AnswerGrace keeps answer acceptance open for a bounded interval after
	// the countdown reaches zero, absorbing in-flight submissions. Zero
	// closes acceptance exactly at the last tick.
	AnswerGrace time.Duration
	// RetainScores routes scores through the ScoreStore on join and leave.
	RetainScores bool
}

func (o Options) withDefaults() Options {
	if o.DefaultDurationSeconds <= 0 {
		o.DefaultDurationSeconds = 30
	}
	return o
}

// Coordinator is the single authoritative owner of one classroom session:
// roster, active round, scoring, and event fan-out. Inbound events arrive
// concurrently from many connections; one mutex serializes every mutation so
// each event is handled to completion before the next, which is what upholds
// the one-answer-per-student and tally invariants.
type Coordinator struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	gateway    *Gateway
	roster     *roster
	round      *round
	countdown  *Countdown
	graceTimer clockwork.Timer
	bank       QuestionBank
	scores     ScoreStore
	opts       Options
}

func NewCoordinator(gateway *Gateway, bank QuestionBank, scores ScoreStore, opts Options) *Coordinator {
	return NewCoordinatorWithClock(gateway, bank, scores, opts, clockwork.NewRealClock())
}

// NewCoordinatorWithClock injects the clock for deterministic countdown tests.
func NewCoordinatorWithClock(gateway *Gateway, bank QuestionBank, scores ScoreStore, opts Options, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		clock:   clock,
		gateway: gateway,
		roster:  newRoster(clock.Now),
		bank:    bank,
		scores:  scores,
		opts:    opts.withDefaults(),
	}
}

// Gateway exposes the session's broadcast fan-out for transports to
// subscribe against.
func (c *Coordinator) Gateway() *Gateway { return c.gateway }

// Join admits a student and broadcasts the refreshed leaderboard. The
// returned id is the student's handle for answers and for leaving.
func (c *Coordinator) Join(ctx context.Context, displayName string) (string, []domain.LeaderboardEntry, error) {
	initial := 0
	if c.opts.RetainScores && c.scores != nil {
		if score, ok, err := c.scores.Load(ctx, displayName); err == nil && ok {
			initial = score
		} else if err != nil {
			log.Warn().Err(err).Str("name", displayName).Msg("retained score lookup failed")
		}
	}

	c.mu.Lock()
	student := c.roster.join(displayName, initial)
	entries := c.roster.entries()
	// Broadcast before releasing the lock so per-channel event order always
	// matches mutation order.
	c.gateway.ToAll(LeaderboardEvent(entries))
	c.mu.Unlock()

	log.Info().Str("student_id", student.ID).Str("name", displayName).Msg("student joined")
	return student.ID, entries, nil
}

// Leave removes a student. Answers they already gave this round stay in the
// tally; past scoring is never rewritten.
func (c *Coordinator) Leave(ctx context.Context, studentID string) {
	c.mu.Lock()
	student, ok := c.roster.leave(studentID)
	if ok {
		c.gateway.ToAll(LeaderboardEvent(c.roster.entries()))
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if c.opts.RetainScores && c.scores != nil {
		if err := c.scores.Save(ctx, student.DisplayName, student.Score); err != nil {
			log.Warn().Err(err).Str("name", student.DisplayName).Msg("score retention failed")
		}
	}
	log.Info().Str("student_id", studentID).Msg("student left")
}

// StartQuestion activates a new round for the given question and starts its
// countdown. Fails with ErrInvalidState while a round is active and with
// ErrInvalidQuestion for malformed input.
func (c *Coordinator) StartQuestion(q domain.Question) error {
	if q.DurationSecond == 0 {
		q.DurationSecond = c.opts.DefaultDurationSeconds
	}
	if err := validateQuestion(q); err != nil {
		return err
	}
	if q.ID == "" {
		q.ID = newQuestionID()
	}

	c.mu.Lock()
	if c.round != nil && c.round.status == domain.RoundActive {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}
	rd := newRound(q, c.clock.Now())
	c.round = rd
	cd := startCountdown(c.clock, q.DurationSecond)
	c.countdown = cd
	c.gateway.ToStudents(Event{Type: EventNewQuestion, Payload: NewQuestionPayload{
		Question: QuestionView{Text: q.Text, Options: q.Options},
		Time:     q.DurationSecond,
	}})
	c.mu.Unlock()

	go c.watchCountdown(rd.id, cd)

	log.Info().Str("question_id", q.ID).Int("duration_s", q.DurationSecond).Msg("question started")
	return nil
}

// StartFromBank looks a prepared question up in the bank and activates it.
// A positive durationSeconds overrides the stored duration.
func (c *Coordinator) StartFromBank(ctx context.Context, setID, questionID string, durationSeconds int) error {
	set, err := c.bank.GetSet(ctx, setID)
	if err != nil {
		return err
	}
	q, ok := set.FindQuestion(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if durationSeconds > 0 {
		q.DurationSecond = durationSeconds
	}
	return c.StartQuestion(q)
}

// Submit records one answer for one student against the active round. On
// acceptance the live tally goes to the teacher and an ack to the submitting
// student only; every rejection is a local no-op surfaced to the caller.
func (c *Coordinator) Submit(studentID, chosenOption string) error {
	c.mu.Lock()
	if c.round == nil || c.round.status != domain.RoundActive {
		c.mu.Unlock()
		return domain.ErrNoActiveQuestion
	}
	if _, ok := c.roster.get(studentID); !ok {
		c.mu.Unlock()
		return domain.ErrUnknownStudent
	}
	if err := c.round.submit(studentID, chosenOption); err != nil {
		c.mu.Unlock()
		return err
	}
	c.gateway.ToTeacher(Event{Type: EventPollUpdate, Payload: c.round.tally()})
	c.gateway.ToStudent(studentID, Event{Type: EventAnswerAck, Payload: AnswerAckPayload{ChosenOption: chosenOption}})
	c.mu.Unlock()
	return nil
}

// EndQuestion closes the active round on the teacher's behalf. Calling it
// with no active round, or racing it against the timeout, is a no-op.
func (c *Coordinator) EndQuestion(reason domain.EndReason) {
	c.mu.Lock()
	var currentID string
	if c.round != nil {
		currentID = c.round.id
	}
	c.endLocked(reason, currentID)
	c.mu.Unlock()
}

// Leaderboard returns the current ranked standings.
func (c *Coordinator) Leaderboard() []domain.LeaderboardEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.entries()
}

// Tally returns the active round's current vote counts, if a round exists.
func (c *Coordinator) Tally() (domain.Tally, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.round == nil {
		return nil, false
	}
	return c.round.tally(), true
}

// watchCountdown forwards ticks to the teacher channel and converts natural
// expiry into a timeout ending for exactly the round it was started for.
func (c *Coordinator) watchCountdown(roundID string, cd *Countdown) {
	for {
		select {
		case remaining := <-cd.Ticks():
			c.gateway.ToTeacher(Event{Type: EventTimerUpdate, Payload: remaining})
		case <-cd.Expired():
			c.handleExpiry(roundID)
			return
		case <-cd.Stopped():
			return
		}
	}
}

func (c *Coordinator) handleExpiry(roundID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.round == nil || c.round.id != roundID || c.round.status != domain.RoundActive {
		return
	}
	if c.opts.AnswerGrace > 0 {
		// Keep acceptance open briefly for in-flight answers, then close.
		c.graceTimer = c.clock.AfterFunc(c.opts.AnswerGrace, func() {
			c.mu.Lock()
			c.endLocked(domain.EndReasonTimeout, roundID)
			c.mu.Unlock()
		})
		return
	}
	c.endLocked(domain.EndReasonTimeout, roundID)
}

// endLocked performs the Active -> Ended transition. It is idempotent: the
// round id and status checks make a second ending, whether a duplicate
// teacher command or a timeout racing a manual end, observationally nothing.
func (c *Coordinator) endLocked(reason domain.EndReason, roundID string) {
	rd := c.round
	if rd == nil || rd.id != roundID || !rd.end() {
		return
	}
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}

	entries := applyScores(c.roster, rd)
	c.persistScoresLocked()
	result := domain.RoundResult{
		QuestionID:  rd.question.ID,
		Reason:      reason,
		Votes:       rd.tally(),
		Leaderboard: entries,
	}

	log.Info().Str("question_id", rd.question.ID).Str("reason", string(reason)).
		Int("answers", len(rd.answers)).Msg("question ended")

	c.gateway.ToTeacher(Event{Type: EventQuestionEnded, Payload: result})
	c.gateway.ToStudents(Event{Type: EventTimeUp, Payload: nil})
	c.gateway.ToAll(LeaderboardEvent(entries))
}

// persistScoresLocked is best effort; retention failures never disturb the
// round transition.
func (c *Coordinator) persistScoresLocked() {
	if !c.opts.RetainScores || c.scores == nil {
		return
	}
	for _, s := range c.roster.students {
		if err := c.scores.Save(context.Background(), s.DisplayName, s.Score); err != nil {
			log.Warn().Err(err).Str("name", s.DisplayName).Msg("score retention failed")
		}
	}
}
