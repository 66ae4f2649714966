package app_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"classpoll-service/internal/app"
	"classpoll-service/internal/domain"
	"classpoll-service/internal/infra/memory"
)

func TestAnswerTallyAndScoringOnTimeout(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	teacherCh, cancelTeacher := coord.Gateway().SubscribeTeacher()
	defer cancelTeacher()

	aliceID, _, err := coord.Join(ctx, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bobID, _, err := coord.Join(ctx, "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := coord.StartQuestion(question("A", "B", 15)); err != nil {
		t.Fatalf("start question: %v", err)
	}

	if err := coord.Submit(aliceID, "A"); err != nil {
		t.Fatalf("submit A: %v", err)
	}
	if err := coord.Submit(bobID, "B"); err != nil {
		t.Fatalf("submit B: %v", err)
	}

	// Every accepted answer pushes a live tally whose counts sum to the
	// number of recorded answers.
	first := waitForEvent(t, teacherCh, app.EventPollUpdate).Payload.(domain.Tally)
	if first.Total() != 1 {
		t.Fatalf("expected 1 recorded answer, got %d", first.Total())
	}
	second := waitForEvent(t, teacherCh, app.EventPollUpdate).Payload.(domain.Tally)
	if second.Total() != 2 || second["A"] != 1 || second["B"] != 1 {
		t.Fatalf("unexpected live tally: %+v", second)
	}

	for remaining := 14; remaining >= 0; remaining-- {
		fc.BlockUntil(1)
		fc.Advance(time.Second)
		tick := waitForEvent(t, teacherCh, app.EventTimerUpdate).Payload.(int)
		if tick != remaining {
			t.Fatalf("expected tick %d, got %d", remaining, tick)
		}
	}

	result := waitForEvent(t, teacherCh, app.EventQuestionEnded).Payload.(domain.RoundResult)
	if result.Reason != domain.EndReasonTimeout {
		t.Fatalf("expected timeout end, got %q", result.Reason)
	}
	if result.Votes["A"] != 1 || result.Votes["B"] != 1 || result.Votes.Total() != 2 {
		t.Fatalf("unexpected final tally: %+v", result.Votes)
	}

	lb := coord.Leaderboard()
	if len(lb) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb))
	}
	if lb[0].Name != "Alice" || lb[0].Score != 1 {
		t.Fatalf("expected Alice to lead with 1 point, got %+v", lb[0])
	}
	if lb[1].Name != "Bob" || lb[1].Score != 0 {
		t.Fatalf("expected Bob on 0 points, got %+v", lb[1])
	}
}

func TestDuplicateAnswerRejected(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.StartQuestion(question("A", "B", 10)); err != nil {
		t.Fatalf("start question: %v", err)
	}

	if err := coord.Submit(id, "A"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := coord.Submit(id, "B"); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	// The first answer stays recorded.
	tally, ok := coord.Tally()
	if !ok || tally["A"] != 1 || tally["B"] != 0 {
		t.Fatalf("first answer should win, tally %+v", tally)
	}
}

func TestSubmitOutsideActiveRound(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.Submit(id, "A"); !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected no-active rejection before any round, got %v", err)
	}

	if err := coord.StartQuestion(question("A", "B", 10)); err != nil {
		t.Fatalf("start question: %v", err)
	}
	coord.EndQuestion(domain.EndReasonTeacherEnded)

	if err := coord.Submit(id, "A"); !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected no-active rejection after ending, got %v", err)
	}
}

func TestSubmitRejectionKinds(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.StartQuestion(question("A", "B", 10)); err != nil {
		t.Fatalf("start question: %v", err)
	}

	if err := coord.Submit(id, "C"); !errors.Is(err, domain.ErrUnknownOption) {
		t.Fatalf("expected unknown option, got %v", err)
	}
	if err := coord.Submit("not-a-student", "A"); !errors.Is(err, domain.ErrUnknownStudent) {
		t.Fatalf("expected unknown student, got %v", err)
	}

	// Rejections never touch the round.
	tally, _ := coord.Tally()
	if tally.Total() != 0 {
		t.Fatalf("rejections must not record answers, tally %+v", tally)
	}
}

func TestStartQuestionValidation(t *testing.T) {
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	if err := coord.StartQuestion(domain.Question{
		Text: "?", Options: []string{"only"}, CorrectOption: "only", DurationSecond: 10,
	}); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question for one option, got %v", err)
	}
	if err := coord.StartQuestion(domain.Question{
		Text: "?", Options: []string{"A", "A"}, CorrectOption: "A", DurationSecond: 10,
	}); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question for duplicate options, got %v", err)
	}
	if err := coord.StartQuestion(domain.Question{
		Text: "?", Options: []string{"A", "B"}, CorrectOption: "C", DurationSecond: 10,
	}); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question for foreign correct option, got %v", err)
	}
	if err := coord.StartQuestion(domain.Question{
		Text: "?", Options: []string{"A", "B"}, CorrectOption: "A", DurationSecond: -1,
	}); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question for negative duration, got %v", err)
	}

	if err := coord.StartQuestion(question("A", "B", 10)); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if err := coord.StartQuestion(question("A", "B", 10)); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state while a round is active, got %v", err)
	}
}

func TestManualEndStopsTicksAndSubmissions(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	teacherCh, cancelTeacher := coord.Gateway().SubscribeTeacher()
	defer cancelTeacher()

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.StartQuestion(question("A", "B", 15)); err != nil {
		t.Fatalf("start question: %v", err)
	}

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	if tick := waitForEvent(t, teacherCh, app.EventTimerUpdate).Payload.(int); tick != 14 {
		t.Fatalf("expected tick 14, got %d", tick)
	}

	coord.EndQuestion(domain.EndReasonTeacherEnded)
	waitForEvent(t, teacherCh, app.EventQuestionEnded)

	if err := coord.Submit(id, "A"); !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected rejection after manual end, got %v", err)
	}
	assertNoEvent(t, teacherCh, app.EventTimerUpdate)
}

func TestEndQuestionIdempotent(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	teacherCh, cancelTeacher := coord.Gateway().SubscribeTeacher()
	defer cancelTeacher()

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.StartQuestion(question("A", "B", 10)); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if err := coord.Submit(id, "A"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	coord.EndQuestion(domain.EndReasonTeacherEnded)
	coord.EndQuestion(domain.EndReasonTimeout)

	waitForEvent(t, teacherCh, app.EventQuestionEnded)
	assertNoEvent(t, teacherCh, app.EventQuestionEnded)

	lb := coord.Leaderboard()
	if lb[0].Score != 1 {
		t.Fatalf("score must move exactly once per round, got %+v", lb[0])
	}
}

func TestNextQuestionStartsAfterEnd(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.StartQuestion(question("A", "B", 10)); err != nil {
		t.Fatalf("start question: %v", err)
	}
	coord.EndQuestion(domain.EndReasonTeacherEnded)

	if err := coord.StartQuestion(question("C", "D", 10)); err != nil {
		t.Fatalf("second round should start cleanly: %v", err)
	}
	if err := coord.Submit(id, "C"); err != nil {
		t.Fatalf("fresh round must accept a fresh answer: %v", err)
	}
}

func TestRetainedScoreSurvivesRejoin(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{RetainScores: true})

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.StartQuestion(question("A", "B", 5)); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if err := coord.Submit(id, "A"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	coord.EndQuestion(domain.EndReasonTeacherEnded)
	coord.Leave(ctx, id)

	if _, lb, err := coord.Join(ctx, "Alice"); err != nil {
		t.Fatalf("rejoin: %v", err)
	} else if len(lb) != 1 || lb[0].Score != 1 {
		t.Fatalf("expected retained score 1 on rejoin, got %+v", lb)
	}
}

func TestDisconnectedAnswerStaysInTally(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	teacherCh, cancelTeacher := coord.Gateway().SubscribeTeacher()
	defer cancelTeacher()

	aliceID, _, _ := coord.Join(ctx, "Alice")
	bobID, _, _ := coord.Join(ctx, "Bob")
	if err := coord.StartQuestion(question("A", "B", 5)); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if err := coord.Submit(aliceID, "A"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	coord.Leave(ctx, aliceID)
	_ = bobID

	coord.EndQuestion(domain.EndReasonTeacherEnded)
	result := waitForEvent(t, teacherCh, app.EventQuestionEnded).Payload.(domain.RoundResult)
	if result.Votes["A"] != 1 {
		t.Fatalf("a leaver's recorded answer must stay counted, tally %+v", result.Votes)
	}
}

func TestStartFromBank(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{})

	studentID, _, _ := coord.Join(ctx, "Alice")
	studentCh, cancelStudent := coord.Gateway().SubscribeStudent(studentID)
	defer cancelStudent()

	if err := coord.StartFromBank(ctx, "warmup", "missing", 0); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question-not-found, got %v", err)
	}
	if err := coord.StartFromBank(ctx, "missing", "q1", 0); !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected set-not-found, got %v", err)
	}

	if err := coord.StartFromBank(ctx, "warmup", "q1", 0); err != nil {
		t.Fatalf("start from bank: %v", err)
	}
	nq := waitForEvent(t, studentCh, app.EventNewQuestion).Payload.(app.NewQuestionPayload)
	if nq.Question.Text != "What is 2 + 2?" || nq.Time != 15 {
		t.Fatalf("unexpected bank question payload: %+v", nq)
	}
}

func TestGraceWindowAcceptsLateAnswers(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	coord := newTestCoordinator(fc, app.Options{AnswerGrace: 2 * time.Second})

	teacherCh, cancelTeacher := coord.Gateway().SubscribeTeacher()
	defer cancelTeacher()

	id, _, _ := coord.Join(ctx, "Alice")
	if err := coord.StartQuestion(question("A", "B", 1)); err != nil {
		t.Fatalf("start question: %v", err)
	}

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	if tick := waitForEvent(t, teacherCh, app.EventTimerUpdate).Payload.(int); tick != 0 {
		t.Fatalf("expected final tick 0, got %d", tick)
	}

	// The countdown has hit zero but the grace window keeps acceptance open;
	// nothing can end the round until the clock moves past the window.
	if err := coord.Submit(id, "A"); err != nil {
		t.Fatalf("in-grace submit should be accepted: %v", err)
	}

	result := advanceUntil(t, fc, teacherCh, app.EventQuestionEnded).Payload.(domain.RoundResult)
	if result.Votes["A"] != 1 {
		t.Fatalf("grace answer missing from final tally: %+v", result.Votes)
	}
}

// advanceUntil nudges the fake clock forward until the wanted event arrives.
// Small steps let it interleave with timer registration happening on another
// goroutine.
func advanceUntil(t *testing.T, fc *clockwork.FakeClock, ch <-chan app.Event, typ app.EventType) app.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		default:
			fc.Advance(100 * time.Millisecond)
			runtime.Gosched()
		}
	}
}

func question(correct, other string, durationSeconds int) domain.Question {
	return domain.Question{
		Text:           "pick one",
		Options:        []string{correct, other},
		CorrectOption:  correct,
		DurationSecond: durationSeconds,
	}
}

func newTestCoordinator(clock clockwork.Clock, opts app.Options) *app.Coordinator {
	bank := memory.NewQuestionBank(memory.NewStaticSetLoader(map[string]domain.QuestionSet{
		"warmup": {
			ID:    "warmup",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:             "q1",
					Text:           "What is 2 + 2?",
					Options:        []string{"3", "4", "5"},
					CorrectOption:  "4",
					DurationSecond: 15,
				},
			},
		},
	}), 5*time.Minute)
	return app.NewCoordinatorWithClock(app.NewGateway(), bank, memory.NewScoreStore(), opts, clock)
}

// waitForEvent reads events until one of the wanted type arrives, skipping
// interleaved broadcasts such as leaderboard refreshes.
func waitForEvent(t *testing.T, ch <-chan app.Event, typ app.EventType) app.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// assertNoEvent drains briefly and fails if an event of the given type shows up.
func assertNoEvent(t *testing.T, ch <-chan app.Event, typ app.EventType) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				t.Fatalf("unexpected %s event", typ)
			}
		case <-deadline:
			return
		}
	}
}
