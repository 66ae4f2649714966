package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"classpoll-service/internal/domain"
)

func TestQuestionBankCaches(t *testing.T) {
	loader := &countingLoader{
		SetLoader: NewStaticSetLoader(map[string]domain.QuestionSet{
			"warmup": sampleSet(),
		}),
	}
	bank := NewQuestionBank(loader, time.Minute)

	if _, err := bank.GetSet(context.Background(), "warmup"); err != nil {
		t.Fatalf("get set: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := bank.GetSet(context.Background(), "warmup"); err != nil {
		t.Fatalf("get set 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionBankMissingSet(t *testing.T) {
	bank := NewQuestionBank(NewStaticSetLoader(nil), time.Minute)
	if _, err := bank.GetSet(context.Background(), "nope"); !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected set-not-found, got %v", err)
	}
}

type countingLoader struct {
	SetLoader
	calls int
}

func (l *countingLoader) LoadSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	l.calls++
	return l.SetLoader.LoadSet(ctx, setID)
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "warmup",
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:             "q1",
				Text:           "What is 2 + 2?",
				Options:        []string{"3", "4"},
				CorrectOption:  "4",
				DurationSecond: 15,
			},
		},
	}
}
