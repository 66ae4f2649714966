package memory

import (
	"context"
	"testing"
)

func TestScoreStoreRoundTrip(t *testing.T) {
	store := NewScoreStore()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "Alice"); err != nil || ok {
		t.Fatalf("expected no score yet, got ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, "Alice", 3); err != nil {
		t.Fatalf("save: %v", err)
	}
	score, ok, err := store.Load(ctx, "Alice")
	if err != nil || !ok || score != 3 {
		t.Fatalf("expected retained score 3, got score=%d ok=%v err=%v", score, ok, err)
	}
}
