package memory

import (
	"context"
	"sync"
)

// ScoreStore keeps retained scores by display name for the process lifetime.
type ScoreStore struct {
	mu     sync.RWMutex
	scores map[string]int
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{scores: make(map[string]int)}
}

func (s *ScoreStore) Load(_ context.Context, displayName string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[displayName]
	return score, ok, nil
}

func (s *ScoreStore) Save(_ context.Context, displayName string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[displayName] = score
	return nil
}
