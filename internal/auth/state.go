package auth

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
)

const (
	stateLength = 32
	stateTTL    = 10 * time.Minute
	maxStates   = 10000
)

// generateState generates a cryptographically secure random state string.
func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// stateStore remembers issued OAuth states until they are consumed or expire.
type stateStore struct {
	states *cache.LRU[struct{}]
}

func newStateStore(logger *slog.Logger) *stateStore {
	return &stateStore{
		states: cache.NewLRU[struct{}](cache.LRUConfig{
			MaxEntries: maxStates,
			DefaultTTL: stateTTL,
			Logger:     logger,
		}),
	}
}

func (s *stateStore) issue() (string, error) {
	state, err := generateState()
	if err != nil {
		return "", err
	}
	s.states.Set(state, struct{}{})
	return state, nil
}

// consume reports whether state was issued and not yet used.
func (s *stateStore) consume(state string) bool {
	if _, ok := s.states.Get(state); !ok {
		return false
	}
	return s.states.Delete(state)
}
