package acme

import (
	"net/http"
	"sync"

	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/gorilla/mux"

	"esp32-testserver/internal/logger"
)

// ChallengeStore implements the HTTP-01 challenge.Provider by keeping key
// authorizations in memory and serving them from the HTTP listener.
type ChallengeStore struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> key authorization
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{tokens: make(map[string]string)}
}

func (s *ChallengeStore) Present(domain, token, keyAuth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token] = keyAuth
	logger.Debugf("Presenting HTTP-01 challenge for %s", domain)
	return nil
}

func (s *ChallengeStore) CleanUp(domain, token, keyAuth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

// KeyAuth returns the key authorization for token, if one is pending.
func (s *ChallengeStore) KeyAuth(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyAuth, ok := s.tokens[token]
	return keyAuth, ok
}

// Register serves pending challenges at /.well-known/acme-challenge/{token}.
func (s *ChallengeStore) Register(r *mux.Router) {
	r.HandleFunc(http01.ChallengePath("{token}"), s.ServeHTTP).Methods(http.MethodGet, http.MethodHead)
}

func (s *ChallengeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	keyAuth, ok := s.KeyAuth(token)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(keyAuth))
}
