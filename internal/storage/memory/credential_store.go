package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

// CredentialStore keeps the session credential in process memory.
type CredentialStore struct {
	mu    sync.RWMutex
	cred  crawler.Credential
	saves int
}

// NewCredentialStore returns a store seeded with cred; pass the zero value for an empty store.
func NewCredentialStore(cred crawler.Credential) *CredentialStore {
	return &CredentialStore{cred: cred}
}

// Load returns the held credential when both halves are present.
func (s *CredentialStore) Load(_ context.Context) (crawler.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.cred.Valid() {
		return crawler.Credential{}, false
	}
	return s.cred, true
}

// Save replaces the held credential.
func (s *CredentialStore) Save(_ context.Context, cred crawler.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.saves++
	return nil
}

// Clear forgets the held credential.
func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = crawler.Credential{}
	return nil
}

// Saves returns how many times Save was called.
func (s *CredentialStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
