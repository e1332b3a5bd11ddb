package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/eures-crawler/internal/crawler"
)

var errBatchClosed = errors.New("batch already committed or rolled back")

// ListingStore provides an in-memory listing repository for development/testing.
type ListingStore struct {
	mu       sync.RWMutex
	listings map[string]crawler.JobListing
	commits  int
}

// NewListingStore constructs a ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{
		listings: make(map[string]crawler.JobListing),
	}
}

// Begin opens a batch whose upserts become visible on Commit.
func (s *ListingStore) Begin(_ context.Context) (crawler.ListingBatch, error) {
	return &listingBatch{store: s, staged: make(map[string]crawler.JobListing)}, nil
}

// Get returns the stored listing by id.
func (s *ListingStore) Get(id string) (crawler.JobListing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, ok := s.listings[id]
	return listing, ok
}

// Len returns the number of stored listings.
func (s *ListingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// Commits returns how many batches were committed.
func (s *ListingStore) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

type listingBatch struct {
	store  *ListingStore
	order  []string
	staged map[string]crawler.JobListing
	closed bool
}

func (b *listingBatch) Upsert(_ context.Context, listing crawler.JobListing) error {
	if b.closed {
		return errBatchClosed
	}
	if listing.ID == "" {
		return errors.New("listing id is required")
	}
	if _, seen := b.staged[listing.ID]; !seen {
		b.order = append(b.order, listing.ID)
	}
	b.staged[listing.ID] = listing
	return nil
}

func (b *listingBatch) Commit(_ context.Context) error {
	if b.closed {
		return errBatchClosed
	}
	b.closed = true
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, id := range b.order {
		b.store.listings[id] = b.staged[id]
	}
	b.store.commits++
	return nil
}

func (b *listingBatch) Rollback(_ context.Context) error {
	b.closed = true
	b.staged = nil
	return nil
}
