package market

import (
	"context"
	"sync"
)

type inMemoryRepository struct {
	mu       sync.Mutex
	listings map[ListingKey]Listing
	tokens   map[string]struct{}
}

// NewMemoryRepository constructs an in-memory listing repository, used when no
// database is configured and throughout the unit tests.
func NewMemoryRepository() Repository {
	return &inMemoryRepository{
		listings: make(map[ListingKey]Listing),
		tokens:   make(map[string]struct{}),
	}
}

func (r *inMemoryRepository) PutListing(_ context.Context, listing Listing) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.listings[listing.Key()]
	r.listings[listing.Key()] = listing
	return replaced, nil
}

func (r *inMemoryRepository) GetListing(_ context.Context, key ListingKey) (Listing, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[key]
	return listing, ok, nil
}

func (r *inMemoryRepository) DeleteListing(_ context.Context, key ListingKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listings, key)
	return nil
}

func (r *inMemoryRepository) AddPaymentToken(_ context.Context, paymentTokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[paymentTokenID] = struct{}{}
	return nil
}

func (r *inMemoryRepository) SupportsPaymentToken(_ context.Context, paymentTokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[paymentTokenID]
	return ok, nil
}
