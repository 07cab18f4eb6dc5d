package storagecredit

import (
	"context"
	"sync"
)

type inMemoryStore struct {
	mu      sync.Mutex
	credits map[string]Credit
}

// NewInMemory creates a concurrency-safe in-memory credit store, used when no
// database is configured and throughout the unit tests.
func NewInMemory() Store {
	return &inMemoryStore{credits: make(map[string]Credit)}
}

func (s *inMemoryStore) Deposit(_ context.Context, accountID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.credits[accountID]
	if c.Deposited > 0 && c.Deposited+amount < c.Deposited {
		return ErrAmountOverflow
	}
	c.AccountID = accountID
	c.Deposited += amount
	s.credits[accountID] = c
	return nil
}

func (s *inMemoryStore) Reserve(_ context.Context, accountID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credits[accountID]
	if !ok || c.Used+amount > c.Deposited {
		return ErrInsufficientDeposit
	}
	c.Used += amount
	s.credits[accountID] = c
	return nil
}

func (s *inMemoryStore) Release(_ context.Context, accountID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credits[accountID]
	if !ok || c.Used < amount {
		return ErrReleaseUnderflow
	}
	c.Used -= amount
	s.credits[accountID] = c
	return nil
}

func (s *inMemoryStore) CreditOf(_ context.Context, accountID string) (Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credits[accountID]
	if !ok {
		return Credit{AccountID: accountID}, nil
	}
	return c, nil
}
