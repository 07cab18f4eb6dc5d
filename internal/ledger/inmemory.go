package ledger

import (
	"context"
	"sync"
)

type inMemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewInMemory creates a concurrency-safe in-memory balance store, used when no
// database is configured and throughout the unit tests.
func NewInMemory() Store {
	return &inMemoryStore{balances: make(map[string]int64)}
}

func (s *inMemoryStore) Create(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.balances[accountID]; exists {
		return ErrAlreadyRegistered
	}
	s.balances[accountID] = 0
	return nil
}

func (s *inMemoryStore) Exists(_ context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.balances[accountID]
	return exists, nil
}

func (s *inMemoryStore) Balance(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[accountID], nil
}

func (s *inMemoryStore) Move(_ context.Context, fromID, toID string, amount int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromBalance, ok := s.balances[fromID]
	if !ok {
		return ErrSenderNotRegistered
	}
	if _, ok := s.balances[toID]; !ok {
		return ErrReceiverNotRegistered
	}
	if fromBalance < amount {
		return ErrInsufficientBalance
	}

	s.balances[fromID] -= amount
	s.balances[toID] += amount
	return nil
}

func (s *inMemoryStore) Mint(_ context.Context, accountID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[accountID]; !ok {
		return ErrReceiverNotRegistered
	}
	s.balances[accountID] += amount
	return nil
}

func (s *inMemoryStore) TotalBalance(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, b := range s.balances {
		total += b
	}
	return total, nil
}
