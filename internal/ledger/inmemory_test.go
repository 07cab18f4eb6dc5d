package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryStore_MoveMaintainsBalance(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.Create(ctx, "alice"); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if err := s.Create(ctx, "bob"); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	SeedBalance(s, "alice", 10_000)

	if err := s.Move(ctx, "alice", "bob", 1_500, kindTransfer); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	if bal, _ := s.Balance(ctx, "alice"); bal != 8_500 {
		t.Fatalf("expected alice balance 8500, got %d", bal)
	}
	if bal, _ := s.Balance(ctx, "bob"); bal != 1_500 {
		t.Fatalf("expected bob balance 1500, got %d", bal)
	}
	if total, _ := s.TotalBalance(ctx); total != 10_000 {
		t.Fatalf("store not balanced, total=%d", total)
	}
}

func TestInMemoryStore_MoveErrors(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	s.Create(ctx, "alice")
	SeedBalance(s, "alice", 100)

	if err := s.Move(ctx, "ghost", "alice", 10, kindTransfer); !errors.Is(err, ErrSenderNotRegistered) {
		t.Fatalf("expected ErrSenderNotRegistered, got %v", err)
	}
	if err := s.Move(ctx, "alice", "ghost", 10, kindTransfer); !errors.Is(err, ErrReceiverNotRegistered) {
		t.Fatalf("expected ErrReceiverNotRegistered, got %v", err)
	}
	s.Create(ctx, "bob")
	if err := s.Move(ctx, "alice", "bob", 101, kindTransfer); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestInMemoryStore_DuplicateCreate(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := s.Create(ctx, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, "alice"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestInMemoryStore_ConcurrentMoves(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	s.Create(ctx, "hub")
	SeedBalance(s, "hub", 100_000)

	const workers = 10
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		spoke := fmt.Sprintf("spoke-%d", i)
		if err := s.Create(ctx, spoke); err != nil {
			t.Fatalf("create %s: %v", spoke, err)
		}
		wg.Add(1)
		go func(spoke string) {
			defer wg.Done()
			if err := s.Move(ctx, "hub", spoke, amount, kindTransfer); err != nil {
				t.Errorf("move to %s failed: %v", spoke, err)
			}
		}(spoke)
	}
	wg.Wait()

	if total, _ := s.TotalBalance(ctx); total != 100_000 {
		t.Fatalf("store not balanced after concurrency, total=%d", total)
	}
	if bal, _ := s.Balance(ctx, "hub"); bal != 100_000-workers*amount {
		t.Fatalf("unexpected hub balance %d", bal)
	}
}

func TestInMemoryStore_Mint(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if err := s.Mint(ctx, "treasury", 1_000); !errors.Is(err, ErrReceiverNotRegistered) {
		t.Fatalf("expected mint to unregistered account to fail, got %v", err)
	}
	s.Create(ctx, "treasury")
	if err := s.Mint(ctx, "treasury", 1_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if bal, _ := s.Balance(ctx, "treasury"); bal != 1_000 {
		t.Fatalf("expected balance 1000, got %d", bal)
	}
}
