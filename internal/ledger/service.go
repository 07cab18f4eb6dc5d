package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wende-market/wende_market/internal/engine"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

const (
	kindTransfer     = "transfer"
	kindTransferCall = "transfer_call"
	kindRefund       = "refund"
)

// Service exposes the payment ledger operations: registration gated by
// storage credit, plain transfers, and transfer-and-notify.
type Service struct {
	id      string
	ownerID string
	supply  int64

	store   Store
	credits *storagecredit.Service
	logger  *slog.Logger

	mu        sync.RWMutex
	receivers map[string]TransferReceiver
}

// NewService builds the ledger, registers the owner account and mints the
// total supply to it. Minting happens only when the owner entry is created:
// a restart over a durable store finds the entry in place and must not issue
// supply again, or conservation breaks.
func NewService(ctx context.Context, id string, store Store, credits *storagecredit.Service, ownerID string, totalSupply int64, logger *slog.Logger) (*Service, error) {
	s := &Service{
		id:        id,
		ownerID:   ownerID,
		supply:    totalSupply,
		store:     store,
		credits:   credits,
		logger:    logger,
		receivers: make(map[string]TransferReceiver),
	}
	switch err := store.Create(ctx, ownerID); {
	case err == nil:
		if err := store.Mint(ctx, ownerID, totalSupply); err != nil {
			return nil, err
		}
		logger.Info("supply minted", "owner_id", ownerID, "total_supply", totalSupply)
	case errors.Is(err, ErrAlreadyRegistered):
		// Supply was issued on a previous boot.
	default:
		return nil, err
	}
	return s, nil
}

// ID returns the ledger's component identity, which doubles as the payment
// token id listings reference.
func (s *Service) ID() string {
	return s.id
}

// TotalSupply returns the fixed issued supply.
func (s *Service) TotalSupply() int64 {
	return s.supply
}

// RegisterReceiver wires the notify entry point for an account so that
// TransferCall can dispatch to it. Receivers are installed once at startup.
func (s *Service) RegisterReceiver(accountID string, r TransferReceiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivers[accountID] = r
}

func (s *Service) receiver(accountID string) (TransferReceiver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receivers[accountID]
	return r, ok
}

// StorageMinimumBalance returns the deposit required to register an account.
func (s *Service) StorageMinimumBalance() int64 {
	return s.credits.MinimumBalance(storagecredit.KindLedgerAccount)
}

// Register creates a zero-balance entry for the account. The attached value
// must cover the entry's storage cost; the whole of it is credited to the
// account's storage allowance.
func (s *Service) Register(ctx context.Context, accountID string, attached int64) error {
	if err := engine.Consume(ctx); err != nil {
		return err
	}
	if exists, err := s.store.Exists(ctx, accountID); err != nil {
		return err
	} else if exists {
		return ErrAlreadyRegistered
	}
	if attached < s.StorageMinimumBalance() {
		return storagecredit.ErrInsufficientDeposit
	}
	if err := s.credits.Deposit(ctx, accountID, attached); err != nil {
		return err
	}
	if err := s.credits.ReserveFor(ctx, accountID, storagecredit.KindLedgerAccount); err != nil {
		return err
	}
	if err := s.store.Create(ctx, accountID); err != nil {
		if relErr := s.credits.ReleaseFor(ctx, accountID, storagecredit.KindLedgerAccount); relErr != nil {
			s.logger.Error("release after failed register", "account_id", accountID, "error", relErr)
		}
		return err
	}
	s.logger.Info("account registered", "account_id", accountID)
	return nil
}

// BalanceOf returns the account's balance; unregistered accounts report zero.
func (s *Service) BalanceOf(ctx context.Context, accountID string) (int64, error) {
	return s.store.Balance(ctx, accountID)
}

// Transfer moves value between two registered accounts. The attached marker
// value confirms the caller intended a state-changing call.
func (s *Service) Transfer(ctx context.Context, senderID, receiverID string, amount, attached int64) error {
	if err := engine.Consume(ctx); err != nil {
		return err
	}
	if attached < 1 {
		return ErrMarkerValueRequired
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := s.requireRegistered(ctx, senderID, receiverID); err != nil {
		return err
	}
	return s.store.Move(ctx, senderID, receiverID, amount, kindTransfer)
}

// TransferCall moves value to the receiver and then invokes its notify entry
// point. The initial debit/credit commits before the notify runs; whatever the
// receiver reports as unused (the whole amount when the notify fails) is moved
// back by a compensating transfer. Returns the refunded unused amount.
func (s *Service) TransferCall(ctx context.Context, senderID, receiverID string, amount int64, msg TransferMessage, attached int64) (int64, error) {
	if err := engine.Consume(ctx); err != nil {
		return 0, err
	}
	if attached < 1 {
		return 0, ErrMarkerValueRequired
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := s.requireRegistered(ctx, senderID, receiverID); err != nil {
		return 0, err
	}
	if err := s.store.Move(ctx, senderID, receiverID, amount, kindTransferCall); err != nil {
		return 0, err
	}

	unused := amount
	if r, ok := s.receiver(receiverID); ok {
		reported, err := r.OnTransfer(ctx, senderID, amount, msg)
		switch {
		case err != nil:
			// A failed notify, fatal abort included, counts the entire
			// amount as unused.
			s.logger.Warn("notify failed, refunding in full",
				"sender_id", senderID, "receiver_id", receiverID, "amount", amount, "error", err)
		case reported < 0, reported > amount:
			// Out-of-range reports are contract violations; neither side
			// gets to profit from one, so the payment comes back whole.
			s.logger.Warn("receiver reported unused out of range, refunding in full",
				"receiver_id", receiverID, "reported", reported, "amount", amount)
		default:
			unused = reported
		}
	} else {
		s.logger.Warn("receiver has no notify entry point, refunding in full",
			"receiver_id", receiverID)
	}

	if unused > 0 {
		if err := s.store.Move(ctx, receiverID, senderID, unused, kindRefund); err != nil {
			s.logger.Error("refund transfer failed",
				"sender_id", senderID, "receiver_id", receiverID, "unused", unused, "error", err)
			return 0, err
		}
	}
	return unused, nil
}

// StorageCredit reports the account's storage allowance on this ledger.
func (s *Service) StorageCredit(ctx context.Context, accountID string) (storagecredit.Credit, error) {
	return s.credits.CreditOf(ctx, accountID)
}

func (s *Service) requireRegistered(ctx context.Context, senderID, receiverID string) error {
	if exists, err := s.store.Exists(ctx, senderID); err != nil {
		return err
	} else if !exists {
		return ErrSenderNotRegistered
	}
	if exists, err := s.store.Exists(ctx, receiverID); err != nil {
		return err
	} else if !exists {
		return ErrReceiverNotRegistered
	}
	return nil
}
