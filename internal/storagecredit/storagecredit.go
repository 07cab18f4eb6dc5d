// Package storagecredit tracks pre-paid storage allowances. Every record a
// component persists on behalf of an account (a balance row, an approval, a
// sale listing) must be covered by credit the account deposited up front, and
// the credit is handed back when the record is removed.
package storagecredit

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientDeposit occurs when a reservation would push usage past
	// the account's deposited credit.
	ErrInsufficientDeposit = errors.New("insufficient storage deposit")

	// ErrReleaseUnderflow indicates a caller tried to release more credit than
	// it had reserved. Reservations and releases must be symmetric, so this is
	// a programming error rather than a recoverable runtime condition.
	ErrReleaseUnderflow = errors.New("storage release exceeds reserved amount")

	// ErrAmountOverflow occurs when a deposit would overflow the credit record.
	ErrAmountOverflow = errors.New("storage credit amount overflow")
)

// EntryKind identifies a class of persisted record with a known serialized size.
type EntryKind int

const (
	// KindLedgerAccount is a fungible balance row.
	KindLedgerAccount EntryKind = iota
	// KindAssetToken is a minted token record with metadata.
	KindAssetToken
	// KindApproval is a sale approval row on the asset registry.
	KindApproval
	// KindSaleListing is a market listing row.
	KindSaleListing
)

// Serialized sizes in bytes per entry kind. These are fixed upper bounds for
// the stored representation, so the charge for a record never depends on who
// creates it.
var entryBytes = map[EntryKind]int64{
	KindLedgerAccount: 128,
	KindAssetToken:    256,
	KindApproval:      176,
	KindSaleListing:   232,
}

func (k EntryKind) String() string {
	switch k {
	case KindLedgerAccount:
		return "ledger_account"
	case KindAssetToken:
		return "asset_token"
	case KindApproval:
		return "approval"
	case KindSaleListing:
		return "sale_listing"
	default:
		return "unknown"
	}
}

// Credit is one account's storage allowance on a single component.
type Credit struct {
	AccountID string
	Deposited int64
	Used      int64
}

// Available returns the credit not yet consumed by reservations.
func (c Credit) Available() int64 {
	return c.Deposited - c.Used
}

// Store persists storage credits. Implementations guarantee that Reserve is an
// atomic check-then-act against the stored record.
type Store interface {
	Deposit(ctx context.Context, accountID string, amount int64) error
	Reserve(ctx context.Context, accountID string, amount int64) error
	Release(ctx context.Context, accountID string, amount int64) error
	CreditOf(ctx context.Context, accountID string) (Credit, error)
}

// Service gates state-creating operations for one hosting component.
type Service struct {
	store     Store
	bytePrice int64
}

// NewService builds a storage accounting service charging bytePrice per byte.
func NewService(store Store, bytePrice int64) *Service {
	return &Service{store: store, bytePrice: bytePrice}
}

// MinimumBalance returns the deposit required to cover one record of the kind.
func (s *Service) MinimumBalance(kind EntryKind) int64 {
	return entryBytes[kind] * s.bytePrice
}

// Deposit increases the account's pre-paid credit. Safe to call repeatedly.
func (s *Service) Deposit(ctx context.Context, accountID string, amount int64) error {
	if amount < 0 {
		return ErrAmountOverflow
	}
	if amount == 0 {
		return nil
	}
	return s.store.Deposit(ctx, accountID, amount)
}

// Reserve consumes credit for a record about to be created. Fails with
// ErrInsufficientDeposit before any other state is touched.
func (s *Service) Reserve(ctx context.Context, accountID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	return s.store.Reserve(ctx, accountID, amount)
}

// ReserveFor reserves exactly the minimum balance for one record of the kind.
func (s *Service) ReserveFor(ctx context.Context, accountID string, kind EntryKind) error {
	return s.Reserve(ctx, accountID, s.MinimumBalance(kind))
}

// Release hands back credit after a record was removed. The caller must
// release exactly what it reserved.
func (s *Service) Release(ctx context.Context, accountID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	return s.store.Release(ctx, accountID, amount)
}

// ReleaseFor releases the minimum balance for one record of the kind.
func (s *Service) ReleaseFor(ctx context.Context, accountID string, kind EntryKind) error {
	return s.Release(ctx, accountID, s.MinimumBalance(kind))
}

// CreditOf returns the account's current credit. Unknown accounts report zero.
func (s *Service) CreditOf(ctx context.Context, accountID string) (Credit, error) {
	return s.store.CreditOf(ctx, accountID)
}
