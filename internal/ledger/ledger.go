// Package ledger implements the fungible payment ledger: a registered balance
// table with a fixed total supply and the transfer-and-notify primitive the
// market coordinator settles against.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyRegistered occurs when registering an account that has a
	// balance entry already.
	ErrAlreadyRegistered = errors.New("account already registered")

	// ErrSenderNotRegistered occurs when the debited account has no entry.
	ErrSenderNotRegistered = errors.New("sender not registered")

	// ErrReceiverNotRegistered occurs when the credited account has no entry.
	ErrReceiverNotRegistered = errors.New("receiver not registered")

	// ErrInsufficientBalance occurs when the sender cannot cover a transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMarkerValueRequired rejects state-changing transfers that arrive
	// without the minimal attached confirmation value.
	ErrMarkerValueRequired = errors.New("attached marker value required")

	// ErrInvalidAmount rejects non-positive transfer amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// TransferMessage identifies the listing a transfer-and-notify call targets.
// It is the typed form of the payload the buyer attaches to ft_transfer_call.
type TransferMessage struct {
	AssetContractID string `json:"token_contract_id"`
	TokenID         string `json:"token_id"`
}

// TransferReceiver is the notify entry point a receiving component exposes.
// It reports how much of the transferred amount it left unused; the ledger
// refunds that remainder to the sender. Returning an error counts the entire
// amount as unused.
type TransferReceiver interface {
	OnTransfer(ctx context.Context, senderID string, amount int64, msg TransferMessage) (unused int64, err error)
}

// Store persists balance entries. Implementations keep each call atomic with
// respect to their own state; cross-call atomicity is the service's concern.
type Store interface {
	// Create adds a zero-balance entry, failing with ErrAlreadyRegistered.
	Create(ctx context.Context, accountID string) error
	// Exists reports whether the account has a balance entry.
	Exists(ctx context.Context, accountID string) (bool, error)
	// Balance returns the entry's balance, zero for unknown accounts.
	Balance(ctx context.Context, accountID string) (int64, error)
	// Move debits from and credits to atomically. Both entries must exist.
	Move(ctx context.Context, fromID, toID string, amount int64, kind string) error
	// Mint credits newly issued supply to an existing entry.
	Mint(ctx context.Context, accountID string, amount int64) error
	// TotalBalance sums every entry, for conservation checks.
	TotalBalance(ctx context.Context) (int64, error)
}
