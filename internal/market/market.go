// Package market implements the coordinator that ties the asset registry and
// the payment ledger together: it records sale listings created from registry
// approvals and settles buyer payments against ownership transfers.
package market

import (
	"context"
	"errors"
)

var (
	// ErrListingNotFound occurs when no listing exists for the key.
	ErrListingNotFound = errors.New("listing not found")

	// ErrNotLister rejects listing mutations by anyone but the lister.
	ErrNotLister = errors.New("caller is not the lister")

	// ErrNotOwner rejects admin calls by anyone but the coordinator's owner.
	ErrNotOwner = errors.New("caller is not the market owner")

	// ErrUnsupportedPaymentToken rejects listings priced in a payment token
	// the coordinator does not accept.
	ErrUnsupportedPaymentToken = errors.New("unsupported payment token")

	// ErrInvalidPrice rejects non-positive listing prices.
	ErrInvalidPrice = errors.New("price must be positive")
)

// ListingKey identifies a listing by asset contract and token.
type ListingKey struct {
	AssetContractID string
	TokenID         string
}

// Listing pairs an asset with its sale terms. It exists only between a
// successful approval notify and either settlement or cancellation.
type Listing struct {
	AssetContractID string
	TokenID         string
	ApprovalID      uint64
	ListerID        string
	BeneficiaryID   string
	PaymentTokenID  string
	Price           int64
}

// Key returns the listing's identity.
func (l Listing) Key() ListingKey {
	return ListingKey{AssetContractID: l.AssetContractID, TokenID: l.TokenID}
}

// Repository persists listings and the supported payment token set.
type Repository interface {
	// PutListing stores a listing, replacing any listing under the same key.
	// It reports whether a replacement happened.
	PutListing(ctx context.Context, listing Listing) (replaced bool, err error)
	// GetListing fetches a listing by key.
	GetListing(ctx context.Context, key ListingKey) (Listing, bool, error)
	// DeleteListing removes a listing by key.
	DeleteListing(ctx context.Context, key ListingKey) error
	// AddPaymentToken adds a payment token id to the supported set.
	AddPaymentToken(ctx context.Context, paymentTokenID string) error
	// SupportsPaymentToken reports membership in the supported set.
	SupportsPaymentToken(ctx context.Context, paymentTokenID string) (bool, error)
}

// AssetClient is the coordinator's view of the asset registry: the transfer
// call it issues mid-settlement, acting on its own prior approval.
type AssetClient interface {
	Transfer(ctx context.Context, callerID, receiverID, tokenID string) error
}

// PaymentClient is the coordinator's view of the payment ledger, used for the
// beneficiary payout after a settled sale.
type PaymentClient interface {
	ID() string
	Transfer(ctx context.Context, senderID, receiverID string, amount, attached int64) error
}
