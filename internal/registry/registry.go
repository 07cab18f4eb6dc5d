// Package registry implements the asset registry: unique token ownership plus
// the sale approvals the market coordinator settles against. Approvals carry
// typed sale terms; the opaque payload of the wire protocol is decoded at the
// HTTP boundary and never travels between components as a string.
package registry

import (
	"context"
	"errors"
)

var (
	// ErrTokenNotFound occurs when the token id has never been minted.
	ErrTokenNotFound = errors.New("token not found")

	// ErrDuplicateToken occurs when minting an already existing token id.
	ErrDuplicateToken = errors.New("duplicate token id")

	// ErrNotOwner rejects approval attempts by anyone but the token owner.
	ErrNotOwner = errors.New("caller is not the token owner")

	// ErrNotOwnerOrApproved rejects transfers by callers who neither own the
	// token nor hold an approval for it.
	ErrNotOwnerOrApproved = errors.New("caller is not owner or approved")
)

// TokenMetadata is the immutable payload attached to a token at mint time.
type TokenMetadata struct {
	Media       string `json:"media,omitempty"`
	Description string `json:"description,omitempty"`
}

// Token is a unique asset with exactly one live owner.
type Token struct {
	ID       string
	OwnerID  string
	Metadata TokenMetadata
}

// SaleTerms are the market-facing conditions an owner attaches to an approval.
type SaleTerms struct {
	BeneficiaryID  string `json:"beneficiary"`
	PaymentTokenID string `json:"ft_token_id"`
	Price          int64  `json:"price"`
}

// Approval grants one account the right to transfer a token on the owner's
// behalf. It is valid only for the owner that granted it: any ownership change
// clears it.
type Approval struct {
	TokenID    string
	AccountID  string
	ApprovalID uint64
	Terms      *SaleTerms
}

// ApprovalNotice is the typed message sent to the approved account when an
// approval carries sale terms, so it can create a listing.
type ApprovalNotice struct {
	AssetContractID string
	TokenID         string
	ApprovalID      uint64
	OwnerID         string
	Terms           SaleTerms
}

// ApprovalReceiver is the notify entry point of an account that wants to act
// on approvals granted to it (the market coordinator).
type ApprovalReceiver interface {
	OnApprove(ctx context.Context, notice ApprovalNotice) error
}

// Repository persists tokens and approvals.
type Repository interface {
	// CreateToken stores a new token, failing with ErrDuplicateToken.
	CreateToken(ctx context.Context, token Token) error
	// Token fetches a token by id, failing with ErrTokenNotFound.
	Token(ctx context.Context, tokenID string) (Token, error)
	// SetOwner changes the token's owner.
	SetOwner(ctx context.Context, tokenID, ownerID string) error
	// PutApproval stores an approval, replacing any prior approval for the
	// same token and account. It reports whether a replacement happened.
	PutApproval(ctx context.Context, approval Approval) (replaced bool, err error)
	// ApprovalFor fetches the approval granted on the token to the account.
	ApprovalFor(ctx context.Context, tokenID, accountID string) (Approval, bool, error)
	// ClearApprovals removes and returns every approval on the token.
	ClearApprovals(ctx context.Context, tokenID string) ([]Approval, error)
	// NextApprovalID issues a registry-wide monotonically increasing id.
	NextApprovalID(ctx context.Context) (uint64, error)
}
