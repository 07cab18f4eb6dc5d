package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wende-market/wende_market/internal/engine"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// Service exposes the asset registry operations: mint, approve with sale
// terms, owner-or-approved transfer, and token lookup.
type Service struct {
	id      string
	repo    Repository
	credits *storagecredit.Service
	logger  *slog.Logger

	mu        sync.RWMutex
	receivers map[string]ApprovalReceiver
}

// NewService builds the registry service. id is the registry's component
// identity, which listings reference as the asset contract id.
func NewService(id string, repo Repository, credits *storagecredit.Service, logger *slog.Logger) *Service {
	return &Service{
		id:        id,
		repo:      repo,
		credits:   credits,
		logger:    logger,
		receivers: make(map[string]ApprovalReceiver),
	}
}

// ID returns the registry's component identity (the asset contract id).
func (s *Service) ID() string {
	return s.id
}

// RegisterReceiver wires the approval notify entry point for an account.
// Receivers are installed once at startup.
func (s *Service) RegisterReceiver(accountID string, r ApprovalReceiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivers[accountID] = r
}

func (s *Service) receiver(accountID string) (ApprovalReceiver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receivers[accountID]
	return r, ok
}

// MintDeposit returns the attached value required to mint a token.
func (s *Service) MintDeposit() int64 {
	return s.credits.MinimumBalance(storagecredit.KindAssetToken)
}

// ApproveDeposit returns the attached value required to store an approval.
func (s *Service) ApproveDeposit() int64 {
	return s.credits.MinimumBalance(storagecredit.KindApproval)
}

// Mint creates a token owned by the caller. The attached value must cover the
// token record's storage cost.
func (s *Service) Mint(ctx context.Context, callerID, tokenID string, metadata TokenMetadata, attached int64) (Token, error) {
	if err := engine.Consume(ctx); err != nil {
		return Token{}, err
	}
	if attached < s.MintDeposit() {
		return Token{}, storagecredit.ErrInsufficientDeposit
	}
	if err := s.credits.Deposit(ctx, callerID, attached); err != nil {
		return Token{}, err
	}
	if err := s.credits.ReserveFor(ctx, callerID, storagecredit.KindAssetToken); err != nil {
		return Token{}, err
	}

	token := Token{ID: tokenID, OwnerID: callerID, Metadata: metadata}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		if relErr := s.credits.ReleaseFor(ctx, callerID, storagecredit.KindAssetToken); relErr != nil {
			s.logger.Error("release after failed mint", "token_id", tokenID, "error", relErr)
		}
		return Token{}, err
	}
	s.logger.Info("token minted", "token_id", tokenID, "owner_id", callerID)
	return token, nil
}

// Token fetches a token by id.
func (s *Service) Token(ctx context.Context, tokenID string) (Token, error) {
	return s.repo.Token(ctx, tokenID)
}

// Transfer moves ownership to receiverID. The caller must be the owner or
// hold an approval on the token. Every approval on the token is cleared:
// an approval is valid only for the owner that granted it.
func (s *Service) Transfer(ctx context.Context, callerID, receiverID, tokenID string) error {
	if err := engine.Consume(ctx); err != nil {
		return err
	}
	token, err := s.repo.Token(ctx, tokenID)
	if err != nil {
		return err
	}
	if callerID != token.OwnerID {
		if _, approved, err := s.repo.ApprovalFor(ctx, tokenID, callerID); err != nil {
			return err
		} else if !approved {
			return ErrNotOwnerOrApproved
		}
	}

	if err := s.repo.SetOwner(ctx, tokenID, receiverID); err != nil {
		return err
	}
	removed, err := s.repo.ClearApprovals(ctx, tokenID)
	if err != nil {
		return err
	}
	// The storage charge for each approval goes back to the owner that paid it.
	for range removed {
		if err := s.credits.ReleaseFor(ctx, token.OwnerID, storagecredit.KindApproval); err != nil {
			s.logger.Error("release approval credit", "token_id", tokenID, "owner_id", token.OwnerID, "error", err)
		}
	}
	s.logger.Info("token transferred",
		"token_id", tokenID, "previous_owner", token.OwnerID, "new_owner", receiverID, "caller_id", callerID)
	return nil
}

// ApproveResult reports the outcome of an approval, including whether the
// downstream listing notify succeeded. A false ListingCreated with a nil error
// is the "approved but unlisted" state: the approval stands and the owner must
// retry listing explicitly.
type ApproveResult struct {
	ApprovalID     uint64
	ListingCreated bool
}

// Approve grants accountID the right to transfer the token and, when sale
// terms are present, notifies the approved account so it can create a listing.
// A failed notify does not roll the approval back.
func (s *Service) Approve(ctx context.Context, callerID, tokenID, accountID string, terms *SaleTerms, attached int64) (ApproveResult, error) {
	if err := engine.Consume(ctx); err != nil {
		return ApproveResult{}, err
	}
	token, err := s.repo.Token(ctx, tokenID)
	if err != nil {
		return ApproveResult{}, err
	}
	if callerID != token.OwnerID {
		return ApproveResult{}, ErrNotOwner
	}
	if attached < s.ApproveDeposit() {
		return ApproveResult{}, storagecredit.ErrInsufficientDeposit
	}
	if err := s.credits.Deposit(ctx, callerID, attached); err != nil {
		return ApproveResult{}, err
	}

	// Replacing an approval for the same account reuses its storage charge.
	_, existed, err := s.repo.ApprovalFor(ctx, tokenID, accountID)
	if err != nil {
		return ApproveResult{}, err
	}
	if !existed {
		if err := s.credits.ReserveFor(ctx, callerID, storagecredit.KindApproval); err != nil {
			return ApproveResult{}, err
		}
	}

	releaseReserve := func() {
		if existed {
			return
		}
		if err := s.credits.ReleaseFor(ctx, callerID, storagecredit.KindApproval); err != nil {
			s.logger.Error("release after failed approval", "token_id", tokenID, "error", err)
		}
	}

	approvalID, err := s.repo.NextApprovalID(ctx)
	if err != nil {
		releaseReserve()
		return ApproveResult{}, err
	}
	if _, err := s.repo.PutApproval(ctx, Approval{
		TokenID:    tokenID,
		AccountID:  accountID,
		ApprovalID: approvalID,
		Terms:      terms,
	}); err != nil {
		releaseReserve()
		return ApproveResult{}, err
	}

	result := ApproveResult{ApprovalID: approvalID}
	if terms == nil {
		return result, nil
	}

	// Best effort: a failed listing notify leaves the approval standing.
	r, ok := s.receiver(accountID)
	if !ok {
		s.logger.Warn("approved account has no approval entry point", "account_id", accountID)
		return result, nil
	}
	notice := ApprovalNotice{
		AssetContractID: s.id,
		TokenID:         tokenID,
		ApprovalID:      approvalID,
		OwnerID:         callerID,
		Terms:           *terms,
	}
	if err := r.OnApprove(ctx, notice); err != nil {
		s.logger.Warn("listing notify failed, approval stands",
			"token_id", tokenID, "account_id", accountID, "error", err)
		return result, nil
	}
	result.ListingCreated = true
	return result, nil
}
