package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wende-market/wende_market/internal/engine"
	"github.com/wende-market/wende_market/internal/ledger"
	"github.com/wende-market/wende_market/internal/notification"
	"github.com/wende-market/wende_market/internal/registry"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// Service is the market coordinator. It owns the listing table and the
// supported payment token set, and orchestrates settlement between the
// payment ledger and the asset registry.
//
// The listing mutex serializes listing state transitions the way the host
// runtime serializes calls into one component; the settle path additionally
// removes the listing before issuing the ownership transfer so that of two
// concurrent settlement notifications only the first finds anything to settle.
type Service struct {
	accountID string
	ownerID   string

	repo     Repository
	credits  *storagecredit.Service
	assets   AssetClient
	payments PaymentClient
	notifier notification.Notifier
	logger   *slog.Logger

	mu sync.Mutex
}

// NewService builds the market coordinator. accountID is the coordinator's
// own ledger account (approvals are granted to it and buyer payments land on
// it); ownerID administers the supported payment token set.
func NewService(accountID, ownerID string, repo Repository, credits *storagecredit.Service, assets AssetClient, payments PaymentClient, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		accountID: accountID,
		ownerID:   ownerID,
		repo:      repo,
		credits:   credits,
		assets:    assets,
		payments:  payments,
		notifier:  notifier,
		logger:    logger,
	}
}

// AccountID returns the coordinator's ledger account id.
func (s *Service) AccountID() string {
	return s.accountID
}

// StorageAmount returns the deposit a lister must hold per listing.
func (s *Service) StorageAmount() int64 {
	return s.credits.MinimumBalance(storagecredit.KindSaleListing)
}

// StorageDeposit credits the account's storage allowance on the coordinator.
func (s *Service) StorageDeposit(ctx context.Context, accountID string, attached int64) error {
	if err := engine.Consume(ctx); err != nil {
		return err
	}
	return s.credits.Deposit(ctx, accountID, attached)
}

// StorageCredit reports the account's storage allowance on the coordinator.
func (s *Service) StorageCredit(ctx context.Context, accountID string) (storagecredit.Credit, error) {
	return s.credits.CreditOf(ctx, accountID)
}

// AddToken admits a payment token id to the supported set. Owner only.
func (s *Service) AddToken(ctx context.Context, callerID, paymentTokenID string) error {
	if err := engine.Consume(ctx); err != nil {
		return err
	}
	if callerID != s.ownerID {
		return ErrNotOwner
	}
	if err := s.repo.AddPaymentToken(ctx, paymentTokenID); err != nil {
		return err
	}
	s.logger.Info("payment token added", "ft_token_id", paymentTokenID)
	return nil
}

// SupportsToken reports whether the coordinator accepts the payment token.
func (s *Service) SupportsToken(ctx context.Context, paymentTokenID string) (bool, error) {
	return s.repo.SupportsPaymentToken(ctx, paymentTokenID)
}

// GetSale returns the listing for the key.
func (s *Service) GetSale(ctx context.Context, assetContractID, tokenID string) (Listing, error) {
	listing, ok, err := s.repo.GetListing(ctx, ListingKey{AssetContractID: assetContractID, TokenID: tokenID})
	if err != nil {
		return Listing{}, err
	}
	if !ok {
		return Listing{}, ErrListingNotFound
	}
	return listing, nil
}

// OnApprove is the registry's approval notify callback: it turns an approval
// with sale terms into a listing. Failing here leaves the asset approved but
// unlisted; the registry does not roll the approval back.
func (s *Service) OnApprove(ctx context.Context, notice registry.ApprovalNotice) error {
	if err := engine.Consume(ctx); err != nil {
		return err
	}
	if notice.Terms.Price <= 0 {
		return ErrInvalidPrice
	}
	supported, err := s.repo.SupportsPaymentToken(ctx, notice.Terms.PaymentTokenID)
	if err != nil {
		return err
	}
	if !supported {
		return ErrUnsupportedPaymentToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ListingKey{AssetContractID: notice.AssetContractID, TokenID: notice.TokenID}
	existing, exists, err := s.repo.GetListing(ctx, key)
	if err != nil {
		return err
	}
	// A new lister pays for the listing row; when the token changed hands
	// since a stale listing was created, the old lister's charge is handed
	// back only once the replacement is stored.
	reserved := !exists || existing.ListerID != notice.OwnerID
	if reserved {
		if err := s.credits.ReserveFor(ctx, notice.OwnerID, storagecredit.KindSaleListing); err != nil {
			return err
		}
	}

	listing := Listing{
		AssetContractID: notice.AssetContractID,
		TokenID:         notice.TokenID,
		ApprovalID:      notice.ApprovalID,
		ListerID:        notice.OwnerID,
		BeneficiaryID:   notice.Terms.BeneficiaryID,
		PaymentTokenID:  notice.Terms.PaymentTokenID,
		Price:           notice.Terms.Price,
	}
	if _, err := s.repo.PutListing(ctx, listing); err != nil {
		if reserved {
			if relErr := s.credits.ReleaseFor(ctx, notice.OwnerID, storagecredit.KindSaleListing); relErr != nil {
				s.logger.Error("release after failed listing", "lister_id", notice.OwnerID, "error", relErr)
			}
		}
		return err
	}
	if exists && existing.ListerID != notice.OwnerID {
		if err := s.credits.ReleaseFor(ctx, existing.ListerID, storagecredit.KindSaleListing); err != nil {
			s.logger.Error("release stale lister credit", "lister_id", existing.ListerID, "error", err)
		}
	}

	s.logger.Info("listing created",
		"token_id", notice.TokenID, "lister_id", notice.OwnerID, "price", notice.Terms.Price)
	s.notify(ctx, notification.KindListingCreated, notice.OwnerID,
		fmt.Sprintf("token %s listed for %d %s", notice.TokenID, notice.Terms.Price, notice.Terms.PaymentTokenID))
	return nil
}

// UpdatePrice changes the listing price. Lister only.
func (s *Service) UpdatePrice(ctx context.Context, callerID, assetContractID, tokenID string, price int64) (Listing, error) {
	if err := engine.Consume(ctx); err != nil {
		return Listing{}, err
	}
	if price <= 0 {
		return Listing{}, ErrInvalidPrice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ListingKey{AssetContractID: assetContractID, TokenID: tokenID}
	listing, ok, err := s.repo.GetListing(ctx, key)
	if err != nil {
		return Listing{}, err
	}
	if !ok {
		return Listing{}, ErrListingNotFound
	}
	if callerID != listing.ListerID {
		return Listing{}, ErrNotLister
	}

	listing.Price = price
	if _, err := s.repo.PutListing(ctx, listing); err != nil {
		return Listing{}, err
	}
	return listing, nil
}

// Cancel removes the listing and hands back its storage charge. Lister only.
func (s *Service) Cancel(ctx context.Context, callerID, assetContractID, tokenID string) error {
	if err := engine.Consume(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ListingKey{AssetContractID: assetContractID, TokenID: tokenID}
	listing, ok, err := s.repo.GetListing(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrListingNotFound
	}
	if callerID != listing.ListerID {
		return ErrNotLister
	}
	if err := s.repo.DeleteListing(ctx, key); err != nil {
		return err
	}
	if err := s.credits.ReleaseFor(ctx, listing.ListerID, storagecredit.KindSaleListing); err != nil {
		s.logger.Error("release cancelled listing credit", "lister_id", listing.ListerID, "error", err)
	}

	s.logger.Info("listing cancelled", "token_id", tokenID, "lister_id", callerID)
	s.notify(ctx, notification.KindListingCancelled, callerID,
		fmt.Sprintf("listing for token %s cancelled", tokenID))
	return nil
}

// OnTransfer is the ledger's notify entry point: a buyer paid amount against
// the listing named in msg. The returned value is how much of the payment
// went unused and must be refunded.
//
// The listing is removed before the ownership transfer is issued. If the
// transfer then fails for reasons unrelated to a settlement race, the listing
// is restored with unchanged terms and the buyer is refunded in full.
func (s *Service) OnTransfer(ctx context.Context, senderID string, amount int64, msg ledger.TransferMessage) (int64, error) {
	if err := engine.Consume(ctx); err != nil {
		return 0, err
	}

	key := ListingKey{AssetContractID: msg.AssetContractID, TokenID: msg.TokenID}

	s.mu.Lock()
	listing, ok, err := s.repo.GetListing(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if !ok {
		s.mu.Unlock()
		s.logger.Info("settlement found no listing, refunding in full",
			"token_id", msg.TokenID, "buyer_id", senderID, "amount", amount)
		return amount, nil
	}
	if amount < listing.Price || s.payments.ID() != listing.PaymentTokenID {
		s.mu.Unlock()
		s.logger.Info("settlement terms mismatch, refunding in full",
			"token_id", msg.TokenID, "buyer_id", senderID,
			"amount", amount, "price", listing.Price, "ft_token_id", listing.PaymentTokenID)
		return amount, nil
	}
	// Clear before call: the listing leaves the table before any further hop,
	// so a concurrent settlement for the same key finds nothing to settle.
	if err := s.repo.DeleteListing(ctx, key); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.mu.Unlock()

	if err := s.assets.Transfer(ctx, s.accountID, senderID, listing.TokenID); err != nil {
		// The approval raced away (direct owner transfer) or the hop aborted.
		// Restore the listing with unchanged terms and refund everything.
		s.mu.Lock()
		if _, putErr := s.repo.PutListing(ctx, listing); putErr != nil {
			s.logger.Error("restore listing after failed transfer", "token_id", msg.TokenID, "error", putErr)
		}
		s.mu.Unlock()
		s.logger.Warn("ownership transfer failed, listing restored",
			"token_id", msg.TokenID, "buyer_id", senderID, "error", err)
		return amount, nil
	}

	if err := s.credits.ReleaseFor(ctx, listing.ListerID, storagecredit.KindSaleListing); err != nil {
		s.logger.Error("release settled listing credit", "lister_id", listing.ListerID, "error", err)
	}

	// The buyer's payment already sits on the coordinator's ledger account;
	// forward the price to the beneficiary. A failed payout does not unwind
	// the settlement: the funds stay on the coordinator account for sweep.
	if err := s.payments.Transfer(ctx, s.accountID, listing.BeneficiaryID, listing.Price, 1); err != nil {
		s.logger.Error("beneficiary payout failed, funds held on coordinator account",
			"beneficiary_id", listing.BeneficiaryID, "price", listing.Price, "error", err)
	}

	s.logger.Info("sale settled",
		"token_id", listing.TokenID, "buyer_id", senderID,
		"price", listing.Price, "ft_token_id", listing.PaymentTokenID,
		"beneficiary_id", listing.BeneficiaryID)
	s.notify(ctx, notification.KindSettlement, listing.BeneficiaryID,
		fmt.Sprintf("token %s sold to %s for %d %s", listing.TokenID, senderID, listing.Price, listing.PaymentTokenID))

	return amount - listing.Price, nil
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body})
}
