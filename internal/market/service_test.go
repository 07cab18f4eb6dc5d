package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wende-market/wende_market/internal/ledger"
	"github.com/wende-market/wende_market/internal/logging"
	"github.com/wende-market/wende_market/internal/registry"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// stubAssets records ownership transfer calls and can be told to fail.
type stubAssets struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubAssets) Transfer(_ context.Context, callerID, receiverID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, fmt.Sprintf("%s->%s:%s", callerID, receiverID, tokenID))
	return nil
}

func (s *stubAssets) transferred() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// stubPayments records payout transfers issued by the coordinator.
type stubPayments struct {
	id    string
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubPayments) ID() string {
	return s.id
}

func (s *stubPayments) Transfer(_ context.Context, senderID, receiverID string, amount, attached int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, fmt.Sprintf("%s->%s:%d", senderID, receiverID, amount))
	return nil
}

type marketFixture struct {
	svc      *Service
	assets   *stubAssets
	payments *stubPayments
	credits  *storagecredit.Service
}

func newTestMarket(t *testing.T) *marketFixture {
	t.Helper()
	assets := &stubAssets{}
	payments := &stubPayments{id: "stable"}
	credits := storagecredit.NewService(storagecredit.NewInMemory(), 1)
	svc := NewService("market", "market-admin", NewMemoryRepository(), credits, assets, payments, nil, logging.Discard())
	if err := svc.AddToken(context.Background(), "market-admin", "stable"); err != nil {
		t.Fatalf("add token: %v", err)
	}
	return &marketFixture{svc: svc, assets: assets, payments: payments, credits: credits}
}

func notice(tokenID, ownerID string, price int64) registry.ApprovalNotice {
	return registry.ApprovalNotice{
		AssetContractID: "nft",
		TokenID:         tokenID,
		ApprovalID:      1,
		OwnerID:         ownerID,
		Terms: registry.SaleTerms{
			BeneficiaryID:  ownerID,
			PaymentTokenID: "stable",
			Price:          price,
		},
	}
}

func (f *marketFixture) list(t *testing.T, tokenID, ownerID string, price int64) {
	t.Helper()
	ctx := context.Background()
	if err := f.svc.StorageDeposit(ctx, ownerID, f.svc.StorageAmount()); err != nil {
		t.Fatalf("storage deposit for %s: %v", ownerID, err)
	}
	if err := f.svc.OnApprove(ctx, notice(tokenID, ownerID, price)); err != nil {
		t.Fatalf("list %s: %v", tokenID, err)
	}
}

func TestAddTokenOwnerOnly(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()

	if err := f.svc.AddToken(ctx, "mallory", "other"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	supported, err := f.svc.SupportsToken(ctx, "other")
	if err != nil {
		t.Fatalf("supports token: %v", err)
	}
	if supported {
		t.Fatalf("rejected token must not enter the supported set")
	}
}

func TestOnApproveRejectsBadTerms(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()

	n := notice("token1", "bob", 25)
	n.Terms.PaymentTokenID = "junk"
	if err := f.svc.OnApprove(ctx, n); !errors.Is(err, ErrUnsupportedPaymentToken) {
		t.Fatalf("expected ErrUnsupportedPaymentToken, got %v", err)
	}

	if err := f.svc.OnApprove(ctx, notice("token1", "bob", 0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}

	// No storage credit deposited yet.
	if err := f.svc.OnApprove(ctx, notice("token1", "bob", 25)); !errors.Is(err, storagecredit.ErrInsufficientDeposit) {
		t.Fatalf("expected ErrInsufficientDeposit, got %v", err)
	}
}

func TestOnApproveCreatesListing(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)

	listing, err := f.svc.GetSale(ctx, "nft", "token1")
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if listing.Price != 25 || listing.ListerID != "bob" || listing.BeneficiaryID != "bob" {
		t.Fatalf("unexpected listing %+v", listing)
	}
}

func TestRelistMovesStorageCharge(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)

	// token1 changed hands off-market; the new owner lists it afresh.
	f.list(t, "token1", "alice", 40)

	listing, err := f.svc.GetSale(ctx, "nft", "token1")
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if listing.ListerID != "alice" || listing.Price != 40 {
		t.Fatalf("unexpected listing %+v", listing)
	}

	bob, err := f.svc.StorageCredit(ctx, "bob")
	if err != nil {
		t.Fatalf("credit of bob: %v", err)
	}
	if bob.Used != 0 {
		t.Fatalf("expected stale lister charge released, used=%d", bob.Used)
	}
	alice, err := f.svc.StorageCredit(ctx, "alice")
	if err != nil {
		t.Fatalf("credit of alice: %v", err)
	}
	if alice.Used != f.svc.StorageAmount() {
		t.Fatalf("expected new lister charged, used=%d", alice.Used)
	}
}

// failingPutRepository wraps a repository so listing writes can be forced to fail.
type failingPutRepository struct {
	Repository
	putErr error
}

func (r *failingPutRepository) PutListing(ctx context.Context, listing Listing) (bool, error) {
	if r.putErr != nil {
		return false, r.putErr
	}
	return r.Repository.PutListing(ctx, listing)
}

func TestOnApproveReleasesCreditWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection reset")
	repo := &failingPutRepository{Repository: NewMemoryRepository(), putErr: storeErr}
	credits := storagecredit.NewService(storagecredit.NewInMemory(), 1)
	svc := NewService("market", "market-admin", repo, credits, &stubAssets{}, &stubPayments{id: "stable"}, nil, logging.Discard())
	if err := svc.AddToken(ctx, "market-admin", "stable"); err != nil {
		t.Fatalf("add token: %v", err)
	}

	if err := svc.StorageDeposit(ctx, "bob", svc.StorageAmount()); err != nil {
		t.Fatalf("storage deposit: %v", err)
	}
	if err := svc.OnApprove(ctx, notice("token1", "bob", 25)); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}

	// The failed write must not strand the lister's storage charge.
	credit, err := svc.StorageCredit(ctx, "bob")
	if err != nil {
		t.Fatalf("credit of: %v", err)
	}
	if credit.Used != 0 {
		t.Fatalf("expected reservation released after failed write, used=%d", credit.Used)
	}

	// The same deposit lists successfully once the store recovers.
	repo.putErr = nil
	if err := svc.OnApprove(ctx, notice("token1", "bob", 25)); err != nil {
		t.Fatalf("list after recovery: %v", err)
	}
}

func TestUpdatePrice(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)

	if _, err := f.svc.UpdatePrice(ctx, "mallory", "nft", "token1", 1); !errors.Is(err, ErrNotLister) {
		t.Fatalf("expected ErrNotLister, got %v", err)
	}
	if _, err := f.svc.UpdatePrice(ctx, "bob", "nft", "token1", 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := f.svc.UpdatePrice(ctx, "bob", "nft", "missing", 20); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}

	updated, err := f.svc.UpdatePrice(ctx, "bob", "nft", "token1", 20)
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if updated.Price != 20 {
		t.Fatalf("expected price 20, got %d", updated.Price)
	}
}

func TestCancelReleasesCredit(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)

	if err := f.svc.Cancel(ctx, "mallory", "nft", "token1"); !errors.Is(err, ErrNotLister) {
		t.Fatalf("expected ErrNotLister, got %v", err)
	}
	if err := f.svc.Cancel(ctx, "bob", "nft", "token1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.GetSale(ctx, "nft", "token1"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected listing gone, got %v", err)
	}

	credit, err := f.svc.StorageCredit(ctx, "bob")
	if err != nil {
		t.Fatalf("credit of: %v", err)
	}
	if credit.Used != 0 {
		t.Fatalf("expected listing charge released, used=%d", credit.Used)
	}

	if err := f.svc.Cancel(ctx, "bob", "nft", "token1"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound on double cancel, got %v", err)
	}
}

func TestOnTransferNoListingRefundsInFull(t *testing.T) {
	f := newTestMarket(t)

	unused, err := f.svc.OnTransfer(context.Background(), "buyer", 100,
		ledger.TransferMessage{AssetContractID: "nft", TokenID: "missing"})
	if err != nil {
		t.Fatalf("on transfer: %v", err)
	}
	if unused != 100 {
		t.Fatalf("expected full refund, unused=%d", unused)
	}
}

func TestOnTransferUnderpaymentRefundsInFull(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)

	unused, err := f.svc.OnTransfer(ctx, "buyer", 24,
		ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"})
	if err != nil {
		t.Fatalf("on transfer: %v", err)
	}
	if unused != 24 {
		t.Fatalf("expected full refund, unused=%d", unused)
	}

	// The listing survives an underpayment untouched.
	if _, err := f.svc.GetSale(ctx, "nft", "token1"); err != nil {
		t.Fatalf("expected listing intact: %v", err)
	}
	if f.assets.transferred() != 0 {
		t.Fatalf("no ownership transfer may be issued on underpayment")
	}
}

func TestOnTransferSettles(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)

	unused, err := f.svc.OnTransfer(ctx, "buyer", 30,
		ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"})
	if err != nil {
		t.Fatalf("on transfer: %v", err)
	}
	if unused != 5 {
		t.Fatalf("expected overpayment refunded, unused=%d", unused)
	}

	if _, err := f.svc.GetSale(ctx, "nft", "token1"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected listing consumed, got %v", err)
	}
	if got := f.assets.calls; len(got) != 1 || got[0] != "market->buyer:token1" {
		t.Fatalf("unexpected asset transfers %v", got)
	}
	if got := f.payments.calls; len(got) != 1 || got[0] != "market->bob:25" {
		t.Fatalf("unexpected payouts %v", got)
	}

	credit, err := f.svc.StorageCredit(ctx, "bob")
	if err != nil {
		t.Fatalf("credit of: %v", err)
	}
	if credit.Used != 0 {
		t.Fatalf("expected listing charge released after settlement, used=%d", credit.Used)
	}
}

func TestOnTransferRestoresListingWhenTransferFails(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)
	f.assets.err = errors.New("sender not owner or approved")

	unused, err := f.svc.OnTransfer(ctx, "buyer", 25,
		ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"})
	if err != nil {
		t.Fatalf("on transfer: %v", err)
	}
	if unused != 25 {
		t.Fatalf("expected full refund, unused=%d", unused)
	}

	listing, err := f.svc.GetSale(ctx, "nft", "token1")
	if err != nil {
		t.Fatalf("expected listing restored: %v", err)
	}
	if listing.Price != 25 || listing.ListerID != "bob" {
		t.Fatalf("restored listing changed: %+v", listing)
	}
	if len(f.payments.calls) != 0 {
		t.Fatalf("no payout may be issued on a failed settlement")
	}
}

func TestConcurrentSettlementHasOneWinner(t *testing.T) {
	f := newTestMarket(t)
	ctx := context.Background()
	f.list(t, "token1", "bob", 25)

	const buyers = 16
	var settled atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyer := fmt.Sprintf("buyer-%d", i)
			unused, err := f.svc.OnTransfer(ctx, buyer, 25,
				ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"})
			if err != nil {
				t.Errorf("on transfer %s: %v", buyer, err)
				return
			}
			if unused == 0 {
				settled.Add(1)
			} else if unused != 25 {
				t.Errorf("buyer %s: partial refund %d", buyer, unused)
			}
		}(i)
	}
	wg.Wait()

	if settled.Load() != 1 {
		t.Fatalf("expected exactly one settlement, got %d", settled.Load())
	}
	if f.assets.transferred() != 1 {
		t.Fatalf("expected exactly one ownership transfer, got %d", f.assets.transferred())
	}
}
