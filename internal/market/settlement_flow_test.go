package market

import (
	"context"
	"errors"
	"testing"

	"github.com/wende-market/wende_market/internal/engine"
	"github.com/wende-market/wende_market/internal/ledger"
	"github.com/wende-market/wende_market/internal/logging"
	"github.com/wende-market/wende_market/internal/registry"
	"github.com/wende-market/wende_market/internal/storagecredit"
)

// flow wires the three components together on in-memory stores the same way
// the HTTP server does at boot, so the full mint/list/buy path runs for real.
type flow struct {
	ledger   *ledger.Service
	registry *registry.Service
	market   *Service
}

const flowSupply = 1_000_000

func newFlow(t *testing.T) *flow {
	t.Helper()
	ctx := context.Background()
	logger := logging.Discard()

	ftCredits := storagecredit.NewService(storagecredit.NewInMemory(), 1)
	nftCredits := storagecredit.NewService(storagecredit.NewInMemory(), 1)
	marketCredits := storagecredit.NewService(storagecredit.NewInMemory(), 1)

	ledgerSvc, err := ledger.NewService(ctx, "stable", ledger.NewInMemory(), ftCredits, "treasury", flowSupply, logger)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	registrySvc := registry.NewService("nft", registry.NewMemoryRepository(), nftCredits, logger)
	marketSvc := NewService("market", "market-admin", NewMemoryRepository(), marketCredits, registrySvc, ledgerSvc, nil, logger)

	if err := ledgerSvc.Register(ctx, "market", ledgerSvc.StorageMinimumBalance()); err != nil {
		t.Fatalf("register market account: %v", err)
	}
	ledgerSvc.RegisterReceiver("market", marketSvc)
	registrySvc.RegisterReceiver("market", marketSvc)
	if err := marketSvc.AddToken(ctx, "market-admin", "stable"); err != nil {
		t.Fatalf("add payment token: %v", err)
	}

	return &flow{ledger: ledgerSvc, registry: registrySvc, market: marketSvc}
}

func (f *flow) registerAndFund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	if err := f.ledger.Register(ctx, accountID, f.ledger.StorageMinimumBalance()); err != nil {
		t.Fatalf("register %s: %v", accountID, err)
	}
	if amount > 0 {
		if err := f.ledger.Transfer(ctx, "treasury", accountID, amount, 1); err != nil {
			t.Fatalf("fund %s: %v", accountID, err)
		}
	}
}

// listToken runs the seller side: mint the asset, deposit listing storage on
// the market, approve the market with sale terms.
func (f *flow) listToken(t *testing.T, sellerID, tokenID string, price int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.registry.Mint(ctx, sellerID, tokenID, registry.TokenMetadata{Media: "ipfs://art"}, f.registry.MintDeposit()); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.market.StorageDeposit(ctx, sellerID, f.market.StorageAmount()); err != nil {
		t.Fatalf("market storage deposit: %v", err)
	}
	terms := &registry.SaleTerms{BeneficiaryID: sellerID, PaymentTokenID: "stable", Price: price}
	result, err := f.registry.Approve(ctx, sellerID, tokenID, "market", terms, f.registry.ApproveDeposit())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !result.ListingCreated {
		t.Fatalf("expected listing created")
	}
}

func (f *flow) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), accountID)
	if err != nil {
		t.Fatalf("balance of %s: %v", accountID, err)
	}
	return bal
}

func TestSettlementFlow(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	f.registerAndFund(t, "seller", 0)
	f.registerAndFund(t, "buyer", 100)
	f.listToken(t, "seller", "token1", 25)

	// Seller has second thoughts on the price.
	if _, err := f.market.UpdatePrice(ctx, "seller", "nft", "token1", 20); err != nil {
		t.Fatalf("update price: %v", err)
	}
	listing, err := f.market.GetSale(ctx, "nft", "token1")
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if listing.Price != 20 {
		t.Fatalf("expected price 20, got %d", listing.Price)
	}

	msg := ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"}
	unused, err := f.ledger.TransferCall(ctx, "buyer", "market", 20, msg, 1)
	if err != nil {
		t.Fatalf("transfer call: %v", err)
	}
	if unused != 0 {
		t.Fatalf("expected full payment used, unused=%d", unused)
	}

	token, err := f.registry.Token(ctx, "token1")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token.OwnerID != "buyer" {
		t.Fatalf("expected owner buyer, got %s", token.OwnerID)
	}
	if got := f.balance(t, "buyer"); got != 80 {
		t.Fatalf("expected buyer balance 80, got %d", got)
	}
	if got := f.balance(t, "seller"); got != 20 {
		t.Fatalf("expected seller balance 20, got %d", got)
	}
	if got := f.balance(t, "market"); got != 0 {
		t.Fatalf("expected market to hold nothing after payout, got %d", got)
	}
	if _, err := f.market.GetSale(ctx, "nft", "token1"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected listing consumed, got %v", err)
	}

	// The approval was consumed with the sale: the market cannot move the
	// token again.
	if _, err := f.ledger.TransferCall(ctx, "buyer", "market", 20, msg, 1); err != nil {
		t.Fatalf("transfer call: %v", err)
	}
	if got := f.balance(t, "buyer"); got != 80 {
		t.Fatalf("expected repeat payment refunded, balance %d", got)
	}
}

func TestSettlementFlowRefundsOverpayment(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	f.registerAndFund(t, "seller", 0)
	f.registerAndFund(t, "buyer", 100)
	f.listToken(t, "seller", "token1", 25)

	msg := ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"}
	unused, err := f.ledger.TransferCall(ctx, "buyer", "market", 30, msg, 1)
	if err != nil {
		t.Fatalf("transfer call: %v", err)
	}
	if unused != 5 {
		t.Fatalf("expected overpayment refunded, unused=%d", unused)
	}
	if got := f.balance(t, "buyer"); got != 75 {
		t.Fatalf("expected buyer balance 75, got %d", got)
	}
	if got := f.balance(t, "seller"); got != 25 {
		t.Fatalf("expected seller balance 25, got %d", got)
	}
}

func TestSettlementFlowStaleListing(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	f.registerAndFund(t, "seller", 0)
	f.registerAndFund(t, "buyer", 100)
	f.listToken(t, "seller", "token1", 25)

	// The seller transfers the token away directly; the approval granted to
	// the market dies with the ownership change, but the listing is stale.
	if err := f.registry.Transfer(ctx, "seller", "friend", "token1"); err != nil {
		t.Fatalf("direct transfer: %v", err)
	}

	msg := ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"}
	unused, err := f.ledger.TransferCall(ctx, "buyer", "market", 25, msg, 1)
	if err != nil {
		t.Fatalf("transfer call: %v", err)
	}
	if unused != 25 {
		t.Fatalf("expected full refund against stale listing, unused=%d", unused)
	}
	if got := f.balance(t, "buyer"); got != 100 {
		t.Fatalf("expected buyer made whole, balance %d", got)
	}

	// The stale listing is restored, not silently dropped; the seller can
	// still cancel it to recover the storage charge.
	if _, err := f.market.GetSale(ctx, "nft", "token1"); err != nil {
		t.Fatalf("expected stale listing restored: %v", err)
	}
	if err := f.market.Cancel(ctx, "seller", "nft", "token1"); err != nil {
		t.Fatalf("cancel stale listing: %v", err)
	}
}

func TestSettlementFlowBudgetExhaustionRefunds(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	f.registerAndFund(t, "seller", 0)
	f.registerAndFund(t, "buyer", 100)
	f.listToken(t, "seller", "token1", 25)

	// A budget of one covers the transfer-call hop but not the settlement
	// callback, so the notify aborts and the payment must come back whole.
	metered := engine.WithBudget(ctx, 1)
	msg := ledger.TransferMessage{AssetContractID: "nft", TokenID: "token1"}
	unused, err := f.ledger.TransferCall(metered, "buyer", "market", 25, msg, 1)
	if err != nil {
		t.Fatalf("transfer call: %v", err)
	}
	if unused != 25 {
		t.Fatalf("expected aborted settlement to refund in full, unused=%d", unused)
	}
	if got := f.balance(t, "buyer"); got != 100 {
		t.Fatalf("expected buyer balance 100, got %d", got)
	}
	if token, err := f.registry.Token(ctx, "token1"); err != nil || token.OwnerID != "seller" {
		t.Fatalf("expected ownership unchanged, token=%+v err=%v", token, err)
	}
	if _, err := f.market.GetSale(ctx, "nft", "token1"); err != nil {
		t.Fatalf("expected listing intact after aborted settlement: %v", err)
	}
}
