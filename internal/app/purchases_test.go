package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bookmarket/pkg/domain"
	"bookmarket/pkg/events"
	"bookmarket/pkg/settlement"
	"bookmarket/pkg/store"
)

type purchaseFixture struct {
	env      *testEnv
	author   domain.Account
	buyer    domain.Account
	listing  domain.Listing
	purchase domain.Purchase
}

func newPurchaseFixture(t *testing.T) *purchaseFixture {
	t.Helper()
	env := newTestApp(t)
	author := env.register(t, "frank", "author")
	buyer := env.register(t, "bob", "buyer")
	listing := createListing(t, env, author, "Dune", 999)
	purchase, err := env.app.InitiatePurchase(buyer, listing.ID)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}
	return &purchaseFixture{env: env, author: author, buyer: buyer, listing: listing, purchase: purchase}
}

func (f *purchaseFixture) settle(t *testing.T) string {
	t.Helper()
	purchase, err := f.env.app.SubmitSettlement(context.Background(), f.buyer, f.purchase.ID, "signed-transfer")
	if err != nil {
		t.Fatalf("submit settlement: %v", err)
	}
	return purchase.TxID
}

func TestPurchaseHappyPath(t *testing.T) {
	f := newPurchaseFixture(t)
	if f.purchase.Status != domain.PurchasePending {
		t.Fatalf("status = %q, want pending", f.purchase.Status)
	}
	if f.purchase.Price != 999 {
		t.Fatalf("snapshot price = %d, want 999", f.purchase.Price)
	}

	txID := f.settle(t)
	f.env.gateway.setOutcome(txID, settlement.StatusSuccess, "")

	confirmed, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.PurchaseCompleted {
		t.Fatalf("status = %q, want completed", confirmed.Status)
	}

	address, err := f.env.app.AccessArtifact(f.buyer, f.purchase.ID)
	if err != nil {
		t.Fatalf("access artifact: %v", err)
	}
	if address != f.listing.ArtifactAddress {
		t.Fatalf("artifact address = %q, want %q", address, f.listing.ArtifactAddress)
	}

	// Nobody but the buyer resolves the artifact, not even the author.
	if _, err := f.env.app.AccessArtifact(f.author, f.purchase.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if got := f.env.publisher.outcomes(); len(got) != 1 || got[0] != events.TypePurchaseCompleted {
		t.Fatalf("published events = %v", got)
	}
}

func TestSnapshotPriceSurvivesListingEdit(t *testing.T) {
	f := newPurchaseFixture(t)
	newPrice := int64(1499)
	if _, err := f.env.app.UpdateListing(f.author, f.listing.ID, ListingPatch{Price: &newPrice}); err != nil {
		t.Fatalf("update listing: %v", err)
	}

	txID := f.settle(t)
	f.env.gateway.setOutcome(txID, settlement.StatusSuccess, "")
	confirmed, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Price != 999 {
		t.Fatalf("agreed price = %d, want the 999 snapshot", confirmed.Price)
	}
}

func TestInitiatePurchaseGuards(t *testing.T) {
	env := newTestApp(t)
	author := env.register(t, "frank", "author")
	buyer := env.register(t, "bob", "buyer")
	listing := createListing(t, env, author, "Dune", 999)

	if _, err := env.app.InitiatePurchase(author, listing.ID); !errors.Is(err, ErrWrongRole) {
		t.Fatalf("expected ErrWrongRole, got %v", err)
	}
	if _, err := env.app.InitiatePurchase(buyer, "missing"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}

	if err := env.store.SetListingStatus(listing.ID, domain.ListingSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := env.app.InitiatePurchase(buyer, listing.ID); !errors.Is(err, ErrListingUnavailable) {
		t.Fatalf("expected ErrListingUnavailable, got %v", err)
	}
}

func TestSubmitSettlementFailureKeepsPending(t *testing.T) {
	f := newPurchaseFixture(t)
	f.env.gateway.submitErr = errors.New("gateway unreachable")

	_, err := f.env.app.SubmitSettlement(context.Background(), f.buyer, f.purchase.ID, "signed-transfer")
	if !errors.Is(err, ErrSettlementSubmission) {
		t.Fatalf("expected ErrSettlementSubmission, got %v", err)
	}
	stored, _, _ := f.env.store.GetPurchase(f.purchase.ID)
	if stored.Status != domain.PurchasePending || stored.TxID != "" {
		t.Fatalf("purchase must stay pending without a tx id, got %+v", stored)
	}

	// The client retries once the gateway recovers.
	f.env.gateway.submitErr = nil
	if txID := f.settle(t); txID == "" {
		t.Fatal("retry should record a tx id")
	}
}

func TestSubmitSettlementOnlyOnce(t *testing.T) {
	f := newPurchaseFixture(t)
	f.settle(t)
	_, err := f.env.app.SubmitSettlement(context.Background(), f.buyer, f.purchase.ID, "signed-transfer")
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestConfirmPendingSettlementRetriesLater(t *testing.T) {
	f := newPurchaseFixture(t)
	txID := f.settle(t)

	// Gateway still reports pending: the purchase must stay pending.
	_, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
	if !errors.Is(err, ErrSettlementPending) {
		t.Fatalf("expected ErrSettlementPending, got %v", err)
	}
	stored, _, _ := f.env.store.GetPurchase(f.purchase.ID)
	if stored.Status != domain.PurchasePending {
		t.Fatalf("status = %q, want pending", stored.Status)
	}

	// A late confirmation still completes: money genuinely moved.
	f.env.gateway.setOutcome(txID, settlement.StatusSuccess, "")
	confirmed, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
	if err != nil {
		t.Fatalf("late confirm: %v", err)
	}
	if confirmed.Status != domain.PurchaseCompleted {
		t.Fatalf("status = %q, want completed", confirmed.Status)
	}
}

func TestConfirmFailedSettlementDeniesAccess(t *testing.T) {
	f := newPurchaseFixture(t)
	txID := f.settle(t)
	f.env.gateway.setOutcome(txID, settlement.StatusFailed, "insufficient balance")

	confirmed, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.PurchaseFailed || confirmed.FailureReason != "insufficient balance" {
		t.Fatalf("unexpected purchase: %+v", confirmed)
	}
	if _, err := f.env.app.AccessArtifact(f.buyer, f.purchase.ID); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
	if got := f.env.publisher.outcomes(); len(got) != 1 || got[0] != events.TypePurchaseFailed {
		t.Fatalf("published events = %v", got)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newPurchaseFixture(t)
	txID := f.settle(t)
	f.env.gateway.setOutcome(txID, settlement.StatusSuccess, "")

	first, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	// Even if the gateway later claims failure, a terminal purchase never
	// re-transitions.
	f.env.gateway.setOutcome(txID, settlement.StatusFailed, "late flip")
	second, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if first.Status != domain.PurchaseCompleted || second.Status != domain.PurchaseCompleted {
		t.Fatalf("statuses = %q then %q, want completed twice", first.Status, second.Status)
	}
	if got := f.env.publisher.outcomes(); len(got) != 1 {
		t.Fatalf("terminal outcome must publish exactly once, got %v", got)
	}
}

func TestConcurrentConfirmSingleOutcome(t *testing.T) {
	f := newPurchaseFixture(t)
	txID := f.settle(t)
	f.env.gateway.setOutcome(txID, settlement.StatusSuccess, "")

	var wg sync.WaitGroup
	results := make([]domain.Purchase, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "")
			if err != nil {
				t.Errorf("confirm %d: %v", i, err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()
	for i, p := range results {
		if p.Status != domain.PurchaseCompleted {
			t.Fatalf("confirm %d saw status %q", i, p.Status)
		}
	}
	if got := f.env.publisher.outcomes(); len(got) != 1 {
		t.Fatalf("racing confirms must publish exactly once, got %v", got)
	}
}

func TestConfirmWithClientSuppliedTx(t *testing.T) {
	f := newPurchaseFixture(t)
	// Settlement happened out of band; the gateway knows the tx but the
	// purchase has no tx id yet.
	txID, err := f.env.gateway.Submit(context.Background(), "signed-out-of-band")
	if err != nil {
		t.Fatalf("seed gateway: %v", err)
	}
	f.env.gateway.setOutcome(txID, settlement.StatusSuccess, "")

	confirmed, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, txID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.PurchaseCompleted || confirmed.TxID != txID {
		t.Fatalf("unexpected purchase: %+v", confirmed)
	}
}

func TestConfirmUnknownSettlement(t *testing.T) {
	f := newPurchaseFixture(t)
	if _, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, ""); !errors.Is(err, ErrSettlementNotFound) {
		t.Fatalf("expected ErrSettlementNotFound for missing tx id, got %v", err)
	}
	if _, err := f.env.app.ConfirmPurchase(context.Background(), f.buyer, f.purchase.ID, "0xunknown"); !errors.Is(err, ErrSettlementNotFound) {
		t.Fatalf("expected ErrSettlementNotFound for unknown tx, got %v", err)
	}
}

func TestPurchaseOwnership(t *testing.T) {
	f := newPurchaseFixture(t)
	stranger := f.env.register(t, "eve", "buyer")

	if _, err := f.env.app.GetPurchase(stranger, f.purchase.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.env.app.SubmitSettlement(context.Background(), stranger, f.purchase.ID, "signed"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner on settle, got %v", err)
	}
	if _, err := f.env.app.AccessArtifact(stranger, f.purchase.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner on artifact, got %v", err)
	}
}

func TestPurchasesPagination(t *testing.T) {
	env := newTestApp(t)
	author := env.register(t, "frank", "author")
	buyer := env.register(t, "bob", "buyer")
	other := env.register(t, "eve", "buyer")
	listing := createListing(t, env, author, "Dune", 999)

	for i := 0; i < 3; i++ {
		if _, err := env.app.InitiatePurchase(buyer, listing.ID); err != nil {
			t.Fatalf("initiate %d: %v", i, err)
		}
	}
	if _, err := env.app.InitiatePurchase(other, listing.ID); err != nil {
		t.Fatalf("initiate other: %v", err)
	}

	items, total, err := env.app.Purchases(buyer, 0, 2)
	if err != nil {
		t.Fatalf("purchases: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("page = %d items of %d total", len(items), total)
	}
	for _, p := range items {
		if p.BuyerID != buyer.ID {
			t.Fatalf("foreign purchase in page: %+v", p)
		}
	}
}

// rivalSettleStore lets a concurrent settlement submission win the
// transaction slot just before an out-of-band confirm records its own.
type rivalSettleStore struct {
	*store.MemoryStore
	rivalTx string
	once    sync.Once
}

func (s *rivalSettleStore) SetPurchaseTx(id, txID string) (bool, error) {
	s.once.Do(func() {
		_, _ = s.MemoryStore.SetPurchaseTx(id, s.rivalTx)
	})
	return s.MemoryStore.SetPurchaseTx(id, txID)
}

func TestConfirmLostTxSlotVerifiesRecordedTx(t *testing.T) {
	wrapped := &rivalSettleStore{MemoryStore: store.NewMemoryStore(), rivalTx: "0xrival"}
	env := newTestAppWithStore(t, wrapped)
	author := env.register(t, "frank", "author")
	buyer := env.register(t, "bob", "buyer")
	listing := createListing(t, env, author, "Dune", 999)
	purchase, err := env.app.InitiatePurchase(buyer, listing.ID)
	if err != nil {
		t.Fatalf("initiate purchase: %v", err)
	}
	// Only the rival's transaction exists on the ledger; verifying the
	// caller-supplied id would fail.
	env.gateway.setOutcome("0xrival", settlement.StatusSuccess, "")

	confirmed, err := env.app.ConfirmPurchase(context.Background(), buyer, purchase.ID, "0xmine")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.TxID != "0xrival" {
		t.Fatalf("tx id = %q, want the recorded 0xrival", confirmed.TxID)
	}
	if confirmed.Status != domain.PurchaseCompleted {
		t.Fatalf("status = %q, want completed", confirmed.Status)
	}
}
