package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookmarket/internal/util"
	"bookmarket/pkg/domain"
	"bookmarket/pkg/events"
	"bookmarket/pkg/settlement"
)

// InitiatePurchase creates a pending purchase with the listing's current
// price snapshotted. Later listing price edits never change it.
func (a *App) InitiatePurchase(buyer domain.Account, listingID string) (domain.Purchase, error) {
	if buyer.Role != domain.RoleBuyer {
		return domain.Purchase{}, ErrWrongRole
	}
	listing, ok, err := a.store.GetListing(listingID)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok || listing.Status == domain.ListingDeleted {
		return domain.Purchase{}, ErrListingNotFound
	}
	if !listing.Status.Purchasable() {
		return domain.Purchase{}, ErrListingUnavailable
	}
	now := time.Now().UTC()
	purchase := domain.Purchase{
		ID:        util.NewID(),
		ListingID: listing.ID,
		BuyerID:   buyer.ID,
		Price:     listing.Price,
		Status:    domain.PurchasePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SavePurchase(purchase); err != nil {
		return domain.Purchase{}, fmt.Errorf("save purchase: %w", err)
	}
	return purchase, nil
}

// SubmitSettlement relays a client-signed transaction to the gateway and
// records the returned transaction id on the pending purchase. The server
// holds no signing keys. On gateway failure the purchase stays pending
// with no transaction id, so the client can retry.
func (a *App) SubmitSettlement(ctx context.Context, buyer domain.Account, purchaseID, signedTx string) (domain.Purchase, error) {
	if strings.TrimSpace(signedTx) == "" {
		return domain.Purchase{}, ErrSignedTxRequired
	}
	purchase, err := a.ownedPurchase(buyer, purchaseID)
	if err != nil {
		return domain.Purchase{}, err
	}
	if purchase.Status.Terminal() {
		return domain.Purchase{}, ErrAlreadyFinalized
	}
	if purchase.TxID != "" {
		return domain.Purchase{}, ErrAlreadySubmitted
	}

	txID, err := a.gateway.Submit(ctx, signedTx)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("%w: %w", ErrSettlementSubmission, err)
	}
	recorded, err := a.store.SetPurchaseTx(purchase.ID, txID)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("record transaction: %w", err)
	}
	if !recorded {
		// A concurrent submission won the slot.
		return domain.Purchase{}, ErrAlreadySubmitted
	}
	purchase.TxID = txID
	return purchase, nil
}

// ConfirmPurchase finalizes a pending purchase by independently observing
// the gateway-side outcome; a caller-claimed status is never trusted.
// Gateway success or failure moves the purchase to its terminal state via
// a conditional update, so racing confirms agree on one outcome. A
// still-pending settlement or a verification timeout leaves the purchase
// pending for a later retry. Confirming an already-terminal purchase is
// an idempotent no-op.
func (a *App) ConfirmPurchase(ctx context.Context, buyer domain.Account, purchaseID, txID string) (domain.Purchase, error) {
	purchase, err := a.ownedPurchase(buyer, purchaseID)
	if err != nil {
		return domain.Purchase{}, err
	}
	if purchase.Status.Terminal() {
		return purchase, nil
	}

	if purchase.TxID == "" {
		// Settlement may have been submitted out of band; record the
		// caller-supplied transaction id before verifying it.
		txID = strings.TrimSpace(txID)
		if txID == "" {
			return domain.Purchase{}, ErrSettlementNotFound
		}
		recorded, err := a.store.SetPurchaseTx(purchase.ID, txID)
		if err != nil {
			return domain.Purchase{}, fmt.Errorf("record transaction: %w", err)
		}
		if recorded {
			purchase.TxID = txID
		} else {
			// A concurrent submission recorded its own transaction id, or
			// the purchase was finalized meanwhile. Re-read and verify
			// against what the row actually holds.
			purchase, err = a.ownedPurchase(buyer, purchaseID)
			if err != nil {
				return domain.Purchase{}, err
			}
			if purchase.Status.Terminal() {
				return purchase, nil
			}
			if purchase.TxID == "" {
				return domain.Purchase{}, ErrSettlementNotFound
			}
		}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, a.verifyTimeout)
	defer cancel()
	receipt, err := a.gateway.Verify(verifyCtx, purchase.TxID)
	if err != nil {
		if errors.Is(err, settlement.ErrTxNotFound) {
			return domain.Purchase{}, ErrSettlementNotFound
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Purchase{}, ErrSettlementPending
		}
		return domain.Purchase{}, fmt.Errorf("%w: %w", ErrSettlementUnavailable, err)
	}

	switch receipt.Status {
	case settlement.StatusPending:
		return domain.Purchase{}, ErrSettlementPending
	case settlement.StatusSuccess:
		return a.finalize(ctx, purchase, domain.PurchaseCompleted, "", receipt)
	case settlement.StatusFailed:
		reason := receipt.Reason
		if reason == "" {
			reason = "settlement failed"
		}
		return a.finalize(ctx, purchase, domain.PurchaseFailed, reason, receipt)
	default:
		return domain.Purchase{}, fmt.Errorf("%w: unknown receipt status %q", ErrSettlementUnavailable, receipt.Status)
	}
}

// AccessArtifact resolves the content address for the buyer of a
// completed purchase. Nobody else, not even the listing's author, may
// resolve it.
func (a *App) AccessArtifact(caller domain.Account, purchaseID string) (string, error) {
	purchase, ok, err := a.store.GetPurchase(purchaseID)
	if err != nil {
		return "", fmt.Errorf("fetch purchase: %w", err)
	}
	if !ok {
		return "", ErrPurchaseNotFound
	}
	if purchase.BuyerID != caller.ID {
		return "", ErrNotOwner
	}
	if purchase.Status != domain.PurchaseCompleted {
		return "", ErrNotCompleted
	}
	listing, ok, err := a.store.GetListing(purchase.ListingID)
	if err != nil {
		return "", fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return "", ErrListingNotFound
	}
	return listing.ArtifactAddress, nil
}

// GetPurchase returns a purchase to its buyer.
func (a *App) GetPurchase(caller domain.Account, purchaseID string) (domain.Purchase, error) {
	return a.ownedPurchase(caller, purchaseID)
}

// Purchases returns the buyer's purchases in creation order with the
// total count.
func (a *App) Purchases(buyer domain.Account, offset, limit int) ([]domain.Purchase, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, total, err := a.store.ListPurchasesByBuyer(buyer.ID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchases: %w", err)
	}
	return items, total, nil
}

func (a *App) finalize(ctx context.Context, purchase domain.Purchase, status domain.PurchaseStatus, reason string, receipt settlement.Receipt) (domain.Purchase, error) {
	won, err := a.store.FinalizePurchase(purchase.ID, status, reason, receipt.Raw)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("finalize purchase: %w", err)
	}
	final, ok, err := a.store.GetPurchase(purchase.ID)
	if err != nil || !ok {
		return domain.Purchase{}, fmt.Errorf("fetch purchase after finalize: %w", err)
	}
	if won {
		a.publishOutcome(ctx, final)
	}
	return final, nil
}

func (a *App) publishOutcome(ctx context.Context, purchase domain.Purchase) {
	eventType := events.TypePurchaseCompleted
	if purchase.Status == domain.PurchaseFailed {
		eventType = events.TypePurchaseFailed
	}
	ev := events.Event{
		Type:       eventType,
		AccountID:  purchase.BuyerID,
		ListingID:  purchase.ListingID,
		PurchaseID: purchase.ID,
		TxID:       purchase.TxID,
		Detail:     purchase.FailureReason,
	}
	if err := a.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("event publish failed", "type", eventType, "purchase_id", purchase.ID, "error", err)
	}
}

func (a *App) ownedPurchase(caller domain.Account, purchaseID string) (domain.Purchase, error) {
	purchase, ok, err := a.store.GetPurchase(purchaseID)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("fetch purchase: %w", err)
	}
	if !ok {
		return domain.Purchase{}, ErrPurchaseNotFound
	}
	if purchase.BuyerID != caller.ID {
		return domain.Purchase{}, ErrNotOwner
	}
	return purchase, nil
}
