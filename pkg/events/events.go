package events

import (
	"context"
	"time"
)

// Event types published on the market exchange.
const (
	TypePurchaseCompleted = "purchase.completed"
	TypePurchaseFailed    = "purchase.failed"
	TypeListingCreated    = "listing.created"
)

// Event is a marketplace lifecycle notification. Events are advisory:
// the ledger in the database is authoritative and publish failures never
// roll back the state change they describe.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	AccountID  string    `json:"accountId,omitempty"`
	ListingID  string    `json:"listingId,omitempty"`
	PurchaseID string    `json:"purchaseId,omitempty"`
	TxID       string    `json:"txId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
