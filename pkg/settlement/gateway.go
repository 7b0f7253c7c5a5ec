package settlement

import (
	"context"
	"encoding/json"
	"errors"
)

// Status is the gateway-reported outcome of a transaction.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var (
	// ErrTxNotFound is returned when the ledger does not know the
	// transaction identifier.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrSubmission is returned when the gateway rejects a submission
	// synchronously.
	ErrSubmission = errors.New("settlement submission failed")
)

// Receipt is the gateway's view of a transaction.
type Receipt struct {
	TxID        string          `json:"txId"`
	Status      Status          `json:"status"`
	BlockHeight uint64          `json:"blockHeight,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// Gateway is the external ledger the marketplace settles against. The
// server never holds signing keys: Submit only relays transactions the
// client already signed.
type Gateway interface {
	// Submit broadcasts a client-signed transaction and returns its id.
	Submit(ctx context.Context, signedTx string) (string, error)
	// Verify independently re-queries the ledger for the transaction
	// outcome. A transaction the ledger does not know yields ErrTxNotFound.
	Verify(ctx context.Context, txID string) (Receipt, error)
}
