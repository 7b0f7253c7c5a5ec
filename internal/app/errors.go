package app

import "errors"

var (
	// Validation.
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidPrice     = errors.New("price must be greater than zero")
	ErrTitleRequired    = errors.New("title required")
	ErrSignedTxRequired = errors.New("signed transaction required")

	// Authentication.
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so responses do not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidNonce       = errors.New("invalid or expired challenge nonce")

	// Authorization.
	ErrWrongRole = errors.New("role not permitted for this operation")
	ErrNotOwner  = errors.New("not the owner of this resource")

	// Not found.
	ErrListingNotFound  = errors.New("listing not found")
	ErrPurchaseNotFound = errors.New("purchase not found")

	// Conflicts.
	ErrUsernameTaken      = errors.New("username already exists")
	ErrAlreadyListed      = errors.New("a seller is already attached to this listing")
	ErrListingUnavailable = errors.New("listing is not available for purchase")
	ErrAlreadyFinalized   = errors.New("purchase already finalized")
	ErrAlreadySubmitted   = errors.New("settlement already submitted for this purchase")
	ErrNotCompleted       = errors.New("purchase is not completed")

	// Upstream.
	ErrContentUpload         = errors.New("content upload failed")
	ErrSettlementSubmission  = errors.New("settlement submission failed")
	ErrSettlementUnavailable = errors.New("settlement gateway unavailable")
	ErrSettlementNotFound    = errors.New("settlement transaction not found")
	ErrSettlementPending     = errors.New("settlement still pending")
)
