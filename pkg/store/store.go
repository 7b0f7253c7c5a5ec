package store

import "bookmarket/pkg/domain"

// Store defines persistence operations for accounts, listings and
// purchases. Implementations must make AttachSeller and FinalizePurchase
// atomic conditional updates: callers rely on exactly-one-winner
// semantics under concurrency.
type Store interface {
	// accounts
	SaveAccount(domain.Account) error
	HasUsername(username string) (bool, error)
	GetAccountByUsername(username string) (domain.Account, bool, error)
	GetAccountByID(id string) (domain.Account, bool, error)
	GetAccountByWallet(address string) (domain.Account, bool, error)

	// listings
	SaveListing(domain.Listing) error
	GetListing(id string) (domain.Listing, bool, error)
	// UpdateListingInfo patches title, description and price on a
	// non-deleted listing; nil fields are left untouched. The write is
	// column-scoped so it never reverts a concurrent seller attachment
	// or status change. Returns false when no such listing exists.
	UpdateListingInfo(id string, title, description *string, price *int64) (bool, error)
	// ListListings returns visible listings in creation order plus the
	// total number of visible rows.
	ListListings(offset, limit int) ([]domain.Listing, int64, error)
	// AttachSeller assigns a reseller and resale price if and only if no
	// seller is attached yet. Returns false when the slot was taken.
	AttachSeller(listingID, sellerID string, resalePrice int64) (bool, error)
	SetListingStatus(id string, status domain.ListingStatus) error

	// purchases
	SavePurchase(domain.Purchase) error
	GetPurchase(id string) (domain.Purchase, bool, error)
	ListPurchasesByBuyer(buyerID string, offset, limit int) ([]domain.Purchase, int64, error)
	// SetPurchaseTx records the settlement transaction id on a pending
	// purchase that has none yet. Returns false otherwise.
	SetPurchaseTx(id, txID string) (bool, error)
	// FinalizePurchase moves a pending purchase to a terminal status.
	// Returns false when the purchase was not pending (first writer wins).
	FinalizePurchase(id string, status domain.PurchaseStatus, reason string, receipt []byte) (bool, error)
}
