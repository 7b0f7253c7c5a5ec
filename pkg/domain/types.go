package domain

import (
	"encoding/json"
	"time"
)

// Role is the closed set of account roles. Roles are assigned at
// registration and never change afterwards.
type Role string

const (
	RoleAuthor Role = "author"
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// ParseRole maps user input onto the closed enum.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAuthor, RoleSeller, RoleBuyer:
		return Role(s), true
	default:
		return "", false
	}
}

type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingListed    ListingStatus = "listed"
	ListingSuspended ListingStatus = "suspended"
	ListingDeleted   ListingStatus = "deleted"
)

// Purchasable reports whether new purchases may reference the listing.
func (s ListingStatus) Purchasable() bool {
	return s == ListingActive || s == ListingListed
}

// Visible reports whether the listing appears on public listing pages.
func (s ListingStatus) Visible() bool {
	return s == ListingActive || s == ListingListed
}

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// Terminal reports whether the purchase reached a final state.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted || s == PurchaseFailed
}

// Account is an identity record. Username is the unique identity key;
// wallet-provisioned accounts use the lowercased address as username.
type Account struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	Role          Role      `json:"role"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Listing is a book offered on the marketplace. Price is in the smallest
// currency unit. ArtifactAddress is immutable once set: settled purchases
// reference it.
type Listing struct {
	ID              string        `json:"id"`
	AuthorID        string        `json:"authorId"`
	SellerID        string        `json:"sellerId,omitempty"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Price           int64         `json:"price"`
	ArtifactAddress string        `json:"artifactAddress"`
	CoverAddress    string        `json:"coverAddress,omitempty"`
	Status          ListingStatus `json:"status"`
	ExternalRef     string        `json:"externalRef,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Purchase records one buyer's acquisition of a listing. Price is a
// snapshot taken at creation and never recomputed from the listing.
type Purchase struct {
	ID            string          `json:"id"`
	ListingID     string          `json:"listingId"`
	BuyerID       string          `json:"buyerId"`
	Price         int64           `json:"price"`
	TxID          string          `json:"txId,omitempty"`
	Status        PurchaseStatus  `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	Receipt       json.RawMessage `json:"-"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
