package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type AccountModel struct {
	ID            string `gorm:"primaryKey"`
	Username      string `gorm:"uniqueIndex;not null"`
	WalletAddress string `gorm:"index"`
	Role          string `gorm:"not null"`
	PasswordHash  string
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

type ListingModel struct {
	ID              string `gorm:"primaryKey"`
	AuthorID        string `gorm:"not null;index"`
	SellerID        string `gorm:"index"`
	Title           string `gorm:"not null"`
	Description     string
	Price           int64  `gorm:"not null"`
	ArtifactAddress string `gorm:"not null"`
	CoverAddress    string
	Status          string `gorm:"not null;index"`
	ExternalRef     string
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type PurchaseModel struct {
	ID            string `gorm:"primaryKey"`
	ListingID     string `gorm:"not null;index"`
	BuyerID       string `gorm:"not null;index"`
	Price         int64  `gorm:"not null"`
	TxID          string `gorm:"index"`
	Status        string `gorm:"not null;index"`
	FailureReason string
	Receipt       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null;index"`
	UpdatedAt     time.Time      `gorm:"not null"`
}
