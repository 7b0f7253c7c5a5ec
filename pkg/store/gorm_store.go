package store

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bookmarket/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&AccountModel{}, &ListingModel{}, &PurchaseModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveAccount inserts or updates an account.
func (s *GormStore) SaveAccount(a domain.Account) error {
	model := accountToModel(a)
	return s.db.Save(&model).Error
}

// HasUsername checks if the identity key exists.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&AccountModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetAccountByUsername looks up an account by its identity key.
func (s *GormStore) GetAccountByUsername(username string) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

// GetAccountByID returns an account by ID.
func (s *GormStore) GetAccountByID(id string) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

// GetAccountByWallet returns the account linked to a wallet address.
func (s *GormStore) GetAccountByWallet(address string) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.Where("wallet_address = ?", address).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

// SaveListing inserts or updates a listing.
func (s *GormStore) SaveListing(l domain.Listing) error {
	model := listingToModel(l)
	return s.db.Save(&model).Error
}

// UpdateListingInfo patches the editable columns only, so a seller
// attachment committed by a concurrent writer is never overwritten.
func (s *GormStore) UpdateListingInfo(id string, title, description *string, price *int64) (bool, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if title != nil {
		updates["title"] = *title
	}
	if description != nil {
		updates["description"] = *description
	}
	if price != nil {
		updates["price"] = *price
	}
	tx := s.db.Model(&ListingModel{}).
		Where("id = ? AND status <> ?", id, string(domain.ListingDeleted)).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// GetListing retrieves a listing.
func (s *GormStore) GetListing(id string) (domain.Listing, bool, error) {
	var model ListingModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Listing{}, false, nil
		}
		return domain.Listing{}, false, err
	}
	return listingFromModel(model), true, nil
}

// ListListings returns visible listings in creation order plus the total.
func (s *GormStore) ListListings(offset, limit int) ([]domain.Listing, int64, error) {
	visible := []string{string(domain.ListingActive), string(domain.ListingListed)}
	var total int64
	if err := s.db.Model(&ListingModel{}).Where("status IN ?", visible).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []ListingModel
	if err := s.db.Where("status IN ?", visible).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	res := make([]domain.Listing, 0, len(models))
	for _, m := range models {
		res = append(res, listingFromModel(m))
	}
	return res, total, nil
}

// AttachSeller conditionally assigns a reseller; the WHERE clause on the
// empty seller column makes concurrent attaches single-winner.
func (s *GormStore) AttachSeller(listingID, sellerID string, resalePrice int64) (bool, error) {
	tx := s.db.Model(&ListingModel{}).
		Where("id = ? AND (seller_id = '' OR seller_id IS NULL) AND status = ?", listingID, string(domain.ListingActive)).
		Updates(map[string]any{
			"seller_id":  sellerID,
			"price":      resalePrice,
			"status":     string(domain.ListingListed),
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// SetListingStatus updates listing status.
func (s *GormStore) SetListingStatus(id string, status domain.ListingStatus) error {
	return s.db.Model(&ListingModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// SavePurchase inserts or updates a purchase.
func (s *GormStore) SavePurchase(p domain.Purchase) error {
	model := purchaseToModel(p)
	return s.db.Save(&model).Error
}

// GetPurchase retrieves a purchase.
func (s *GormStore) GetPurchase(id string) (domain.Purchase, bool, error) {
	var model PurchaseModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Purchase{}, false, nil
		}
		return domain.Purchase{}, false, err
	}
	return purchaseFromModel(model), true, nil
}

// ListPurchasesByBuyer returns a buyer's purchases in creation order.
func (s *GormStore) ListPurchasesByBuyer(buyerID string, offset, limit int) ([]domain.Purchase, int64, error) {
	var total int64
	if err := s.db.Model(&PurchaseModel{}).Where("buyer_id = ?", buyerID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []PurchaseModel
	if err := s.db.Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	res := make([]domain.Purchase, 0, len(models))
	for _, m := range models {
		res = append(res, purchaseFromModel(m))
	}
	return res, total, nil
}

// SetPurchaseTx records the settlement tx id on a pending purchase.
func (s *GormStore) SetPurchaseTx(id, txID string) (bool, error) {
	tx := s.db.Model(&PurchaseModel{}).
		Where("id = ? AND status = ? AND (tx_id = '' OR tx_id IS NULL)", id, string(domain.PurchasePending)).
		Updates(map[string]any{
			"tx_id":      txID,
			"updated_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// FinalizePurchase is the compare-and-swap from pending to a terminal
// state; a purchase already finalized is left untouched.
func (s *GormStore) FinalizePurchase(id string, status domain.PurchaseStatus, reason string, receipt []byte) (bool, error) {
	updates := map[string]any{
		"status":         string(status),
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	}
	if len(receipt) > 0 {
		updates["receipt"] = datatypes.JSON(receipt)
	}
	tx := s.db.Model(&PurchaseModel{}).
		Where("id = ? AND status = ?", id, string(domain.PurchasePending)).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func accountToModel(a domain.Account) AccountModel {
	return AccountModel{
		ID:            a.ID,
		Username:      a.Username,
		WalletAddress: a.WalletAddress,
		Role:          string(a.Role),
		PasswordHash:  a.PasswordHash,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func accountFromModel(m AccountModel) domain.Account {
	return domain.Account{
		ID:            m.ID,
		Username:      m.Username,
		WalletAddress: m.WalletAddress,
		Role:          domain.Role(m.Role),
		PasswordHash:  m.PasswordHash,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func listingToModel(l domain.Listing) ListingModel {
	return ListingModel{
		ID:              l.ID,
		AuthorID:        l.AuthorID,
		SellerID:        l.SellerID,
		Title:           l.Title,
		Description:     l.Description,
		Price:           l.Price,
		ArtifactAddress: l.ArtifactAddress,
		CoverAddress:    l.CoverAddress,
		Status:          string(l.Status),
		ExternalRef:     l.ExternalRef,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func listingFromModel(m ListingModel) domain.Listing {
	return domain.Listing{
		ID:              m.ID,
		AuthorID:        m.AuthorID,
		SellerID:        m.SellerID,
		Title:           m.Title,
		Description:     m.Description,
		Price:           m.Price,
		ArtifactAddress: m.ArtifactAddress,
		CoverAddress:    m.CoverAddress,
		Status:          domain.ListingStatus(m.Status),
		ExternalRef:     m.ExternalRef,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func purchaseToModel(p domain.Purchase) PurchaseModel {
	return PurchaseModel{
		ID:            p.ID,
		ListingID:     p.ListingID,
		BuyerID:       p.BuyerID,
		Price:         p.Price,
		TxID:          p.TxID,
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		Receipt:       datatypes.JSON(p.Receipt),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func purchaseFromModel(m PurchaseModel) domain.Purchase {
	return domain.Purchase{
		ID:            m.ID,
		ListingID:     m.ListingID,
		BuyerID:       m.BuyerID,
		Price:         m.Price,
		TxID:          m.TxID,
		Status:        domain.PurchaseStatus(m.Status),
		FailureReason: m.FailureReason,
		Receipt:       []byte(m.Receipt),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
