package store

import (
	"sync"
	"time"

	"bookmarket/pkg/domain"
)

// MemoryStore keeps all state in-process. It backs tests and local
// development and honors the same conditional-update contracts as the
// Postgres store.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]domain.Account // key: account ID
	usernames map[string]string         // username -> account ID
	wallets   map[string]string         // wallet address -> account ID
	listings  map[string]domain.Listing
	purchases map[string]domain.Purchase
	listOrder []string // listing insertion order
	purOrder  []string // purchase insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]domain.Account),
		usernames: make(map[string]string),
		wallets:   make(map[string]string),
		listings:  make(map[string]domain.Listing),
		purchases: make(map[string]domain.Purchase),
	}
}

// SaveAccount stores or replaces an account.
func (m *MemoryStore) SaveAccount(a domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	m.usernames[a.Username] = a.ID
	if a.WalletAddress != "" {
		m.wallets[a.WalletAddress] = a.ID
	}
	return nil
}

// HasUsername checks if the identity key exists.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.usernames[username]
	return ok, nil
}

// GetAccountByUsername looks up an account by identity key.
func (m *MemoryStore) GetAccountByUsername(username string) (domain.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.usernames[username]; ok {
		a, exists := m.accounts[id]
		return a, exists, nil
	}
	return domain.Account{}, false, nil
}

// GetAccountByID returns an account by ID.
func (m *MemoryStore) GetAccountByID(id string) (domain.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	return a, ok, nil
}

// GetAccountByWallet returns the account linked to a wallet address.
func (m *MemoryStore) GetAccountByWallet(address string) (domain.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.wallets[address]; ok {
		a, exists := m.accounts[id]
		return a, exists, nil
	}
	return domain.Account{}, false, nil
}

// SaveListing stores or replaces a listing and tracks insertion order.
func (m *MemoryStore) SaveListing(l domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.listings[l.ID]; !exists {
		m.listOrder = append(m.listOrder, l.ID)
	}
	m.listings[l.ID] = l
	return nil
}

// UpdateListingInfo patches the editable fields under the lock; seller
// assignment and status written by concurrent callers survive.
func (m *MemoryStore) UpdateListingInfo(id string, title, description *string, price *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok || l.Status == domain.ListingDeleted {
		return false, nil
	}
	if title != nil {
		l.Title = *title
	}
	if description != nil {
		l.Description = *description
	}
	if price != nil {
		l.Price = *price
	}
	l.UpdatedAt = time.Now().UTC()
	m.listings[id] = l
	return true, nil
}

// GetListing retrieves a listing by ID.
func (m *MemoryStore) GetListing(id string) (domain.Listing, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	return l, ok, nil
}

// ListListings returns visible listings in insertion order plus the total.
func (m *MemoryStore) ListListings(offset, limit int) ([]domain.Listing, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	visible := make([]domain.Listing, 0, len(m.listOrder))
	for _, id := range m.listOrder {
		if l, ok := m.listings[id]; ok && l.Status.Visible() {
			visible = append(visible, l)
		}
	}
	total := int64(len(visible))
	if offset >= len(visible) {
		return []domain.Listing{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(visible) {
		end = len(visible)
	}
	return visible[offset:end], total, nil
}

// AttachSeller assigns a reseller if the slot is free.
func (m *MemoryStore) AttachSeller(listingID, sellerID string, resalePrice int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok || l.SellerID != "" || l.Status != domain.ListingActive {
		return false, nil
	}
	l.SellerID = sellerID
	l.Price = resalePrice
	l.Status = domain.ListingListed
	l.UpdatedAt = time.Now().UTC()
	m.listings[listingID] = l
	return true, nil
}

// SetListingStatus updates listing status.
func (m *MemoryStore) SetListingStatus(id string, status domain.ListingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil
	}
	l.Status = status
	l.UpdatedAt = time.Now().UTC()
	m.listings[id] = l
	return nil
}

// SavePurchase stores or replaces a purchase and tracks insertion order.
func (m *MemoryStore) SavePurchase(p domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.purchases[p.ID]; !exists {
		m.purOrder = append(m.purOrder, p.ID)
	}
	m.purchases[p.ID] = p
	return nil
}

// GetPurchase retrieves a purchase by ID.
func (m *MemoryStore) GetPurchase(id string) (domain.Purchase, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.purchases[id]
	return p, ok, nil
}

// ListPurchasesByBuyer returns a buyer's purchases in insertion order.
func (m *MemoryStore) ListPurchasesByBuyer(buyerID string, offset, limit int) ([]domain.Purchase, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mine := make([]domain.Purchase, 0, len(m.purOrder))
	for _, id := range m.purOrder {
		if p, ok := m.purchases[id]; ok && p.BuyerID == buyerID {
			mine = append(mine, p)
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return []domain.Purchase{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

// SetPurchaseTx records a settlement tx id on a pending purchase.
func (m *MemoryStore) SetPurchaseTx(id, txID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok || p.Status != domain.PurchasePending || p.TxID != "" {
		return false, nil
	}
	p.TxID = txID
	p.UpdatedAt = time.Now().UTC()
	m.purchases[id] = p
	return true, nil
}

// FinalizePurchase moves a pending purchase to a terminal status.
func (m *MemoryStore) FinalizePurchase(id string, status domain.PurchaseStatus, reason string, receipt []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok || p.Status != domain.PurchasePending {
		return false, nil
	}
	p.Status = status
	p.FailureReason = reason
	if len(receipt) > 0 {
		p.Receipt = append([]byte(nil), receipt...)
	}
	p.UpdatedAt = time.Now().UTC()
	m.purchases[id] = p
	return true, nil
}
