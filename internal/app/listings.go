package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookmarket/internal/util"
	"bookmarket/pkg/domain"
	"bookmarket/pkg/events"
)

// ListingPatch carries optional field updates for a listing. Nil fields
// are left unchanged; the artifact address is immutable and has no patch
// field.
type ListingPatch struct {
	Title       *string
	Description *string
	Price       *int64
}

// CreateListing uploads the artifact (and cover, when present) to the
// content registry and persists the listing. The row is written last so a
// failed upload never leaves a listing with a missing address; an
// orphaned registry object after a failed write is acceptable.
func (a *App) CreateListing(ctx context.Context, author domain.Account, title, description string, price int64, artifact, cover io.Reader) (domain.Listing, error) {
	if author.Role != domain.RoleAuthor {
		return domain.Listing{}, ErrWrongRole
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Listing{}, ErrTitleRequired
	}
	// Validate before any upload so bad input wastes no registry work.
	if price <= 0 {
		return domain.Listing{}, ErrInvalidPrice
	}
	if artifact == nil {
		return domain.Listing{}, fmt.Errorf("%w: missing artifact", ErrContentUpload)
	}

	var artifactAddress, coverAddress string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr, err := a.registry.Upload(gctx, artifact)
		if err != nil {
			return fmt.Errorf("artifact: %w", err)
		}
		artifactAddress = addr
		return nil
	})
	if cover != nil {
		g.Go(func() error {
			addr, err := a.registry.Upload(gctx, cover)
			if err != nil {
				return fmt.Errorf("cover: %w", err)
			}
			coverAddress = addr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Listing{}, fmt.Errorf("%w: %w", ErrContentUpload, err)
	}

	now := time.Now().UTC()
	listing := domain.Listing{
		ID:              util.NewID(),
		AuthorID:        author.ID,
		Title:           title,
		Description:     strings.TrimSpace(description),
		Price:           price,
		ArtifactAddress: artifactAddress,
		CoverAddress:    coverAddress,
		Status:          domain.ListingActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.SaveListing(listing); err != nil {
		return domain.Listing{}, fmt.Errorf("save listing: %w", err)
	}
	ev := events.Event{
		Type:      events.TypeListingCreated,
		AccountID: listing.AuthorID,
		ListingID: listing.ID,
	}
	if err := a.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("event publish failed", "type", ev.Type, "listing_id", listing.ID, "error", err)
	}
	return listing, nil
}

// UpdateListing applies a patch to a listing the caller owns. The write
// touches only the patched columns, so a seller attachment landing
// between the ownership check and the write is never reverted.
func (a *App) UpdateListing(caller domain.Account, listingID string, patch ListingPatch) (domain.Listing, error) {
	if _, err := a.ownedListing(caller, listingID); err != nil {
		return domain.Listing{}, err
	}
	if patch.Price != nil && *patch.Price <= 0 {
		return domain.Listing{}, ErrInvalidPrice
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.Listing{}, ErrTitleRequired
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		patch.Description = &description
	}
	updated, err := a.store.UpdateListingInfo(listingID, patch.Title, patch.Description, patch.Price)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("update listing: %w", err)
	}
	if !updated {
		// Deleted between the ownership check and the write.
		return domain.Listing{}, ErrListingNotFound
	}
	listing, ok, err := a.store.GetListing(listingID)
	if err != nil || !ok {
		return domain.Listing{}, fmt.Errorf("fetch listing after update: %w", err)
	}
	return listing, nil
}

// DeleteListing soft-deletes a listing the caller owns. Existing
// purchases keep their snapshot price and artifact reference.
func (a *App) DeleteListing(caller domain.Account, listingID string) error {
	if _, err := a.ownedListing(caller, listingID); err != nil {
		return err
	}
	if err := a.store.SetListingStatus(listingID, domain.ListingDeleted); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

// AttachSeller assigns the caller as the single reseller of a listing and
// applies the resale price. Exactly one attach can ever succeed.
func (a *App) AttachSeller(caller domain.Account, listingID string, resalePrice int64) (domain.Listing, error) {
	if caller.Role != domain.RoleSeller {
		return domain.Listing{}, ErrWrongRole
	}
	if resalePrice <= 0 {
		return domain.Listing{}, ErrInvalidPrice
	}
	listing, ok, err := a.store.GetListing(listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok || listing.Status == domain.ListingDeleted {
		return domain.Listing{}, ErrListingNotFound
	}
	attached, err := a.store.AttachSeller(listingID, caller.ID, resalePrice)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("attach seller: %w", err)
	}
	if !attached {
		if !listing.Status.Purchasable() {
			return domain.Listing{}, ErrListingUnavailable
		}
		return domain.Listing{}, ErrAlreadyListed
	}
	listing, _, err = a.store.GetListing(listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fetch listing: %w", err)
	}
	return listing, nil
}

// GetListing returns a listing for public reads; deleted listings are
// reported as absent.
func (a *App) GetListing(listingID string) (domain.Listing, error) {
	listing, ok, err := a.store.GetListing(listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok || listing.Status == domain.ListingDeleted {
		return domain.Listing{}, ErrListingNotFound
	}
	return listing, nil
}

// Listings returns visible listings in creation order plus the total
// number of visible rows.
func (a *App) Listings(offset, limit int) ([]domain.Listing, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, total, err := a.store.ListListings(offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	return items, total, nil
}

func (a *App) ownedListing(caller domain.Account, listingID string) (domain.Listing, error) {
	if caller.Role != domain.RoleAuthor {
		return domain.Listing{}, ErrWrongRole
	}
	listing, ok, err := a.store.GetListing(listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok || listing.Status == domain.ListingDeleted {
		return domain.Listing{}, ErrListingNotFound
	}
	if listing.AuthorID != caller.ID {
		return domain.Listing{}, ErrNotOwner
	}
	return listing, nil
}
