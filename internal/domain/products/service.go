package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/validate"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNotOwner        = errors.New("not authorized: only the listing farmer can perform this action")
	ErrProductSold     = errors.New("product is already sold")
)

// CreateCommand carries a new listing. Image refs must already be stored.
type CreateCommand struct {
	FarmerID            uuid.UUID
	Name                string
	Category            Category
	Description         string
	Quantity            Quantity
	BasePrice           int64
	MinimumBidIncrement int64
	Images              []string
	Location            Location
	Quality             Quality
	HarvestDate         time.Time
	AvailableFrom       time.Time
	AvailableUntil      time.Time
	BiddingEndTime      time.Time
	Tags                []string
}

// UpdateCommand carries mutable listing fields. Ownership, status, bid
// counters and the highest-bid pointer are never client-writable.
type UpdateCommand struct {
	ProductID   uuid.UUID
	FarmerID    uuid.UUID
	Name        string
	Description string
	Quantity    *Quantity
	Location    *Location
	Quality     *Quality
	Images      []string
	Tags        []string
}

// Service implements listing management
type Service struct {
	repo   Repository
	images ImageStore
	logger *slog.Logger
}

// NewService creates a new product service
func NewService(repo Repository, images ImageStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, images: images, logger: logger}
}

// Create validates and inserts a listing. The current price starts at the
// base price.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Product, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	now := time.Now()
	if cmd.MinimumBidIncrement <= 0 {
		cmd.MinimumBidIncrement = 10
	}
	if cmd.AvailableFrom.IsZero() {
		cmd.AvailableFrom = now
	}
	if cmd.Quality.Grade == "" {
		cmd.Quality.Grade = "B"
	}
	if cmd.Quality.Certification == "" {
		cmd.Quality.Certification = "none"
	}

	product := &Product{
		ID:                  uuid.New(),
		FarmerID:            cmd.FarmerID,
		Name:                cmd.Name,
		Category:            cmd.Category,
		Description:         cmd.Description,
		Quantity:            cmd.Quantity,
		BasePrice:           cmd.BasePrice,
		CurrentPrice:        cmd.BasePrice,
		MinimumBidIncrement: cmd.MinimumBidIncrement,
		Images:              cmd.Images,
		Location:            cmd.Location,
		Quality:             cmd.Quality,
		HarvestDate:         cmd.HarvestDate,
		AvailableFrom:       cmd.AvailableFrom,
		AvailableUntil:      cmd.AvailableUntil,
		BiddingEndTime:      cmd.BiddingEndTime,
		Status:              StatusActive,
		Tags:                cmd.Tags,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return product, nil
}

// Get returns a product for display, resolving lazy expiry and bumping the
// view counter.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := s.touch(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.IncrementViews(ctx, id); err != nil {
		// View counts are best-effort; don't fail the read.
		s.logger.Warn("failed to increment views", "product_id", id, "error", err)
	} else {
		product.Views++
	}

	return product, nil
}

// touch loads a product and persists a lazy expiry transition when the stored
// status is stale.
func (s *Service) touch(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if resolved := ResolveStatus(product, time.Now()); resolved != product.Status {
		product.Status = resolved
		product.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, product); err != nil {
			return nil, fmt.Errorf("failed to persist expiry: %w", err)
		}
	}

	return product, nil
}

// List returns products matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Product, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 12
	}
	// An "active" browse only shows listings still open for bidding.
	if filter.Status == StatusActive {
		filter.OpenOnly = true
	}
	return s.repo.List(ctx, filter)
}

// ListMine returns the farmer's own listings.
func (s *Service) ListMine(ctx context.Context, farmerID uuid.UUID, status Status, limit, offset int) ([]*Product, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.List(ctx, ListFilter{
		FarmerID: farmerID,
		Status:   status,
		Limit:    limit,
		Offset:   offset,
	})
}

// ListFeatured returns featured listings still open for bidding.
func (s *Service) ListFeatured(ctx context.Context, limit int) ([]*Product, error) {
	if limit <= 0 {
		limit = 6
	}
	featured := true
	items, _, err := s.repo.List(ctx, ListFilter{
		Status:   StatusActive,
		Featured: &featured,
		OpenOnly: true,
		Limit:    limit,
	})
	return items, err
}

// Update mutates listing fields. Sold products are immutable.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Product, error) {
	product, err := s.touch(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsOwnedBy(cmd.FarmerID) {
		return nil, ErrNotOwner
	}
	if product.Status == StatusSold {
		return nil, ErrProductSold
	}

	if cmd.Name != "" {
		product.Name = cmd.Name
	}
	if cmd.Description != "" {
		product.Description = cmd.Description
	}
	if cmd.Quantity != nil {
		product.Quantity = *cmd.Quantity
	}
	if cmd.Location != nil {
		product.Location = *cmd.Location
	}
	if cmd.Quality != nil {
		product.Quality = *cmd.Quality
	}
	if cmd.Tags != nil {
		product.Tags = cmd.Tags
	}
	if len(cmd.Images) > 0 {
		s.deleteBlobs(ctx, product.Images)
		product.Images = cmd.Images
	}

	product.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return product, nil
}

// Delete removes a listing: soft-cancelled when bids exist (bid history must
// survive), hard-deleted with blob cleanup otherwise. Returns true when the
// product was cancelled rather than deleted.
func (s *Service) Delete(ctx context.Context, productID, farmerID uuid.UUID) (bool, error) {
	product, err := s.touch(ctx, productID)
	if err != nil {
		return false, err
	}
	if !product.IsOwnedBy(farmerID) {
		return false, ErrNotOwner
	}
	if product.Status == StatusSold {
		return false, ErrProductSold
	}

	if product.TotalBids > 0 {
		product.Status = StatusCancelled
		product.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, product); err != nil {
			return false, fmt.Errorf("failed to cancel product: %w", err)
		}
		return true, nil
	}

	s.deleteBlobs(ctx, product.Images)
	if err := s.repo.Delete(ctx, productID); err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	return false, nil
}

func (s *Service) deleteBlobs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.images.Delete(ctx, ref); err != nil {
			s.logger.Warn("failed to delete image blob", "ref", ref, "error", err)
		}
	}
}

func validateCreate(cmd CreateCommand) error {
	var verr validate.Error
	if len(cmd.Name) < 3 || len(cmd.Name) > 100 {
		verr.Addf("product name must be between 3 and 100 characters")
	}
	if !cmd.Category.Valid() {
		verr.Addf("category %q is not recognised", cmd.Category)
	}
	if len(cmd.Description) < 20 || len(cmd.Description) > 1000 {
		verr.Addf("description must be between 20 and 1000 characters")
	}
	if cmd.Quantity.Value <= 0 {
		verr.Addf("quantity must be positive")
	}
	if !cmd.Quantity.ValidUnit() {
		verr.Addf("quantity unit %q is not recognised", cmd.Quantity.Unit)
	}
	if cmd.BasePrice <= 0 {
		verr.Addf("base price must be positive")
	}
	if len(cmd.Images) == 0 {
		verr.Addf("at least one product image is required")
	}
	if cmd.Location.City == "" || cmd.Location.State == "" {
		verr.Addf("location city and state are required")
	}
	if cmd.HarvestDate.IsZero() {
		verr.Addf("harvest date is required")
	}
	if cmd.AvailableUntil.IsZero() {
		verr.Addf("available until date is required")
	}
	if !cmd.BiddingEndTime.After(time.Now()) {
		verr.Addf("bidding end time must be in the future")
	}
	return verr.Err()
}
