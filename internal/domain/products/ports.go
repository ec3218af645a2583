package products

import (
	"context"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/pkg/database"
)

// ListFilter narrows a product listing. Zero values mean "any".
type ListFilter struct {
	FarmerID uuid.UUID
	Category Category
	Status   Status
	City     string
	State    string
	MinPrice int64
	MaxPrice int64
	Search   string
	Featured *bool
	// OpenOnly restricts to products whose bidding window is still open.
	OpenOnly bool
	Sort     string
	Limit    int
	Offset   int
}

// Repository defines the interface for product persistence
type Repository interface {
	// Create inserts a new product
	Create(ctx context.Context, product *Product) error

	// GetByID returns the product with the given id, or nil when absent
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// GetByIDForUpdate locks the product row for the duration of the
	// transaction. This serializes concurrent bids on the same product.
	GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*Product, error)

	// Update persists all mutable fields outside a transaction
	Update(ctx context.Context, product *Product) error

	// UpdateTx persists all mutable fields within a transaction
	UpdateTx(ctx context.Context, tx database.DBTX, product *Product) error

	// Delete removes the product row
	Delete(ctx context.Context, id uuid.UUID) error

	// IncrementViews bumps the view counter without touching updated_at
	IncrementViews(ctx context.Context, id uuid.UUID) error

	// List returns products matching the filter plus the total match count
	List(ctx context.Context, filter ListFilter) ([]*Product, int64, error)
}

// ImageStore abstracts blob storage for listing images. The engine only
// tracks references; content never passes through it.
type ImageStore interface {
	Delete(ctx context.Context, ref string) error
}
