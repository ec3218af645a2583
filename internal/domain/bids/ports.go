package bids

import (
	"context"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/pkg/database"
	"github.com/agrobid/agrobid/pkg/events"
)

// ListFilter narrows bid listings for the buyer/farmer dashboards.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository persists bids. Lookups return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, tx database.DBTX, bid *Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bid, error)
	// GetByIDForUpdate locks the bid row for the duration of the transaction.
	GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*Bid, error)
	// GetActiveByProductAndBuyer locks and returns the buyer's current active
	// bid on the product, if any.
	GetActiveByProductAndBuyer(ctx context.Context, tx database.DBTX, productID, buyerID uuid.UUID) (*Bid, error)
	Update(ctx context.Context, bid *Bid) error
	UpdateTx(ctx context.Context, tx database.DBTX, bid *Bid) error
	// ClearHighest drops the leading flag from every bid on the product.
	ClearHighest(ctx context.Context, tx database.DBTX, productID uuid.UUID) error
	// RejectActiveExcept bulk-rejects every remaining active bid on the
	// product and returns how many rows changed.
	RejectActiveExcept(ctx context.Context, tx database.DBTX, productID, exceptBidID uuid.UUID) (int64, error)
	// ListByProduct returns active and accepted bids, highest amount first.
	ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Bid, int64, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, filter ListFilter) ([]*Bid, int64, error)
	// ListByFarmer returns bids placed on any of the farmer's products.
	ListByFarmer(ctx context.Context, farmerID uuid.UUID, filter ListFilter) ([]*Bid, int64, error)
}

// ProductRepository is the slice of the product store the bid workflows need.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*products.Product, error)
	GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*products.Product, error)
	UpdateTx(ctx context.Context, tx database.DBTX, product *products.Product) error
}

// OutboxRepository records notification events in the same transaction as the
// state change they announce.
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx database.DBTX, event *events.OutboxEvent) error
}
