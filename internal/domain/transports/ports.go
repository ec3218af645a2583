package transports

import (
	"context"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/bids"
	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/pkg/database"
	"github.com/agrobid/agrobid/pkg/events"
)

// ListFilter narrows transport listings per party dashboard.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository persists transports. Lookups return (nil, nil) when absent.
type Repository interface {
	Create(ctx context.Context, tx database.DBTX, transport *Transport) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transport, error)
	GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*Transport, error)
	// GetByBid returns the transport already created for a bid, if any.
	GetByBid(ctx context.Context, bidID uuid.UUID) (*Transport, error)
	Update(ctx context.Context, transport *Transport) error
	UpdateTx(ctx context.Context, tx database.DBTX, transport *Transport) error
	// ListByParty returns transports where the user is farmer, buyer or
	// transporter, newest first.
	ListByParty(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]*Transport, int64, error)
	// ListActiveByTransporter returns in-flight transports ordered by
	// scheduled pickup time.
	ListActiveByTransporter(ctx context.Context, transporterID uuid.UUID) ([]*Transport, error)
}

// BidRepository is the slice of the bid store the fulfillment workflows need.
type BidRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*bids.Bid, error)
}

// ProductRepository resolves the product a transport fulfils.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*products.Product, error)
}

// OutboxRepository records notification events transactionally.
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx database.DBTX, event *events.OutboxEvent) error
}
