package bids

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/internal/domain/validate"
	"github.com/agrobid/agrobid/pkg/database"
	"github.com/agrobid/agrobid/pkg/events"
)

// stubTx satisfies pgx.Tx for service tests. Only Commit and Rollback are
// expected to run; the repositories are mocked out above the tx.
type stubTx struct {
	commits   int
	rollbacks int
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *stubTx) Commit(ctx context.Context) error          { t.commits++; return nil }
func (t *stubTx) Rollback(ctx context.Context) error        { t.rollbacks++; return nil }
func (t *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *stubTx) Conn() *pgx.Conn                                               { return nil }

type stubTxManager struct {
	tx *stubTx
}

func (m *stubTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	m.tx = &stubTx{}
	return m.tx, nil
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, tx database.DBTX, bid *Bid) error {
	args := m.Called(ctx, tx, bid)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Bid, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockRepository) GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*Bid, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockRepository) GetActiveByProductAndBuyer(ctx context.Context, tx database.DBTX, productID, buyerID uuid.UUID) (*Bid, error) {
	args := m.Called(ctx, tx, productID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Bid), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, bid *Bid) error {
	args := m.Called(ctx, bid)
	return args.Error(0)
}

func (m *MockRepository) UpdateTx(ctx context.Context, tx database.DBTX, bid *Bid) error {
	args := m.Called(ctx, tx, bid)
	return args.Error(0)
}

func (m *MockRepository) ClearHighest(ctx context.Context, tx database.DBTX, productID uuid.UUID) error {
	args := m.Called(ctx, tx, productID)
	return args.Error(0)
}

func (m *MockRepository) RejectActiveExcept(ctx context.Context, tx database.DBTX, productID, exceptBidID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, productID, exceptBidID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Bid, int64, error) {
	args := m.Called(ctx, productID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*Bid), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, filter ListFilter) ([]*Bid, int64, error) {
	args := m.Called(ctx, buyerID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*Bid), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) ListByFarmer(ctx context.Context, farmerID uuid.UUID, filter ListFilter) ([]*Bid, int64, error) {
	args := m.Called(ctx, farmerID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*Bid), args.Get(1).(int64), args.Error(2)
}

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*products.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*products.Product), args.Error(1)
}

func (m *MockProductRepository) GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*products.Product, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*products.Product), args.Error(1)
}

func (m *MockProductRepository) UpdateTx(ctx context.Context, tx database.DBTX, product *products.Product) error {
	args := m.Called(ctx, tx, product)
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) SaveEvent(ctx context.Context, tx database.DBTX, event *events.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

type serviceFixture struct {
	svc         *Service
	txManager   *stubTxManager
	bidRepo     *MockRepository
	productRepo *MockProductRepository
	outboxRepo  *MockOutboxRepository
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		txManager:   &stubTxManager{},
		bidRepo:     new(MockRepository),
		productRepo: new(MockProductRepository),
		outboxRepo:  new(MockOutboxRepository),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.txManager, f.bidRepo, f.productRepo, f.outboxRepo, logger)
	return f
}

func openProduct(farmerID uuid.UUID) *products.Product {
	return &products.Product{
		ID:                  uuid.New(),
		FarmerID:            farmerID,
		Name:                "Alphonso Mangoes",
		Category:            products.CategoryFruits,
		Quantity:            products.Quantity{Value: 50, Unit: "kg"},
		BasePrice:           100,
		CurrentPrice:        100,
		MinimumBidIncrement: 10,
		Status:              products.StatusActive,
		BiddingEndTime:      time.Now().Add(24 * time.Hour),
	}
}

func TestService_Submit_FirstBid(t *testing.T) {
	f := newServiceFixture()
	farmerID := uuid.New()
	buyerID := uuid.New()
	product := openProduct(farmerID)

	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)
	f.productRepo.On("UpdateTx", mock.Anything, mock.Anything, product).Return(nil)
	f.bidRepo.On("GetActiveByProductAndBuyer", mock.Anything, mock.Anything, product.ID, buyerID).Return(nil, nil)
	f.bidRepo.On("ClearHighest", mock.Anything, mock.Anything, product.ID).Return(nil)
	f.bidRepo.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*bids.Bid")).Return(nil)
	f.outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).Return(nil)

	bid, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProductID: product.ID,
		BuyerID:   buyerID,
		Amount:    110,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusActive, bid.Status)
	assert.True(t, bid.IsHighest)
	assert.Nil(t, bid.PreviousBidAmount)
	assert.Equal(t, int64(10), bid.BidIncrement)
	assert.Equal(t, ResponsePending, bid.Response.Status)

	// Unspecified fields fall back to the product's values and defaults.
	assert.Equal(t, product.Quantity, bid.Quantity)
	assert.Equal(t, product.BiddingEndTime, bid.ValidUntil)
	assert.Equal(t, DeliveryNegotiable, bid.DeliveryPreference)
	assert.Equal(t, PaymentBankTransfer, bid.PaymentMethod)

	assert.Equal(t, int64(110), product.CurrentPrice)
	assert.Equal(t, 1, product.TotalBids)
	assert.Equal(t, products.StatusBidding, product.Status)
	require.NotNil(t, product.HighestBidID)
	assert.Equal(t, bid.ID, *product.HighestBidID)

	assert.Equal(t, 1, f.txManager.tx.commits)
	f.outboxRepo.AssertNumberOfCalls(t, "SaveEvent", 2)
}

func TestService_Submit_Outbid(t *testing.T) {
	f := newServiceFixture()
	product := openProduct(uuid.New())
	product.CurrentPrice = 110
	product.TotalBids = 1
	product.Status = products.StatusBidding
	buyerID := uuid.New()

	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)
	f.productRepo.On("UpdateTx", mock.Anything, mock.Anything, product).Return(nil)
	f.bidRepo.On("GetActiveByProductAndBuyer", mock.Anything, mock.Anything, product.ID, buyerID).Return(nil, nil)
	f.bidRepo.On("ClearHighest", mock.Anything, mock.Anything, product.ID).Return(nil)
	f.bidRepo.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*bids.Bid")).Return(nil)
	f.outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).Return(nil)

	bid, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProductID: product.ID,
		BuyerID:   buyerID,
		Amount:    120,
	})

	require.NoError(t, err)
	assert.True(t, bid.IsHighest)
	assert.Equal(t, int64(120), product.CurrentPrice)
	assert.Equal(t, 2, product.TotalBids)
	f.bidRepo.AssertCalled(t, "ClearHighest", mock.Anything, mock.Anything, product.ID)
}

func TestService_Submit_BelowMinimum(t *testing.T) {
	tests := []struct {
		name         string
		currentPrice int64
		amount       int64
	}{
		{name: "at current price", currentPrice: 100, amount: 100},
		{name: "just under the increment floor", currentPrice: 100, amount: 109},
		{name: "over the raised price but under its floor", currentPrice: 110, amount: 115},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			product := openProduct(uuid.New())
			product.CurrentPrice = tt.currentPrice

			f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)

			_, err := f.svc.Submit(context.Background(), SubmitCommand{
				ProductID: product.ID,
				BuyerID:   uuid.New(),
				Amount:    tt.amount,
			})

			assert.ErrorIs(t, err, ErrBidTooLow)
			assert.Equal(t, tt.currentPrice, product.CurrentPrice)
			assert.Equal(t, 0, product.TotalBids)
			f.bidRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, 0, f.txManager.tx.commits)
		})
	}
}

func TestService_Submit_RaisesOwnBid(t *testing.T) {
	f := newServiceFixture()
	product := openProduct(uuid.New())
	product.CurrentPrice = 110
	product.Status = products.StatusBidding
	product.TotalBids = 1
	buyerID := uuid.New()

	existing := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		BuyerID:    buyerID,
		Amount:     110,
		Status:     StatusActive,
		IsHighest:  true,
		ValidUntil: product.BiddingEndTime,
	}

	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)
	f.productRepo.On("UpdateTx", mock.Anything, mock.Anything, product).Return(nil)
	f.bidRepo.On("GetActiveByProductAndBuyer", mock.Anything, mock.Anything, product.ID, buyerID).Return(existing, nil)
	f.bidRepo.On("UpdateTx", mock.Anything, mock.Anything, existing).Return(nil)
	f.bidRepo.On("ClearHighest", mock.Anything, mock.Anything, product.ID).Return(nil)
	f.bidRepo.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*bids.Bid")).Return(nil)
	f.outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).Return(nil)

	bid, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProductID: product.ID,
		BuyerID:   buyerID,
		Amount:    120,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, existing.Status)
	require.NotNil(t, bid.PreviousBidAmount)
	assert.Equal(t, int64(110), *bid.PreviousBidAmount)
	assert.Equal(t, int64(10), bid.BidIncrement)
	assert.Equal(t, int64(120), product.CurrentPrice)
	assert.Equal(t, 2, product.TotalBids)
}

func TestService_Submit_Preconditions(t *testing.T) {
	buyerID := uuid.New()

	tests := []struct {
		name    string
		product func() *products.Product
		wantErr error
	}{
		{
			name:    "product does not exist",
			product: func() *products.Product { return nil },
			wantErr: ErrProductNotFound,
		},
		{
			name: "farmer bids on own product",
			product: func() *products.Product {
				return openProduct(buyerID)
			},
			wantErr: ErrOwnProduct,
		},
		{
			name: "product already sold",
			product: func() *products.Product {
				p := openProduct(uuid.New())
				p.Status = products.StatusSold
				return p
			},
			wantErr: ErrProductNotOpen,
		},
		{
			name: "product cancelled",
			product: func() *products.Product {
				p := openProduct(uuid.New())
				p.Status = products.StatusCancelled
				return p
			},
			wantErr: ErrProductNotOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			product := tt.product()
			productID := uuid.New()
			if product != nil {
				productID = product.ID
			}

			if product == nil {
				f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, productID).Return(nil, nil)
			} else {
				f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, productID).Return(product, nil)
			}

			_, err := f.svc.Submit(context.Background(), SubmitCommand{
				ProductID: productID,
				BuyerID:   buyerID,
				Amount:    110,
			})

			assert.ErrorIs(t, err, tt.wantErr)
			f.bidRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, 0, f.txManager.tx.commits)
		})
	}
}

func TestService_Submit_ClosedWindowPersistsExpiry(t *testing.T) {
	f := newServiceFixture()
	product := openProduct(uuid.New())
	product.BiddingEndTime = time.Now().Add(-time.Hour)

	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)
	f.productRepo.On("UpdateTx", mock.Anything, mock.Anything, product).Return(nil)

	_, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProductID: product.ID,
		BuyerID:   uuid.New(),
		Amount:    110,
	})

	assert.ErrorIs(t, err, ErrBiddingClosed)
	// The expiry transition is real state, not part of the failed submission,
	// so it commits even though the bid was refused.
	assert.Equal(t, products.StatusExpired, product.Status)
	assert.Equal(t, 1, f.txManager.tx.commits)
	f.bidRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Submit_Validation(t *testing.T) {
	tests := []struct {
		name string
		cmd  SubmitCommand
	}{
		{
			name: "non-positive amount",
			cmd:  SubmitCommand{ProductID: uuid.New(), BuyerID: uuid.New(), Amount: 0},
		},
		{
			name: "unknown quantity unit",
			cmd: SubmitCommand{
				ProductID: uuid.New(), BuyerID: uuid.New(), Amount: 110,
				Quantity: &products.Quantity{Value: 10, Unit: "bushel"},
			},
		},
		{
			name: "unknown payment method",
			cmd: SubmitCommand{
				ProductID: uuid.New(), BuyerID: uuid.New(), Amount: 110,
				PaymentMethod: PaymentMethod("barter"),
			},
		},
		{
			name: "valid_until in the past",
			cmd: SubmitCommand{
				ProductID: uuid.New(), BuyerID: uuid.New(), Amount: 110,
				ValidUntil: timePtr(time.Now().Add(-time.Minute)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()

			_, err := f.svc.Submit(context.Background(), tt.cmd)

			var verr *validate.Error
			assert.ErrorAs(t, err, &verr)
			assert.Nil(t, f.txManager.tx)
		})
	}
}

func TestService_Accept(t *testing.T) {
	f := newServiceFixture()
	farmerID := uuid.New()
	product := openProduct(farmerID)
	product.CurrentPrice = 115
	product.Status = products.StatusBidding
	bid := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		BuyerID:    uuid.New(),
		Amount:     115,
		Status:     StatusActive,
		IsHighest:  true,
		ValidUntil: product.BiddingEndTime,
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("UpdateTx", mock.Anything, mock.Anything, bid).Return(nil)
	f.bidRepo.On("RejectActiveExcept", mock.Anything, mock.Anything, product.ID, bid.ID).Return(int64(2), nil)
	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)
	f.productRepo.On("UpdateTx", mock.Anything, mock.Anything, product).Return(nil)
	f.outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).Return(nil)

	accepted, err := f.svc.Accept(context.Background(), bid.ID, farmerID, "")

	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)
	assert.Equal(t, ResponseAccepted, accepted.Response.Status)
	assert.Equal(t, "Your bid has been accepted!", accepted.Response.Message)
	require.NotNil(t, accepted.Response.RespondedAt)

	assert.Equal(t, products.StatusSold, product.Status)
	require.NotNil(t, product.WinnerID)
	assert.Equal(t, bid.BuyerID, *product.WinnerID)
	require.NotNil(t, product.SoldPrice)
	assert.Equal(t, int64(115), *product.SoldPrice)
	require.NotNil(t, product.SoldAt)

	assert.Equal(t, 1, f.txManager.tx.commits)
}

func TestService_Accept_NotProductOwner(t *testing.T) {
	f := newServiceFixture()
	product := openProduct(uuid.New())
	bid := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		BuyerID:    uuid.New(),
		Status:     StatusActive,
		ValidUntil: product.BiddingEndTime,
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)
	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)

	_, err := f.svc.Accept(context.Background(), bid.ID, uuid.New(), "")

	assert.ErrorIs(t, err, ErrNotProductOwner)
	assert.Equal(t, StatusActive, bid.Status)
	assert.Equal(t, 0, f.txManager.tx.commits)
}

func TestService_Accept_ExpiredBid(t *testing.T) {
	f := newServiceFixture()
	farmerID := uuid.New()
	product := openProduct(farmerID)
	bid := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		BuyerID:    uuid.New(),
		Status:     StatusActive,
		ValidUntil: time.Now().Add(-time.Hour),
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("UpdateTx", mock.Anything, mock.Anything, bid).Return(nil)
	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)

	_, err := f.svc.Accept(context.Background(), bid.ID, farmerID, "")

	assert.ErrorIs(t, err, ErrBidNotActive)
	// The expiry itself still lands.
	assert.Equal(t, StatusExpired, bid.Status)
	assert.Equal(t, 1, f.txManager.tx.commits)
	assert.Equal(t, products.StatusActive, product.Status)
}

func TestService_Accept_InactiveBid(t *testing.T) {
	for _, status := range []Status{StatusAccepted, StatusRejected, StatusWithdrawn} {
		t.Run(string(status), func(t *testing.T) {
			f := newServiceFixture()
			farmerID := uuid.New()
			product := openProduct(farmerID)
			bid := &Bid{
				ID:         uuid.New(),
				ProductID:  product.ID,
				BuyerID:    uuid.New(),
				Status:     status,
				ValidUntil: product.BiddingEndTime,
			}

			f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
			f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)
			f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)

			_, err := f.svc.Accept(context.Background(), bid.ID, farmerID, "")

			assert.ErrorIs(t, err, ErrBidNotActive)
			assert.Equal(t, 0, f.txManager.tx.commits)
		})
	}
}

func TestService_Reject(t *testing.T) {
	f := newServiceFixture()
	farmerID := uuid.New()
	product := openProduct(farmerID)
	product.Status = products.StatusBidding
	bid := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		BuyerID:    uuid.New(),
		Status:     StatusActive,
		ValidUntil: product.BiddingEndTime,
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("UpdateTx", mock.Anything, mock.Anything, bid).Return(nil)
	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)
	f.outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).Return(nil)

	rejected, err := f.svc.Reject(context.Background(), bid.ID, farmerID, "quality concerns")

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, ResponseRejected, rejected.Response.Status)
	assert.Equal(t, "quality concerns", rejected.Response.Message)
	// Rejecting one bid does not close the listing.
	assert.Equal(t, products.StatusBidding, product.Status)
	f.productRepo.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CounterOffer(t *testing.T) {
	f := newServiceFixture()
	farmerID := uuid.New()
	product := openProduct(farmerID)
	bid := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		BuyerID:    uuid.New(),
		Amount:     110,
		Status:     StatusActive,
		ValidUntil: product.BiddingEndTime,
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("UpdateTx", mock.Anything, mock.Anything, bid).Return(nil)
	f.productRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, product.ID).Return(product, nil)
	f.outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).Return(nil)

	countered, err := f.svc.CounterOffer(context.Background(), bid.ID, farmerID, 130, "can do 130 for this grade")

	require.NoError(t, err)
	// The bid stays live so the buyer can still be accepted or raise.
	assert.Equal(t, StatusActive, countered.Status)
	assert.Equal(t, ResponseCountered, countered.Response.Status)
	require.NotNil(t, countered.Response.CounterOffer)
	assert.Equal(t, int64(130), countered.Response.CounterOffer.Amount)
}

func TestService_CounterOffer_InvalidAmount(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.CounterOffer(context.Background(), uuid.New(), uuid.New(), 0, "")

	var verr *validate.Error
	assert.ErrorAs(t, err, &verr)
	assert.Nil(t, f.txManager.tx)
}

func TestService_Withdraw(t *testing.T) {
	f := newServiceFixture()
	buyerID := uuid.New()
	bid := &Bid{
		ID:         uuid.New(),
		ProductID:  uuid.New(),
		BuyerID:    buyerID,
		Status:     StatusActive,
		IsHighest:  true,
		ValidUntil: time.Now().Add(time.Hour),
	}

	f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("UpdateTx", mock.Anything, mock.Anything, bid).Return(nil)

	withdrawn, err := f.svc.Withdraw(context.Background(), bid.ID, buyerID)

	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, withdrawn.Status)
	assert.False(t, withdrawn.IsHighest)
	// The product's running price is left as-is.
	f.productRepo.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything, mock.Anything)
	f.productRepo.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Withdraw_NotOwner(t *testing.T) {
	f := newServiceFixture()
	bid := &Bid{
		ID:         uuid.New(),
		BuyerID:    uuid.New(),
		Status:     StatusActive,
		ValidUntil: time.Now().Add(time.Hour),
	}

	f.bidRepo.On("GetByIDForUpdate", mock.Anything, mock.Anything, bid.ID).Return(bid, nil)

	_, err := f.svc.Withdraw(context.Background(), bid.ID, uuid.New())

	assert.ErrorIs(t, err, ErrNotBidOwner)
	assert.Equal(t, 0, f.txManager.tx.commits)
}

func TestService_MarkRead(t *testing.T) {
	f := newServiceFixture()
	buyerID := uuid.New()
	bid := &Bid{
		ID:         uuid.New(),
		BuyerID:    buyerID,
		Status:     StatusAccepted,
		ValidUntil: time.Now().Add(time.Hour),
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("Update", mock.Anything, bid).Return(nil)

	read, err := f.svc.MarkRead(context.Background(), bid.ID, buyerID)

	require.NoError(t, err)
	assert.True(t, read.Notification.Read)
	require.NotNil(t, read.Notification.ReadAt)
}

func TestService_MarkRead_Idempotent(t *testing.T) {
	f := newServiceFixture()
	buyerID := uuid.New()
	readAt := time.Now().Add(-time.Hour)
	bid := &Bid{
		ID:           uuid.New(),
		BuyerID:      buyerID,
		Status:       StatusAccepted,
		Notification: NotificationState{Read: true, ReadAt: &readAt},
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)

	read, err := f.svc.MarkRead(context.Background(), bid.ID, buyerID)

	require.NoError(t, err)
	assert.Equal(t, &readAt, read.Notification.ReadAt)
	f.bidRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestService_Get_PersistsExpiry(t *testing.T) {
	f := newServiceFixture()
	bid := &Bid{
		ID:         uuid.New(),
		BuyerID:    uuid.New(),
		Status:     StatusActive,
		ValidUntil: time.Now().Add(-time.Minute),
	}

	f.bidRepo.On("GetByID", mock.Anything, bid.ID).Return(bid, nil)
	f.bidRepo.On("Update", mock.Anything, bid).Return(nil)

	got, err := f.svc.Get(context.Background(), bid.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	f.bidRepo.AssertCalled(t, "Update", mock.Anything, bid)
}

func TestService_Get_NotFound(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()

	f.bidRepo.On("GetByID", mock.Anything, id).Return(nil, nil)

	_, err := f.svc.Get(context.Background(), id)

	assert.ErrorIs(t, err, ErrBidNotFound)
}

func TestService_ListByProduct_ResolvesExpiry(t *testing.T) {
	f := newServiceFixture()
	product := openProduct(uuid.New())
	stale := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		Status:     StatusActive,
		ValidUntil: time.Now().Add(-time.Hour),
	}
	fresh := &Bid{
		ID:         uuid.New(),
		ProductID:  product.ID,
		Status:     StatusActive,
		ValidUntil: time.Now().Add(time.Hour),
	}

	f.productRepo.On("GetByID", mock.Anything, product.ID).Return(product, nil)
	f.bidRepo.On("ListByProduct", mock.Anything, product.ID, 20, 0).Return([]*Bid{fresh, stale}, int64(2), nil)

	items, total, err := f.svc.ListByProduct(context.Background(), product.ID, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, StatusActive, items[0].Status)
	assert.Equal(t, StatusExpired, items[1].Status)
	// Listing resolves in memory only; nothing is written back.
	f.bidRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func timePtr(t time.Time) *time.Time { return &t }
