package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/internal/domain/validate"
	"github.com/agrobid/agrobid/pkg/database"
	"github.com/agrobid/agrobid/pkg/events"
)

var (
	ErrBidNotFound       = errors.New("bid not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrProductNotOpen    = errors.New("product is not open for bidding")
	ErrBiddingClosed     = errors.New("bidding period has ended")
	ErrOwnProduct        = errors.New("cannot bid on your own product")
	ErrBidTooLow         = errors.New("bid amount is below the minimum acceptable bid")
	ErrBidNotActive      = errors.New("bid is no longer active")
	ErrNotBidOwner       = errors.New("only the bidder can perform this action")
	ErrNotProductOwner   = errors.New("only the product owner can perform this action")
	ErrCounterpartyMatch = errors.New("bid does not belong to this product")
)

// SubmitCommand carries everything needed to place a bid.
type SubmitCommand struct {
	ProductID          uuid.UUID
	BuyerID            uuid.UUID
	Amount             int64
	Quantity           *products.Quantity
	Message            string
	DeliveryPreference DeliveryPreference
	PaymentMethod      PaymentMethod
	ValidUntil         *time.Time
	AutoRenew          bool
}

// NewBidPayload is broadcast to everyone watching the product.
type NewBidPayload struct {
	Bid       *Bid  `json:"bid"`
	NewPrice  int64 `json:"newPrice"`
	TotalBids int   `json:"totalBids"`
}

// MessagePayload is delivered to a single user alongside the bid it concerns.
type MessagePayload struct {
	Message string `json:"message"`
	Bid     *Bid   `json:"bid"`
}

// Service implements the bidding workflows. Every state transition that spans
// a bid and its product runs inside one transaction with the product row
// locked first, so concurrent submissions on the same product serialize.
type Service struct {
	txManager   database.TransactionManager
	bidRepo     Repository
	productRepo ProductRepository
	outboxRepo  OutboxRepository
	logger      *slog.Logger
}

func NewService(
	txManager database.TransactionManager,
	bidRepo Repository,
	productRepo ProductRepository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		txManager:   txManager,
		bidRepo:     bidRepo,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		logger:      logger,
	}
}

// Submit places a bid on a product. When the buyer already holds an active
// bid the old one is withdrawn and the new one records the previous amount
// and the increment over it. The new bid always becomes the leading one.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*Bid, error) {
	if err := validateSubmit(cmd); err != nil {
		return nil, err
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	product, err := s.productRepo.GetByIDForUpdate(ctx, tx, cmd.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if resolved := products.ResolveStatus(product, now); resolved != product.Status {
		product.Status = resolved
		product.UpdatedAt = now
		if err := s.productRepo.UpdateTx(ctx, tx, product); err != nil {
			return nil, fmt.Errorf("failed to expire product: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, ErrBiddingClosed
	}

	if product.Status != products.StatusActive && product.Status != products.StatusBidding {
		return nil, ErrProductNotOpen
	}
	if !product.BiddingEndTime.After(now) {
		return nil, ErrBiddingClosed
	}
	if product.IsOwnedBy(cmd.BuyerID) {
		return nil, ErrOwnProduct
	}
	if min := product.MinimumAcceptableBid(); cmd.Amount < min {
		return nil, fmt.Errorf("%w: minimum is %d", ErrBidTooLow, min)
	}

	var previousAmount *int64
	existing, err := s.bidRepo.GetActiveByProductAndBuyer(ctx, tx, cmd.ProductID, cmd.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing bid: %w", err)
	}
	if existing != nil {
		if ResolveStatus(existing, now) == StatusExpired {
			existing.Status = StatusExpired
		} else {
			existing.Status = StatusWithdrawn
			amount := existing.Amount
			previousAmount = &amount
		}
		existing.UpdatedAt = now
		if err := s.bidRepo.UpdateTx(ctx, tx, existing); err != nil {
			return nil, fmt.Errorf("failed to supersede existing bid: %w", err)
		}
	}

	increment := cmd.Amount - product.BasePrice
	if previousAmount != nil {
		increment = cmd.Amount - *previousAmount
	}

	validUntil := product.BiddingEndTime
	if cmd.ValidUntil != nil {
		validUntil = *cmd.ValidUntil
	}

	quantity := product.Quantity
	if cmd.Quantity != nil {
		quantity = *cmd.Quantity
	}

	deliveryPref := cmd.DeliveryPreference
	if deliveryPref == "" {
		deliveryPref = DeliveryNegotiable
	}
	paymentMethod := cmd.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = PaymentBankTransfer
	}

	bid := &Bid{
		ID:                 uuid.New(),
		ProductID:          cmd.ProductID,
		BuyerID:            cmd.BuyerID,
		Amount:             cmd.Amount,
		Quantity:           quantity,
		Status:             StatusActive,
		Message:            cmd.Message,
		DeliveryPreference: deliveryPref,
		PaymentMethod:      paymentMethod,
		ValidUntil:         validUntil,
		AutoRenew:          cmd.AutoRenew,
		IsHighest:          true,
		PreviousBidAmount:  previousAmount,
		BidIncrement:       increment,
		Response:           Response{Status: ResponsePending},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.bidRepo.ClearHighest(ctx, tx, cmd.ProductID); err != nil {
		return nil, fmt.Errorf("failed to clear leading bid: %w", err)
	}
	if err := s.bidRepo.Create(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to create bid: %w", err)
	}

	product.CurrentPrice = cmd.Amount
	product.TotalBids++
	product.HighestBidID = &bid.ID
	product.Status = products.StatusBidding
	product.UpdatedAt = now
	if err := s.productRepo.UpdateTx(ctx, tx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	if err := s.saveProductEvent(ctx, tx, events.EventNewBid, product.ID, NewBidPayload{
		Bid:       bid,
		NewPrice:  product.CurrentPrice,
		TotalBids: product.TotalBids,
	}); err != nil {
		return nil, err
	}
	if err := s.saveUserEvent(ctx, tx, events.EventBidNotification, product.FarmerID, MessagePayload{
		Message: fmt.Sprintf("New bid of %d on %s", bid.Amount, product.Name),
		Bid:     bid,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "bid placed",
		slog.String("bid_id", bid.ID.String()),
		slog.String("product_id", product.ID.String()),
		slog.Int64("amount", bid.Amount),
	)
	return bid, nil
}

// Accept marks the bid accepted, closes the sale on the product and rejects
// every other active bid, all in one transaction.
func (s *Service) Accept(ctx context.Context, bidID, actorID uuid.UUID, message string) (*Bid, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bid, product, err := s.lockBidAndProduct(ctx, tx, bidID)
	if err != nil {
		return nil, err
	}
	if !product.IsOwnedBy(actorID) {
		return nil, ErrNotProductOwner
	}

	now := time.Now()
	if expired, err := s.expireWithinTx(ctx, tx, bid, now); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrBidNotActive
	}
	if bid.Status != StatusActive {
		return nil, ErrBidNotActive
	}

	if message == "" {
		message = "Your bid has been accepted!"
	}
	bid.Status = StatusAccepted
	bid.Response = Response{Status: ResponseAccepted, Message: message, RespondedAt: &now}
	bid.UpdatedAt = now
	if err := s.bidRepo.UpdateTx(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to update bid: %w", err)
	}

	product.Status = products.StatusSold
	product.WinnerID = &bid.BuyerID
	soldPrice := bid.Amount
	product.SoldPrice = &soldPrice
	product.SoldAt = &now
	product.UpdatedAt = now
	if err := s.productRepo.UpdateTx(ctx, tx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	rejected, err := s.bidRepo.RejectActiveExcept(ctx, tx, product.ID, bid.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reject competing bids: %w", err)
	}

	if err := s.saveUserEvent(ctx, tx, events.EventBidAccepted, bid.BuyerID, MessagePayload{
		Message: message,
		Bid:     bid,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "bid accepted",
		slog.String("bid_id", bid.ID.String()),
		slog.String("product_id", product.ID.String()),
		slog.Int64("rejected_bids", rejected),
	)
	return bid, nil
}

// Reject records the farmer's refusal. The product keeps accepting bids.
func (s *Service) Reject(ctx context.Context, bidID, actorID uuid.UUID, message string) (*Bid, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bid, product, err := s.lockBidAndProduct(ctx, tx, bidID)
	if err != nil {
		return nil, err
	}
	if !product.IsOwnedBy(actorID) {
		return nil, ErrNotProductOwner
	}

	now := time.Now()
	if expired, err := s.expireWithinTx(ctx, tx, bid, now); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrBidNotActive
	}
	if bid.Status != StatusActive {
		return nil, ErrBidNotActive
	}

	if message == "" {
		message = "Your bid has been rejected"
	}
	bid.Status = StatusRejected
	bid.Response = Response{Status: ResponseRejected, Message: message, RespondedAt: &now}
	bid.UpdatedAt = now
	if err := s.bidRepo.UpdateTx(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to update bid: %w", err)
	}

	if err := s.saveUserEvent(ctx, tx, events.EventBidRejected, bid.BuyerID, MessagePayload{
		Message: message,
		Bid:     bid,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bid, nil
}

// CounterOffer records an alternative price from the farmer. The bid stays
// active so the buyer can still be accepted at the original amount or raise.
func (s *Service) CounterOffer(ctx context.Context, bidID, actorID uuid.UUID, amount int64, message string) (*Bid, error) {
	if amount <= 0 {
		verr := &validate.Error{}
		verr.Addf("counter offer amount must be positive")
		return nil, verr
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bid, product, err := s.lockBidAndProduct(ctx, tx, bidID)
	if err != nil {
		return nil, err
	}
	if !product.IsOwnedBy(actorID) {
		return nil, ErrNotProductOwner
	}

	now := time.Now()
	if expired, err := s.expireWithinTx(ctx, tx, bid, now); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrBidNotActive
	}
	if bid.Status != StatusActive {
		return nil, ErrBidNotActive
	}

	bid.Response = Response{
		Status:       ResponseCountered,
		Message:      message,
		RespondedAt:  &now,
		CounterOffer: &CounterOffer{Amount: amount, Message: message},
	}
	bid.UpdatedAt = now
	if err := s.bidRepo.UpdateTx(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to update bid: %w", err)
	}

	if err := s.saveUserEvent(ctx, tx, events.EventBidCountered, bid.BuyerID, MessagePayload{
		Message: fmt.Sprintf("Counter offer of %d on your bid", amount),
		Bid:     bid,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bid, nil
}

// Withdraw retracts the buyer's own active bid. The product's running price
// is deliberately left untouched.
func (s *Service) Withdraw(ctx context.Context, bidID, actorID uuid.UUID) (*Bid, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bid, err := s.bidRepo.GetByIDForUpdate(ctx, tx, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock bid: %w", err)
	}
	if bid == nil {
		return nil, ErrBidNotFound
	}
	if !bid.IsOwnedBy(actorID) {
		return nil, ErrNotBidOwner
	}

	now := time.Now()
	if expired, err := s.expireWithinTx(ctx, tx, bid, now); err != nil {
		return nil, err
	} else if expired {
		return nil, ErrBidNotActive
	}
	if bid.Status != StatusActive {
		return nil, ErrBidNotActive
	}

	bid.Status = StatusWithdrawn
	bid.IsHighest = false
	bid.UpdatedAt = now
	if err := s.bidRepo.UpdateTx(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to update bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bid, nil
}

// MarkRead flags the bid's outcome notification as seen by the buyer.
func (s *Service) MarkRead(ctx context.Context, bidID, actorID uuid.UUID) (*Bid, error) {
	bid, err := s.bidRepo.GetByID(ctx, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	if bid == nil {
		return nil, ErrBidNotFound
	}
	if !bid.IsOwnedBy(actorID) {
		return nil, ErrNotBidOwner
	}
	if bid.Notification.Read {
		return bid, nil
	}

	now := time.Now()
	bid.Notification = NotificationState{Read: true, ReadAt: &now}
	bid.UpdatedAt = now
	if err := s.bidRepo.Update(ctx, bid); err != nil {
		return nil, fmt.Errorf("failed to update bid: %w", err)
	}
	return bid, nil
}

// Get returns a single bid, persisting its expiry transition when due.
func (s *Service) Get(ctx context.Context, bidID uuid.UUID) (*Bid, error) {
	bid, err := s.bidRepo.GetByID(ctx, bidID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	if bid == nil {
		return nil, ErrBidNotFound
	}

	now := time.Now()
	if resolved := ResolveStatus(bid, now); resolved != bid.Status {
		bid.Status = resolved
		bid.UpdatedAt = now
		if err := s.bidRepo.Update(ctx, bid); err != nil {
			s.logger.WarnContext(ctx, "failed to persist bid expiry",
				slog.String("bid_id", bid.ID.String()), slog.String("error", err.Error()))
		}
	}
	return bid, nil
}

// ListByProduct returns the visible bids on a product, highest first.
func (s *Service) ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int) ([]*Bid, int64, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, 0, ErrProductNotFound
	}
	if limit <= 0 {
		limit = 20
	}
	items, total, err := s.bidRepo.ListByProduct(ctx, productID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bids: %w", err)
	}
	resolveAll(items)
	return items, total, nil
}

// ListMine returns the buyer's own bids.
func (s *Service) ListMine(ctx context.Context, buyerID uuid.UUID, filter ListFilter) ([]*Bid, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	items, total, err := s.bidRepo.ListByBuyer(ctx, buyerID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bids: %w", err)
	}
	resolveAll(items)
	return items, total, nil
}

// ListReceived returns bids placed against any of the farmer's products.
func (s *Service) ListReceived(ctx context.Context, farmerID uuid.UUID, filter ListFilter) ([]*Bid, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	items, total, err := s.bidRepo.ListByFarmer(ctx, farmerID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bids: %w", err)
	}
	resolveAll(items)
	return items, total, nil
}

// lockBidAndProduct acquires both row locks, product first. Every workflow
// keeps this lock order so submissions and responses never deadlock.
func (s *Service) lockBidAndProduct(ctx context.Context, tx database.DBTX, bidID uuid.UUID) (*Bid, *products.Product, error) {
	peek, err := s.bidRepo.GetByID(ctx, bidID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get bid: %w", err)
	}
	if peek == nil {
		return nil, nil, ErrBidNotFound
	}

	product, err := s.productRepo.GetByIDForUpdate(ctx, tx, peek.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock product: %w", err)
	}
	if product == nil {
		return nil, nil, ErrProductNotFound
	}

	bid, err := s.bidRepo.GetByIDForUpdate(ctx, tx, bidID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock bid: %w", err)
	}
	if bid == nil {
		return nil, nil, ErrBidNotFound
	}
	if bid.ProductID != product.ID {
		return nil, nil, ErrCounterpartyMatch
	}
	return bid, product, nil
}

// expireWithinTx persists a due expiry transition and commits it so the
// caller's precondition failure does not roll the transition back.
func (s *Service) expireWithinTx(ctx context.Context, tx pgx.Tx, bid *Bid, now time.Time) (bool, error) {
	if ResolveStatus(bid, now) != StatusExpired || bid.Status == StatusExpired {
		return false, nil
	}
	bid.Status = StatusExpired
	bid.UpdatedAt = now
	if err := s.bidRepo.UpdateTx(ctx, tx, bid); err != nil {
		return false, fmt.Errorf("failed to expire bid: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (s *Service) saveProductEvent(ctx context.Context, tx database.DBTX, event string, productID uuid.UUID, payload any) error {
	evt, err := events.NewProductNotification(event, productID, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", event, err)
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, evt); err != nil {
		return fmt.Errorf("failed to save %s event: %w", event, err)
	}
	return nil
}

func (s *Service) saveUserEvent(ctx context.Context, tx database.DBTX, event string, userID uuid.UUID, payload any) error {
	evt, err := events.NewUserNotification(event, userID, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", event, err)
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, evt); err != nil {
		return fmt.Errorf("failed to save %s event: %w", event, err)
	}
	return nil
}

func resolveAll(items []*Bid) {
	now := time.Now()
	for _, b := range items {
		b.Status = ResolveStatus(b, now)
	}
}

func validateSubmit(cmd SubmitCommand) error {
	verr := &validate.Error{}
	if cmd.Amount <= 0 {
		verr.Addf("bid amount must be positive")
	}
	if cmd.Quantity != nil {
		if cmd.Quantity.Value <= 0 {
			verr.Addf("quantity must be positive")
		}
		if !cmd.Quantity.ValidUnit() {
			verr.Addf("invalid quantity unit: %s", cmd.Quantity.Unit)
		}
	}
	if cmd.DeliveryPreference != "" {
		switch cmd.DeliveryPreference {
		case DeliveryPickup, DeliveryDelivery, DeliveryNegotiable:
		default:
			verr.Addf("invalid delivery preference: %s", cmd.DeliveryPreference)
		}
	}
	if cmd.PaymentMethod != "" {
		switch cmd.PaymentMethod {
		case PaymentCash, PaymentUPI, PaymentBankTransfer, PaymentCrypto, PaymentCOD:
		default:
			verr.Addf("invalid payment method: %s", cmd.PaymentMethod)
		}
	}
	if cmd.ValidUntil != nil && !cmd.ValidUntil.After(time.Now()) {
		verr.Addf("valid_until must be in the future")
	}
	return verr.Err()
}
