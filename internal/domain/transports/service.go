package transports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/bids"
	"github.com/agrobid/agrobid/internal/domain/validate"
	"github.com/agrobid/agrobid/pkg/database"
	"github.com/agrobid/agrobid/pkg/events"
)

var (
	ErrTransportNotFound = errors.New("transport not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrBidNotFound       = errors.New("bid not found")
	ErrBidNotAccepted    = errors.New("transport requires an accepted bid")
	ErrTransportExists   = errors.New("transport already exists for this bid")
	ErrNotTransporter    = errors.New("only the assigned transporter can perform this action")
	ErrNotParty          = errors.New("only a party to this transport can perform this action")
	ErrNotRater          = errors.New("only the farmer or buyer can rate a transport")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotCancellable    = errors.New("transport can only be cancelled while pending or confirmed")
	ErrNotDelivered      = errors.New("transport has not been delivered yet")
	ErrAlreadyRated      = errors.New("transport has already been rated")
)

var pincodeRe = regexp.MustCompile(`^[0-9]{6}$`)

// CreateCommand carries everything needed to schedule a transport.
type CreateCommand struct {
	ProductID             uuid.UUID
	BidID                 uuid.UUID
	TransporterID         uuid.UUID
	PickupLocation        Location
	DeliveryLocation      Location
	Vehicle               Vehicle
	Cost                  Cost
	Distance              Distance
	Duration              Duration
	ScheduledPickupTime   time.Time
	ScheduledDeliveryTime time.Time
	PaymentMethod         string
	Notes                 string
}

// TransportPayload is delivered to each party on a transport event.
type TransportPayload struct {
	Message   string     `json:"message"`
	Transport *Transport `json:"transport"`
}

// Service implements the fulfillment workflows. Status moves through a strict
// forward chain; cancelled and failed are reachable from any non-terminal
// state.
type Service struct {
	txManager     database.TransactionManager
	transportRepo Repository
	bidRepo       BidRepository
	productRepo   ProductRepository
	outboxRepo    OutboxRepository
	logger        *slog.Logger
}

func NewService(
	txManager database.TransactionManager,
	transportRepo Repository,
	bidRepo BidRepository,
	productRepo ProductRepository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		txManager:     txManager,
		transportRepo: transportRepo,
		bidRepo:       bidRepo,
		productRepo:   productRepo,
		outboxRepo:    outboxRepo,
		logger:        logger,
	}
}

// Create schedules a transport for an accepted bid. Farmer and buyer are
// copied from the product and bid, never supplied by the caller.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Transport, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	product, err := s.productRepo.GetByID(ctx, cmd.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	bid, err := s.bidRepo.GetByID(ctx, cmd.BidID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	if bid == nil {
		return nil, ErrBidNotFound
	}
	if bid.ProductID != product.ID {
		return nil, ErrBidNotFound
	}
	if bid.Status != bids.StatusAccepted {
		return nil, ErrBidNotAccepted
	}

	existing, err := s.transportRepo.GetByBid(ctx, cmd.BidID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing transport: %w", err)
	}
	if existing != nil {
		return nil, ErrTransportExists
	}

	now := time.Now()
	cost := cmd.Cost
	cost.Recompute()

	paymentMethod := cmd.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cash"
	}
	distance := cmd.Distance
	if distance.Unit == "" {
		distance.Unit = "km"
	}
	duration := cmd.Duration
	if duration.Unit == "" {
		duration.Unit = "hours"
	}

	transport := &Transport{
		ID:                    uuid.New(),
		ProductID:             product.ID,
		BidID:                 bid.ID,
		TransporterID:         cmd.TransporterID,
		FarmerID:              product.FarmerID,
		BuyerID:               bid.BuyerID,
		PickupLocation:        cmd.PickupLocation,
		DeliveryLocation:      cmd.DeliveryLocation,
		Vehicle:               cmd.Vehicle,
		Cost:                  cost,
		Distance:              distance,
		Duration:              duration,
		ScheduledPickupTime:   cmd.ScheduledPickupTime,
		ScheduledDeliveryTime: cmd.ScheduledDeliveryTime,
		Status:                StatusPending,
		TrackingUpdates:       []TrackingUpdate{},
		PaymentStatus:         PaymentPending,
		PaymentMethod:         paymentMethod,
		Notes:                 cmd.Notes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.transportRepo.Create(ctx, tx, transport); err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	payload := TransportPayload{Message: "A transport has been scheduled for your order", Transport: transport}
	if err := s.notifyParties(ctx, tx, events.EventTransportCreated, payload, transport.FarmerID, transport.BuyerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "transport created",
		slog.String("transport_id", transport.ID.String()),
		slog.String("bid_id", bid.ID.String()),
	)
	return transport, nil
}

// UpdateStatus advances the transport one step along the status chain and
// appends a tracking entry. Only the assigned transporter may call it.
func (s *Service) UpdateStatus(ctx context.Context, transportID, actorID uuid.UUID, next Status, location *TrackingLocation, note string) (*Transport, error) {
	if !next.Valid() {
		verr := &validate.Error{}
		verr.Addf("invalid status: %s", next)
		return nil, verr
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transport, err := s.transportRepo.GetByIDForUpdate(ctx, tx, transportID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock transport: %w", err)
	}
	if transport == nil {
		return nil, ErrTransportNotFound
	}
	if transport.TransporterID != actorID {
		return nil, ErrNotTransporter
	}
	if !CanTransition(transport.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, transport.Status, next)
	}

	now := time.Now()
	transport.Status = next
	transport.TrackingUpdates = append(transport.TrackingUpdates, TrackingUpdate{
		Status:    next,
		Location:  location,
		Note:      note,
		Timestamp: now,
	})
	switch next {
	case StatusPickedUp:
		transport.ActualPickupTime = &now
	case StatusDelivered:
		transport.ActualDeliveryTime = &now
	}
	transport.UpdatedAt = now

	if err := s.transportRepo.UpdateTx(ctx, tx, transport); err != nil {
		return nil, fmt.Errorf("failed to update transport: %w", err)
	}

	payload := TransportPayload{
		Message:   fmt.Sprintf("Transport status updated to %s", next),
		Transport: transport,
	}
	if err := s.notifyParties(ctx, tx, events.EventTransportUpdate, payload, transport.FarmerID, transport.BuyerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return transport, nil
}

// Cancel aborts a transport that has not yet left. Any of the three parties
// may cancel while the transport is pending or confirmed.
func (s *Service) Cancel(ctx context.Context, transportID, actorID uuid.UUID, reason string) (*Transport, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transport, err := s.transportRepo.GetByIDForUpdate(ctx, tx, transportID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock transport: %w", err)
	}
	if transport == nil {
		return nil, ErrTransportNotFound
	}
	if !transport.IsParty(actorID) {
		return nil, ErrNotParty
	}
	if transport.Status != StatusPending && transport.Status != StatusConfirmed {
		return nil, ErrNotCancellable
	}

	now := time.Now()
	transport.Status = StatusCancelled
	transport.CancelledBy = &actorID
	transport.CancelledAt = &now
	transport.CancellationReason = reason
	transport.TrackingUpdates = append(transport.TrackingUpdates, TrackingUpdate{
		Status:    StatusCancelled,
		Note:      reason,
		Timestamp: now,
	})
	transport.UpdatedAt = now

	if err := s.transportRepo.UpdateTx(ctx, tx, transport); err != nil {
		return nil, fmt.Errorf("failed to update transport: %w", err)
	}

	payload := TransportPayload{Message: "Transport has been cancelled", Transport: transport}
	if err := s.notifyParties(ctx, tx, events.EventTransportCancelled, payload,
		transport.FarmerID, transport.BuyerID, transport.TransporterID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return transport, nil
}

// AddRating records the post-delivery review. Write-once: a second attempt
// fails regardless of who rated first.
func (s *Service) AddRating(ctx context.Context, transportID, actorID uuid.UUID, score int, review string) (*Transport, error) {
	if score < 1 || score > 5 {
		verr := &validate.Error{}
		verr.Addf("rating score must be between 1 and 5")
		return nil, verr
	}
	if len(review) > 500 {
		verr := &validate.Error{}
		verr.Addf("review must be at most 500 characters")
		return nil, verr
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transport, err := s.transportRepo.GetByIDForUpdate(ctx, tx, transportID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock transport: %w", err)
	}
	if transport == nil {
		return nil, ErrTransportNotFound
	}
	if transport.FarmerID != actorID && transport.BuyerID != actorID {
		return nil, ErrNotRater
	}
	if transport.Status != StatusDelivered {
		return nil, ErrNotDelivered
	}
	if transport.Rating != nil {
		return nil, ErrAlreadyRated
	}

	now := time.Now()
	transport.Rating = &Rating{Score: score, Review: review, RatedBy: actorID, RatedAt: now}
	transport.UpdatedAt = now

	if err := s.transportRepo.UpdateTx(ctx, tx, transport); err != nil {
		return nil, fmt.Errorf("failed to update transport: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return transport, nil
}

// Get returns a transport visible to one of its parties.
func (s *Service) Get(ctx context.Context, transportID, actorID uuid.UUID) (*Transport, error) {
	transport, err := s.transportRepo.GetByID(ctx, transportID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transport: %w", err)
	}
	if transport == nil {
		return nil, ErrTransportNotFound
	}
	if !transport.IsParty(actorID) {
		return nil, ErrNotParty
	}
	return transport, nil
}

// ListMine returns transports where the user is any of the three parties.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]*Transport, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	items, total, err := s.transportRepo.ListByParty(ctx, userID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transports: %w", err)
	}
	return items, total, nil
}

// ListActive returns the transporter's in-flight work, next pickup first.
func (s *Service) ListActive(ctx context.Context, transporterID uuid.UUID) ([]*Transport, error) {
	items, err := s.transportRepo.ListActiveByTransporter(ctx, transporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active transports: %w", err)
	}
	return items, nil
}

func (s *Service) notifyParties(ctx context.Context, tx database.DBTX, event string, payload TransportPayload, userIDs ...uuid.UUID) error {
	for _, userID := range userIDs {
		evt, err := events.NewUserNotification(event, userID, payload)
		if err != nil {
			return fmt.Errorf("failed to build %s event: %w", event, err)
		}
		if err := s.outboxRepo.SaveEvent(ctx, tx, evt); err != nil {
			return fmt.Errorf("failed to save %s event: %w", event, err)
		}
	}
	return nil
}

func validateCreate(cmd CreateCommand) error {
	verr := &validate.Error{}
	validateLocation(verr, "pickup", cmd.PickupLocation)
	validateLocation(verr, "delivery", cmd.DeliveryLocation)
	if !cmd.Vehicle.Type.Valid() {
		verr.Addf("invalid vehicle type: %s", cmd.Vehicle.Type)
	}
	if cmd.Vehicle.Number == "" {
		verr.Addf("vehicle number is required")
	}
	if cmd.Vehicle.Capacity <= 0 {
		verr.Addf("vehicle capacity must be positive")
	}
	if cmd.Cost.BaseFare < 0 || cmd.Cost.DistanceCharge < 0 || cmd.Cost.LoadingCharge < 0 ||
		cmd.Cost.UnloadingCharge < 0 || cmd.Cost.AdditionalCharges < 0 || cmd.Cost.Discount < 0 {
		verr.Addf("cost components must not be negative")
	}
	if cmd.Distance.Value <= 0 {
		verr.Addf("distance must be positive")
	}
	if cmd.Distance.Unit != "" && cmd.Distance.Unit != "km" && cmd.Distance.Unit != "miles" {
		verr.Addf("invalid distance unit: %s", cmd.Distance.Unit)
	}
	if cmd.Duration.Value <= 0 {
		verr.Addf("estimated duration must be positive")
	}
	if cmd.Duration.Unit != "" && cmd.Duration.Unit != "hours" && cmd.Duration.Unit != "days" {
		verr.Addf("invalid duration unit: %s", cmd.Duration.Unit)
	}
	if cmd.ScheduledPickupTime.IsZero() {
		verr.Addf("scheduled pickup time is required")
	}
	if cmd.ScheduledDeliveryTime.IsZero() {
		verr.Addf("scheduled delivery time is required")
	} else if !cmd.ScheduledPickupTime.IsZero() && !cmd.ScheduledDeliveryTime.After(cmd.ScheduledPickupTime) {
		verr.Addf("scheduled delivery time must be after pickup time")
	}
	if len(cmd.Notes) > 1000 {
		verr.Addf("notes must be at most 1000 characters")
	}
	return verr.Err()
}

func validateLocation(verr *validate.Error, kind string, loc Location) {
	if loc.Address == "" {
		verr.Addf("%s address is required", kind)
	}
	if loc.City == "" {
		verr.Addf("%s city is required", kind)
	}
	if loc.State == "" {
		verr.Addf("%s state is required", kind)
	}
	if !pincodeRe.MatchString(loc.Pincode) {
		verr.Addf("%s pincode must be a 6-digit number", kind)
	}
}
