package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names carried on the wire. The routing key on the broker and the
// event field delivered to websocket clients are the same string.
const (
	EventNewBid             = "new_bid"
	EventBidNotification    = "bid_notification"
	EventBidAccepted        = "bid_accepted"
	EventBidRejected        = "bid_rejected"
	EventBidCountered       = "bid_countered"
	EventTransportCreated   = "transport_created"
	EventTransportUpdate    = "transport_update"
	EventTransportCancelled = "transport_cancelled"
)

// Envelope wraps a notification payload with its delivery target: a product
// room, a user room, or both are possible across events but each envelope
// targets exactly one.
type Envelope struct {
	Event     string          `json:"event"`
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewProductNotification builds a pending outbox event addressed to a
// product's subscriber room.
func NewProductNotification(event string, productID uuid.UUID, payload any) (*OutboxEvent, error) {
	return newNotification(Envelope{Event: event, ProductID: &productID}, payload)
}

// NewUserNotification builds a pending outbox event addressed to a single user.
func NewUserNotification(event string, userID uuid.UUID, payload any) (*OutboxEvent, error) {
	return newNotification(Envelope{Event: event, UserID: &userID}, payload)
}

func newNotification(env Envelope, payload any) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	env.Payload = body

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification envelope: %w", err)
	}

	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: env.Event,
		Payload:   raw,
		Status:    OutboxStatusPending,
		CreatedAt: time.Now(),
	}, nil
}
