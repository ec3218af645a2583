package bids

import (
	"time"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/products"
)

// Status is the bid lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
	StatusExpired   Status = "expired"
)

// DeliveryPreference expresses how the buyer wants the produce handed over.
type DeliveryPreference string

const (
	DeliveryPickup     DeliveryPreference = "pickup"
	DeliveryDelivery   DeliveryPreference = "delivery"
	DeliveryNegotiable DeliveryPreference = "negotiable"
)

// PaymentMethod the buyer proposes to pay with.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentUPI          PaymentMethod = "upi"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCrypto       PaymentMethod = "crypto"
	PaymentCOD          PaymentMethod = "cod"
)

// ResponseStatus is the farmer's answer recorded on a bid.
type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "pending"
	ResponseAccepted  ResponseStatus = "accepted"
	ResponseRejected  ResponseStatus = "rejected"
	ResponseCountered ResponseStatus = "countered"
)

// CounterOffer is a farmer's proposed alternative to the bid amount.
type CounterOffer struct {
	Amount  int64  `json:"amount"`
	Message string `json:"message,omitempty"`
}

// Response is the farmer's reply sub-record on a bid.
type Response struct {
	Status       ResponseStatus `json:"status"`
	Message      string         `json:"message,omitempty"`
	RespondedAt  *time.Time     `json:"responded_at,omitempty"`
	CounterOffer *CounterOffer  `json:"counter_offer,omitempty"`
}

// NotificationState tracks whether the buyer has seen the outcome.
type NotificationState struct {
	Read   bool       `json:"read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// Bid is a buyer's time-bounded offer on a product. At most one bid per
// (product, buyer) pair is active at a time: raising one's own bid withdraws
// the prior one and chains PreviousBidAmount.
type Bid struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	ProductID uuid.UUID         `json:"product_id" db:"product_id"`
	BuyerID   uuid.UUID         `json:"buyer_id" db:"buyer_id"`
	Amount    int64             `json:"amount" db:"amount"`
	Quantity  products.Quantity `json:"quantity" db:"quantity"`

	Status             Status             `json:"status" db:"status"`
	Message            string             `json:"message,omitempty" db:"message"`
	DeliveryPreference DeliveryPreference `json:"delivery_preference" db:"delivery_preference"`
	PaymentMethod      PaymentMethod      `json:"payment_method" db:"payment_method"`

	ValidUntil time.Time `json:"valid_until" db:"valid_until"`
	AutoRenew  bool      `json:"auto_renew" db:"auto_renew"`

	// IsHighest mirrors "currently leading" onto the bid for display. Among
	// active bids of a product at most one carries it, and that bid's amount
	// equals the product's current price.
	IsHighest         bool   `json:"is_highest" db:"is_highest"`
	PreviousBidAmount *int64 `json:"previous_bid_amount,omitempty" db:"previous_bid_amount"`
	BidIncrement      int64  `json:"bid_increment" db:"bid_increment"`

	Response     Response          `json:"response" db:"response"`
	Notification NotificationState `json:"notification" db:"notification"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ResolveStatus returns the status the bid should have at the given instant.
// Expiry is observed on touch, never swept in the background: a bid past its
// deadline that nothing reads again stays 'active' in storage.
func ResolveStatus(b *Bid, now time.Time) Status {
	if b.Status == StatusActive && b.ValidUntil.Before(now) {
		return StatusExpired
	}
	return b.Status
}

// IsOwnedBy reports whether the given user placed this bid.
func (b *Bid) IsOwnedBy(userID uuid.UUID) bool {
	return b.BuyerID == userID
}
