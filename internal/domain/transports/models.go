package transports

import (
	"time"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/products"
)

// Status is the transport lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusInTransit      Status = "in_transit"
	StatusPickedUp       Status = "picked_up"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
)

// transitions is the forward edge per state. Cancelled and failed are reached
// through Cancel and Fail paths, not through this table.
var transitions = map[Status]Status{
	StatusPending:        StatusConfirmed,
	StatusConfirmed:      StatusInTransit,
	StatusInTransit:      StatusPickedUp,
	StatusPickedUp:       StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

// CanTransition reports whether moving from the current status to next is a
// legal step, either one hop forward or into a terminal failure state.
func CanTransition(from, next Status) bool {
	if next == StatusCancelled || next == StatusFailed {
		return !from.Terminal()
	}
	return transitions[from] == next
}

// Terminal reports whether no further status change is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInTransit, StatusPickedUp,
		StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// VehicleType is the kind of vehicle assigned to a transport.
type VehicleType string

const (
	VehicleTruck        VehicleType = "truck"
	VehicleVan          VehicleType = "van"
	VehicleTempo        VehicleType = "tempo"
	VehicleRefrigerated VehicleType = "refrigerated"
)

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleTruck, VehicleVan, VehicleTempo, VehicleRefrigerated:
		return true
	}
	return false
}

// PaymentStatus tracks settlement of the transport fee.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ContactPerson is who to reach at a pickup or delivery point.
type ContactPerson struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Location is a pickup or delivery point.
type Location struct {
	Address       string                `json:"address"`
	City          string                `json:"city"`
	State         string                `json:"state"`
	Pincode       string                `json:"pincode"`
	Coordinates   *products.Coordinates `json:"coordinates,omitempty"`
	ContactPerson *ContactPerson        `json:"contact_person,omitempty"`
}

// Vehicle describes the assigned vehicle.
type Vehicle struct {
	Type     VehicleType `json:"type"`
	Number   string      `json:"number"`
	Capacity float64     `json:"capacity"`
}

// Cost itemises the transport fee. Total is derived, never supplied: call
// Recompute after changing any component.
type Cost struct {
	BaseFare          int64 `json:"base_fare"`
	DistanceCharge    int64 `json:"distance_charge"`
	LoadingCharge     int64 `json:"loading_charge"`
	UnloadingCharge   int64 `json:"unloading_charge"`
	AdditionalCharges int64 `json:"additional_charges"`
	Discount          int64 `json:"discount"`
	Total             int64 `json:"total"`
}

// Recompute rederives Total from the components.
func (c *Cost) Recompute() {
	c.Total = c.BaseFare + c.DistanceCharge + c.LoadingCharge +
		c.UnloadingCharge + c.AdditionalCharges - c.Discount
}

// Distance between pickup and delivery.
type Distance struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Duration is the estimated travel time.
type Duration struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// TrackingUpdate is one entry in the append-only tracking log.
type TrackingUpdate struct {
	Status    Status            `json:"status"`
	Location  *TrackingLocation `json:"location,omitempty"`
	Note      string            `json:"note,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// TrackingLocation is a free-form position attached to a tracking update.
type TrackingLocation struct {
	Address     string                `json:"address,omitempty"`
	Coordinates *products.Coordinates `json:"coordinates,omitempty"`
}

// Rating is the post-delivery review, written at most once.
type Rating struct {
	Score   int       `json:"score"`
	Review  string    `json:"review,omitempty"`
	RatedBy uuid.UUID `json:"rated_by"`
	RatedAt time.Time `json:"rated_at"`
}

// Document is an attachment reference (invoice, receipt, proof of delivery).
type Document struct {
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Transport is the fulfillment record linking a sold product, its accepted
// bid and the three parties involved in moving the goods.
type Transport struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ProductID     uuid.UUID `json:"product_id" db:"product_id"`
	BidID         uuid.UUID `json:"bid_id" db:"bid_id"`
	TransporterID uuid.UUID `json:"transporter_id" db:"transporter_id"`
	FarmerID      uuid.UUID `json:"farmer_id" db:"farmer_id"`
	BuyerID       uuid.UUID `json:"buyer_id" db:"buyer_id"`

	PickupLocation   Location `json:"pickup_location" db:"pickup_location"`
	DeliveryLocation Location `json:"delivery_location" db:"delivery_location"`
	Vehicle          Vehicle  `json:"vehicle" db:"vehicle"`
	Cost             Cost     `json:"cost" db:"cost"`
	Distance         Distance `json:"distance" db:"distance"`
	Duration         Duration `json:"estimated_duration" db:"estimated_duration"`

	ScheduledPickupTime   time.Time  `json:"scheduled_pickup_time" db:"scheduled_pickup_time"`
	ScheduledDeliveryTime time.Time  `json:"scheduled_delivery_time" db:"scheduled_delivery_time"`
	ActualPickupTime      *time.Time `json:"actual_pickup_time,omitempty" db:"actual_pickup_time"`
	ActualDeliveryTime    *time.Time `json:"actual_delivery_time,omitempty" db:"actual_delivery_time"`

	Status          Status           `json:"status" db:"status"`
	TrackingUpdates []TrackingUpdate `json:"tracking_updates" db:"tracking_updates"`

	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentMethod string        `json:"payment_method" db:"payment_method"`

	Rating    *Rating    `json:"rating,omitempty" db:"rating"`
	Documents []Document `json:"documents,omitempty" db:"documents"`
	Notes     string     `json:"notes,omitempty" db:"notes"`

	CancellationReason string     `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsDelayed is derived on access, never stored.
func (t *Transport) IsDelayed(now time.Time) bool {
	if t.ActualDeliveryTime == nil {
		return t.ScheduledDeliveryTime.Before(now)
	}
	return t.ActualDeliveryTime.After(t.ScheduledDeliveryTime)
}

// IsParty reports whether the user is the farmer, buyer or transporter.
func (t *Transport) IsParty(userID uuid.UUID) bool {
	return t.FarmerID == userID || t.BuyerID == userID || t.TransporterID == userID
}
