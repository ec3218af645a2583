package products

import (
	"time"

	"github.com/google/uuid"
)

// Status is the product lifecycle state. Transitions only move forward
// (active → bidding → sold/expired) except a farmer-initiated cancellation.
type Status string

const (
	StatusActive    Status = "active"
	StatusBidding   Status = "bidding"
	StatusSold      Status = "sold"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Category of produce.
type Category string

const (
	CategoryVegetables Category = "vegetables"
	CategoryFruits     Category = "fruits"
	CategoryGrains     Category = "grains"
	CategoryPulses     Category = "pulses"
	CategorySpices     Category = "spices"
	CategoryDairy      Category = "dairy"
	CategoryMeat       Category = "meat"
	CategoryPoultry    Category = "poultry"
	CategoryFish       Category = "fish"
	CategoryOrganic    Category = "organic"
	CategoryOther      Category = "other"
)

// Valid reports whether the category is a known one.
func (c Category) Valid() bool {
	switch c {
	case CategoryVegetables, CategoryFruits, CategoryGrains, CategoryPulses,
		CategorySpices, CategoryDairy, CategoryMeat, CategoryPoultry,
		CategoryFish, CategoryOrganic, CategoryOther:
		return true
	}
	return false
}

// Quantity is an amount of produce in a trade unit.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"` // kg, quintal, ton, litre, dozen, piece
}

// ValidUnit reports whether the quantity unit is a known one.
func (q Quantity) ValidUnit() bool {
	switch q.Unit {
	case "kg", "quintal", "ton", "litre", "dozen", "piece":
		return true
	}
	return false
}

// Coordinates is an optional geographic position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is where the produce is available for pickup.
type Location struct {
	Address     string       `json:"address"`
	City        string       `json:"city"`
	State       string       `json:"state"`
	Pincode     string       `json:"pincode"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Quality grading of the produce.
type Quality struct {
	Grade         string `json:"grade"`         // A+, A, B+, B, C
	Certification string `json:"certification"` // organic, pesticide-free, none
}

// Product is a produce listing owned by exactly one farmer. Prices are in the
// smallest currency unit. CurrentPrice never drops below BasePrice while
// bidding is open.
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	FarmerID    uuid.UUID `json:"farmer_id" db:"farmer_id"`
	Name        string    `json:"name" db:"name"`
	Category    Category  `json:"category" db:"category"`
	Description string    `json:"description" db:"description"`
	Quantity    Quantity  `json:"quantity" db:"quantity"`

	BasePrice           int64 `json:"base_price" db:"base_price"`
	CurrentPrice        int64 `json:"current_price" db:"current_price"`
	MinimumBidIncrement int64 `json:"minimum_bid_increment" db:"minimum_bid_increment"`

	Images   []string `json:"images" db:"images"`
	Location Location `json:"location" db:"location"`
	Quality  Quality  `json:"quality" db:"quality"`

	HarvestDate    time.Time `json:"harvest_date" db:"harvest_date"`
	AvailableFrom  time.Time `json:"available_from" db:"available_from"`
	AvailableUntil time.Time `json:"available_until" db:"available_until"`
	BiddingEndTime time.Time `json:"bidding_end_time" db:"bidding_end_time"`

	Status    Status     `json:"status" db:"status"`
	TotalBids int        `json:"total_bids" db:"total_bids"`
	// HighestBidID is a display hint, not a source of truth: the referenced
	// bid may have been withdrawn without this pointer being cleared.
	HighestBidID *uuid.UUID `json:"highest_bid_id,omitempty" db:"highest_bid_id"`
	WinnerID     *uuid.UUID `json:"winner_id,omitempty" db:"winner_id"`
	SoldPrice    *int64     `json:"sold_price,omitempty" db:"sold_price"`
	SoldAt       *time.Time `json:"sold_at,omitempty" db:"sold_at"`

	Views    int64    `json:"views" db:"views"`
	Featured bool     `json:"featured" db:"featured"`
	Verified bool     `json:"verified" db:"verified"`
	Tags     []string `json:"tags,omitempty" db:"tags"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ResolveStatus returns the status the product should have at the given
// instant. Expiry is observed lazily: a product past its bidding window that
// nothing touched keeps its stored status until the next touch.
func ResolveStatus(p *Product, now time.Time) Status {
	if (p.Status == StatusActive || p.Status == StatusBidding) && p.BiddingEndTime.Before(now) {
		return StatusExpired
	}
	return p.Status
}

// AcceptingBids reports whether a bid may be placed at the given instant.
func (p *Product) AcceptingBids(now time.Time) bool {
	if p.Status != StatusActive && p.Status != StatusBidding {
		return false
	}
	return p.BiddingEndTime.After(now)
}

// MinimumAcceptableBid is the floor for the next bid; equality is acceptable.
func (p *Product) MinimumAcceptableBid() int64 {
	return p.CurrentPrice + p.MinimumBidIncrement
}

// IsOwnedBy reports whether the given user is the listing farmer.
func (p *Product) IsOwnedBy(userID uuid.UUID) bool {
	return p.FarmerID == userID
}

// TimeRemaining returns the time left in the bidding window, floored at zero.
func (p *Product) TimeRemaining(now time.Time) time.Duration {
	if d := p.BiddingEndTime.Sub(now); d > 0 {
		return d
	}
	return 0
}
