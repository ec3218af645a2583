package users

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of the marketplace a user acts on.
type Role string

const (
	RoleFarmer      Role = "farmer"
	RoleBuyer       Role = "buyer"
	RoleTransporter Role = "transporter"
)

// Valid reports whether the role is one of the three marketplace roles.
func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleBuyer, RoleTransporter:
		return true
	}
	return false
}

// Address is a postal address with an optional country (defaults to India).
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country,omitempty"`
}

// FarmerDetails describes a farmer's operation.
type FarmerDetails struct {
	FarmSize       float64  `json:"farm_size,omitempty"`
	FarmType       string   `json:"farm_type,omitempty"` // organic, conventional, mixed
	Experience     int      `json:"experience,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// BuyerDetails describes a buyer's business.
type BuyerDetails struct {
	BusinessName string `json:"business_name,omitempty"`
	GSTNumber    string `json:"gst_number,omitempty"`
	BusinessType string `json:"business_type,omitempty"` // retailer, wholesaler, restaurant, processor, other
}

// TransporterDetails describes a transporter's vehicle and license.
type TransporterDetails struct {
	VehicleType   string  `json:"vehicle_type,omitempty"` // truck, van, tempo, refrigerated
	VehicleNumber string  `json:"vehicle_number,omitempty"`
	LicenseNumber string  `json:"license_number,omitempty"`
	Capacity      float64 `json:"capacity,omitempty"`
}

// RatingAggregate is the running average rating for a user.
type RatingAggregate struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// User is a marketplace account. Accounts are never hard-deleted; the Active
// flag soft-deactivates them.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	Phone        string    `json:"phone" db:"phone"`
	Address      Address   `json:"address" db:"address"`
	ProfileImage *string   `json:"profile_image,omitempty" db:"profile_image"`

	FarmerDetails      *FarmerDetails      `json:"farmer_details,omitempty" db:"farmer_details"`
	BuyerDetails       *BuyerDetails       `json:"buyer_details,omitempty" db:"buyer_details"`
	TransporterDetails *TransporterDetails `json:"transporter_details,omitempty" db:"transporter_details"`

	Rating    RatingAggregate `json:"rating" db:"rating"`
	Verified  bool            `json:"verified" db:"verified"`
	Active    bool            `json:"active" db:"active"`
	LastLogin *time.Time      `json:"last_login,omitempty" db:"last_login"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// PublicProfile is the projection of a User safe to show to other users.
type PublicProfile struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Role     Role            `json:"role"`
	City     string          `json:"city"`
	State    string          `json:"state"`
	Rating   RatingAggregate `json:"rating"`
	Verified bool            `json:"verified"`
}

// Public returns the user's public projection.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:       u.ID,
		Name:     u.Name,
		Role:     u.Role,
		City:     u.Address.City,
		State:    u.Address.State,
		Rating:   u.Rating,
		Verified: u.Verified,
	}
}
