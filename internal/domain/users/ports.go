package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/agrobid/agrobid/pkg/database"
)

// ListFilter narrows a user listing. Zero values mean "any".
type ListFilter struct {
	Role     Role
	City     string
	State    string
	Verified *bool
	Limit    int
	Offset   int
}

// Repository defines the interface for user persistence
type Repository interface {
	// CreateUser inserts a user within a transaction
	CreateUser(ctx context.Context, tx database.DBTX, user *User) error

	// GetByEmail returns the user with the given email, or nil when absent
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID returns the user with the given id, or nil when absent
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// Update persists mutable profile fields
	Update(ctx context.Context, user *User) error

	// List returns active users matching the filter plus the total match count
	List(ctx context.Context, filter ListFilter) ([]*User, int64, error)
}
