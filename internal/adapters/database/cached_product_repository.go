package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/pkg/database"
)

// CachedProductRepository layers a read cache over the product store.
// Product detail pages are by far the hottest read path; everything that
// mutates a product invalidates its key. Locked reads always go to Postgres.
type CachedProductRepository struct {
	primary *PostgresProductRepository
	client  *redis.Client
	ttl     time.Duration
}

func NewCachedProductRepository(primary *PostgresProductRepository, client *redis.Client, ttl time.Duration) *CachedProductRepository {
	return &CachedProductRepository{
		primary: primary,
		client:  client,
		ttl:     ttl,
	}
}

func productKey(id uuid.UUID) string {
	return "product:" + id.String()
}

func (r *CachedProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*products.Product, error) {
	cached, err := r.client.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var product products.Product
		if err := json.Unmarshal(cached, &product); err == nil {
			return &product, nil
		}
	}

	product, err := r.primary.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product != nil {
		if data, err := json.Marshal(product); err == nil {
			r.client.Set(ctx, productKey(id), data, r.ttl)
		}
	}
	return product, nil
}

// GetByIDForUpdate must observe the latest committed row, so it bypasses the
// cache entirely.
func (r *CachedProductRepository) GetByIDForUpdate(ctx context.Context, tx database.DBTX, id uuid.UUID) (*products.Product, error) {
	return r.primary.GetByIDForUpdate(ctx, tx, id)
}

func (r *CachedProductRepository) Create(ctx context.Context, product *products.Product) error {
	return r.primary.Create(ctx, product)
}

func (r *CachedProductRepository) Update(ctx context.Context, product *products.Product) error {
	defer r.client.Del(ctx, productKey(product.ID))
	return r.primary.Update(ctx, product)
}

func (r *CachedProductRepository) UpdateTx(ctx context.Context, tx database.DBTX, product *products.Product) error {
	defer r.client.Del(ctx, productKey(product.ID))
	return r.primary.UpdateTx(ctx, tx, product)
}

func (r *CachedProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.client.Del(ctx, productKey(id))
	return r.primary.Delete(ctx, id)
}

func (r *CachedProductRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	// View counts tolerate staleness; the cached copy catches up on expiry.
	return r.primary.IncrementViews(ctx, id)
}

func (r *CachedProductRepository) List(ctx context.Context, filter products.ListFilter) ([]*products.Product, int64, error) {
	return r.primary.List(ctx, filter)
}
