package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvthao/greenroute/internal/model"
)

// ErrCustomerNotFound is returned when the customer id does not resolve.
var ErrCustomerNotFound = errors.New("customer not found")

// CustomerRepository is the read-only view of the customer directory
// the scheduler consumes. Customer CRUD lives elsewhere in the app.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository creates a new customer repository.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetCustomer fetches a customer with its current coordinates and tier.
func (r *CustomerRepository) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	c := &model.Customer{}
	var lat, lon *float64
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, tier, lat, lon, default_visit_minutes
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Tier, &lat, &lon, &c.DefaultVisitMinutes)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer %d: %w", id, err)
	}
	if lat != nil && lon != nil {
		c.Location = &model.Location{Lat: *lat, Lon: *lon}
	}
	return c, nil
}
