package repositories

import (
	"context"

	"storage-backend/internal/models"
)

type CustomerRepository struct {
	DB DBTX
}

func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{DB: db}
}

func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) error {
	return r.DB.QueryRow(ctx,
		`INSERT INTO customers(name, phone, email)
         VALUES($1, $2, $3)
         RETURNING id, created_at`,
		c.Name, c.Phone, c.Email,
	).Scan(&c.ID, &c.CreatedAt)
}

func (r *CustomerRepository) Get(ctx context.Context, id int64) (*models.Customer, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT id, name, phone, email, created_at FROM customers WHERE id=$1`, id)

	var customer models.Customer
	if err := row.Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email, &customer.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}
