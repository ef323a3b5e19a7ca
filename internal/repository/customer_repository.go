package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"saleflow/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
)

// CustomerRepository defines the interface for customer data access
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) error
	Update(ctx context.Context, customer *domain.Customer) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	FindByOwner(ctx context.Context, ownerID string) (*domain.Customer, error)
	FindByEmail(ctx context.Context, email, createdBy string) (*domain.Customer, error)
	List(ctx context.Context, search string) ([]*domain.Customer, error)
}

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a new instance of CustomerRepository
func NewCustomerRepository(db *sql.DB) CustomerRepository {
	return &customerRepository{db: db}
}

// Create inserts a new customer into the database using parameterized queries
func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (id, full_name, email, phone, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		customer.ID,
		customer.FullName,
		customer.Email,
		customer.Phone,
		customer.CreatedBy,
		customer.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// Update updates an existing customer in the database using parameterized queries
func (r *customerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	query := `
		UPDATE customers
		SET full_name = $2, email = $3, phone = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		customer.ID,
		customer.FullName,
		customer.Email,
		customer.Phone,
	)

	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCustomerNotFound
	}

	return nil
}

// Delete removes a customer from the database using parameterized queries
func (r *customerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM customers WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCustomerNotFound
	}

	return nil
}

// FindByID retrieves a customer by ID using parameterized queries
func (r *customerRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	query := `
		SELECT id, full_name, email, phone, created_by, created_at
		FROM customers
		WHERE id = $1
	`

	customer := &domain.Customer{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&customer.ID,
		&customer.FullName,
		&customer.Email,
		&customer.Phone,
		&customer.CreatedBy,
		&customer.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to find customer by ID: %w", err)
	}

	return customer, nil
}

// FindByOwner retrieves the customer record owned by the given user id,
// used to match a requester to their own customer profile.
func (r *customerRepository) FindByOwner(ctx context.Context, ownerID string) (*domain.Customer, error) {
	query := `
		SELECT id, full_name, email, phone, created_by, created_at
		FROM customers
		WHERE created_by = $1
		ORDER BY created_at
		LIMIT 1
	`

	customer := &domain.Customer{}
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&customer.ID,
		&customer.FullName,
		&customer.Email,
		&customer.Phone,
		&customer.CreatedBy,
		&customer.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to find customer by owner: %w", err)
	}

	return customer, nil
}

// FindByEmail retrieves a customer by normalized email, scoped to the tenant
// that created the record.
func (r *customerRepository) FindByEmail(ctx context.Context, email, createdBy string) (*domain.Customer, error) {
	query := `
		SELECT id, full_name, email, phone, created_by, created_at
		FROM customers
		WHERE LOWER(email) = LOWER($1) AND created_by = $2
		ORDER BY created_at
		LIMIT 1
	`

	customer := &domain.Customer{}
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(email), createdBy).Scan(
		&customer.ID,
		&customer.FullName,
		&customer.Email,
		&customer.Phone,
		&customer.CreatedBy,
		&customer.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to find customer by email: %w", err)
	}

	return customer, nil
}

// List retrieves customers with an optional name/email search
func (r *customerRepository) List(ctx context.Context, search string) ([]*domain.Customer, error) {
	query := `
		SELECT id, full_name, email, phone, created_by, created_at
		FROM customers
		ORDER BY full_name
	`
	args := []interface{}{}

	if strings.TrimSpace(search) != "" {
		query = `
			SELECT id, full_name, email, phone, created_by, created_at
			FROM customers
			WHERE full_name ILIKE $1 OR email ILIKE $1
			ORDER BY full_name
		`
		args = append(args, "%"+strings.TrimSpace(search)+"%")
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	customers := []*domain.Customer{}
	for rows.Next() {
		customer := &domain.Customer{}
		err := rows.Scan(
			&customer.ID,
			&customer.FullName,
			&customer.Email,
			&customer.Phone,
			&customer.CreatedBy,
			&customer.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, customer)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}

	return customers, nil
}
