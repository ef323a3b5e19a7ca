package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"saleflow/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product is not active")
	ErrStockExhausted  = errors.New("insufficient stock")
)

// ProductSort is a whitelisted sort field for product listings.
type ProductSort string

const (
	ProductSortName  ProductSort = "name"
	ProductSortPrice ProductSort = "unit_price"
	ProductSortStock ProductSort = "stock"
)

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search        string
	OnlyAvailable bool
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	SortBy        ProductSort
	SortDesc      bool
}

// ProductRepository defines the interface for product data access,
// including the atomic stock primitives the inventory ledger is built on.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	List(ctx context.Context, filter ProductFilter, page, pageSize int) ([]*domain.Product, int, error)

	// DecrementStock atomically verifies the product is active with at
	// least qty units and subtracts qty in the same statement. Returns
	// ErrProductNotFound, ErrProductInactive or ErrStockExhausted when
	// the condition does not hold.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error

	// IncrementStock adds qty back and reactivates the product, so a
	// restored unit makes it sellable again.
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) error

	// DeactivateIfExhausted flips active off when stock has reached zero.
	DeactivateIfExhausted(ctx context.Context, id uuid.UUID) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, unit_price, stock, active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.UnitPrice,
		product.Stock,
		product.Active,
		product.CreatedBy,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update updates an existing product in the database using parameterized queries
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, unit_price = $3, stock = $4, active = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.UnitPrice,
		product.Stock,
		product.Active,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Delete removes a product from the database using parameterized queries
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by ID using parameterized queries
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, unit_price, stock, active, created_by, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.UnitPrice,
		&product.Stock,
		&product.Active,
		&product.CreatedBy,
		&product.CreatedAt,
		&product.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// FindByIDs retrieves a set of products keyed by ID. Missing IDs are simply
// absent from the returned map; the caller decides whether that is an error.
func (r *productRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*domain.Product{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, name, unit_price, stock, active, created_by, created_at, updated_at
		FROM products
		WHERE id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find products by IDs: %w", err)
	}
	defer rows.Close()

	products := map[uuid.UUID]*domain.Product{}
	for rows.Next() {
		product := &domain.Product{}
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.UnitPrice,
			&product.Stock,
			&product.Active,
			&product.CreatedBy,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// List retrieves products with filtering, pagination, and sorting
func (r *productRepository) List(ctx context.Context, filter ProductFilter, page, pageSize int) ([]*domain.Product, int, error) {
	// Validate sort field to prevent SQL injection
	sortBy := filter.SortBy
	switch sortBy {
	case ProductSortName, ProductSortPrice, ProductSortStock:
	default:
		sortBy = ProductSortName
	}

	sortOrder := "ASC"
	if filter.SortDesc {
		sortOrder = "DESC"
	}

	// Build the WHERE clause
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if strings.TrimSpace(filter.Search) != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+strings.TrimSpace(filter.Search)+"%")
		argIndex++
	}

	if filter.OnlyAvailable {
		conditions = append(conditions, "active AND stock > 0")
	}

	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("unit_price >= $%d", argIndex))
		args = append(args, *filter.MinPrice)
		argIndex++
	}

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("unit_price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total products
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	// Calculate offset
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT id, name, unit_price, stock, active, created_by, created_at, updated_at
		FROM products
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, sortBy, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product := &domain.Product{}
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.UnitPrice,
			&product.Stock,
			&product.Active,
			&product.CreatedBy,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

// DecrementStock performs the compare-and-decrement in a single UPDATE so
// two concurrent reservations can never both succeed past available stock.
// The row-level write lock taken by Postgres serializes reservations per
// product; reservations for different products do not contend.
func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND active AND stock >= $2
	`

	result, err := r.db.ExecContext(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	// The guarded UPDATE matched nothing; read the row to tell the caller why.
	var active bool
	var stock int
	err = r.db.QueryRowContext(ctx, `SELECT active, stock FROM products WHERE id = $1`, id).Scan(&active, &stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to inspect product stock: %w", err)
	}

	if !active {
		return ErrProductInactive
	}
	return ErrStockExhausted
}

// IncrementStock releases qty units back and reactivates the product.
func (r *productRepository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	query := `
		UPDATE products
		SET stock = stock + $2, active = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, qty)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// DeactivateIfExhausted flips active off once stock is drained. The stock
// guard keeps a concurrent release from being clobbered.
func (r *productRepository) DeactivateIfExhausted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE products
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1 AND stock = 0
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}

	return nil
}
