package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"saleflow/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrSaleNotFound = errors.New("sale not found")
)

// SaleRepository defines the interface for sale data access. Sales are
// persisted and removed together with their items in a single transaction;
// the core never observes a half-built aggregate.
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	List(ctx context.Context, from, to *time.Time) ([]*domain.Sale, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteWithRestock removes a sale and returns qty units of the product
	// to stock in the same transaction. Either both happen or neither does,
	// so a failed compensation can be retried without losing stock.
	DeleteWithRestock(ctx context.Context, id uuid.UUID, productID uuid.UUID, qty int) error

	// ProductHasSales reports whether any sale item references the product.
	ProductHasSales(ctx context.Context, productID uuid.UUID) (bool, error)

	// RemoveProductFromSales strips the product's items from every sale
	// that contains them, recomputes each affected sale's total from the
	// remaining items and deletes sales left with no items, all in one
	// transaction. It returns the ids of the deleted sales.
	RemoveProductFromSales(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)
}

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository creates a new instance of SaleRepository
func NewSaleRepository(db *sql.DB) SaleRepository {
	return &saleRepository{db: db}
}

// Create inserts a sale and all of its items in one transaction
func (r *saleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	saleQuery := `
		INSERT INTO sales (id, customer_id, total, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = tx.ExecContext(
		ctx,
		saleQuery,
		sale.ID,
		sale.CustomerID,
		sale.Total,
		sale.CreatedBy,
		sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}

	itemQuery := `
		INSERT INTO sale_items (id, sale_id, product_id, position, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for i, item := range sale.Items {
		_, err = tx.ExecContext(
			ctx,
			itemQuery,
			item.ID,
			item.SaleID,
			item.ProductID,
			i,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("failed to create sale item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale: %w", err)
	}

	return nil
}

// FindByID retrieves a fully materialized sale: header, customer name and
// items with product names joined in.
func (r *saleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	query := `
		SELECT s.id, s.customer_id, c.full_name, s.total, s.created_by, s.created_at
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
	`

	sale := &domain.Sale{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sale.ID,
		&sale.CustomerID,
		&sale.CustomerName,
		&sale.Total,
		&sale.CreatedBy,
		&sale.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to find sale by ID: %w", err)
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	return sale, nil
}

// List retrieves sales with an optional creation date range, newest first
func (r *saleRepository) List(ctx context.Context, from, to *time.Time) ([]*domain.Sale, error) {
	query := `
		SELECT s.id, s.customer_id, c.full_name, s.total, s.created_by, s.created_at
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
	`
	conditions := ""
	args := []interface{}{}
	argIndex := 1

	if from != nil {
		conditions = fmt.Sprintf(" WHERE s.created_at >= $%d", argIndex)
		args = append(args, *from)
		argIndex++
	}

	if to != nil {
		if conditions == "" {
			conditions = fmt.Sprintf(" WHERE s.created_at <= $%d", argIndex)
		} else {
			conditions += fmt.Sprintf(" AND s.created_at <= $%d", argIndex)
		}
		args = append(args, *to)
	}

	query += conditions + " ORDER BY s.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []*domain.Sale{}
	for rows.Next() {
		sale := &domain.Sale{}
		err := rows.Scan(
			&sale.ID,
			&sale.CustomerID,
			&sale.CustomerName,
			&sale.Total,
			&sale.CreatedBy,
			&sale.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	for _, sale := range sales {
		items, err := r.loadItems(ctx, sale.ID)
		if err != nil {
			return nil, err
		}
		sale.Items = items
	}

	return sales, nil
}

// Delete removes a sale and its items in one transaction
func (r *saleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete sale items: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSaleNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale deletion: %w", err)
	}

	return nil
}

// DeleteWithRestock removes a sale and restores the reserved stock atomically.
// If the sale is already gone the transaction is rolled back and
// ErrSaleNotFound is returned without touching stock.
func (r *saleRepository) DeleteWithRestock(ctx context.Context, id uuid.UUID, productID uuid.UUID, qty int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete sale items: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSaleNotFound
	}

	restockQuery := `
		UPDATE products
		SET stock = stock + $2, active = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, restockQuery, productID, qty); err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale deletion: %w", err)
	}

	return nil
}

// ProductHasSales reports whether any sale item references the product
func (r *saleRepository) ProductHasSales(ctx context.Context, productID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)`,
		productID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check sales for product: %w", err)
	}
	return exists, nil
}

// RemoveProductFromSales reconciles historical sales when a product is
// force-retired. Totals of affected sales are recomputed from the items
// that remain, so the total == sum(subtotals) invariant is restored.
func (r *saleRepository) RemoveProductFromSales(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT DISTINCT sale_id FROM sale_items WHERE product_id = $1`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find affected sales: %w", err)
	}

	affected := []uuid.UUID{}
	for rows.Next() {
		var saleID uuid.UUID
		if err := rows.Scan(&saleID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sale id: %w", err)
		}
		affected = append(affected, saleID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating affected sales: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID); err != nil {
		return nil, fmt.Errorf("failed to delete sale items: %w", err)
	}

	deleted := []uuid.UUID{}
	for _, saleID := range affected {
		var remaining int
		err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(*) FROM sale_items WHERE sale_id = $1`,
			saleID,
		).Scan(&remaining)
		if err != nil {
			return nil, fmt.Errorf("failed to count remaining items: %w", err)
		}

		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID); err != nil {
				return nil, fmt.Errorf("failed to delete empty sale: %w", err)
			}
			deleted = append(deleted, saleID)
			continue
		}

		_, err = tx.ExecContext(
			ctx,
			`UPDATE sales SET total = (SELECT COALESCE(SUM(subtotal), 0) FROM sale_items WHERE sale_id = $1) WHERE id = $1`,
			saleID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to recompute sale total: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sale reconciliation: %w", err)
	}

	return deleted, nil
}

func (r *saleRepository) loadItems(ctx context.Context, saleID uuid.UUID) ([]*domain.SaleItem, error) {
	query := `
		SELECT i.id, i.sale_id, i.product_id, p.name, i.quantity, i.unit_price, i.subtotal
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = $1
		ORDER BY i.position
	`

	rows, err := r.db.QueryContext(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sale items: %w", err)
	}
	defer rows.Close()

	items := []*domain.SaleItem{}
	for rows.Next() {
		item := &domain.SaleItem{}
		err := rows.Scan(
			&item.ID,
			&item.SaleID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale items: %w", err)
	}

	return items, nil
}
