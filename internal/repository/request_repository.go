package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"saleflow/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrRequestNotFound = errors.New("product request not found")
)

// RequestRepository defines the interface for product request data access.
// Requests are never deleted; they are the audit trail of the approval
// workflow.
type RequestRepository interface {
	Create(ctx context.Context, request *domain.ProductRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.ProductRequest, error)
	List(ctx context.Context) ([]*domain.ProductRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*domain.ProductRequest, error)

	// UpdateOutcome persists the result of a processing pass: status,
	// response message, processing metadata and the sale reference.
	UpdateOutcome(ctx context.Context, request *domain.ProductRequest) error
}

type requestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new instance of RequestRepository
func NewRequestRepository(db *sql.DB) RequestRepository {
	return &requestRepository{db: db}
}

// Create inserts a new product request using parameterized queries
func (r *requestRepository) Create(ctx context.Context, request *domain.ProductRequest) error {
	query := `
		INSERT INTO product_requests
			(id, product_id, quantity, note, requested_by, requested_email, requested_at, status, response_message, processed_at, processed_by, sale_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		request.ID,
		request.ProductID,
		request.Quantity,
		request.Note,
		request.RequestedBy,
		request.RequestedEmail,
		request.RequestedAt,
		request.Status,
		request.ResponseMessage,
		request.ProcessedAt,
		nullString(request.ProcessedBy),
		request.SaleID,
	)

	if err != nil {
		return fmt.Errorf("failed to create product request: %w", err)
	}

	return nil
}

// FindByID retrieves a product request with its product name joined in.
// The join is outer: a request outlives its product, so the name is empty
// when the product has since been retired.
func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ProductRequest, error) {
	query := `
		SELECT r.id, r.product_id, COALESCE(p.name, ''), r.quantity, r.note, r.requested_by, r.requested_email,
		       r.requested_at, r.status, r.response_message, r.processed_at, r.processed_by, r.sale_id
		FROM product_requests r
		LEFT JOIN products p ON p.id = r.product_id
		WHERE r.id = $1
	`

	request, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to find product request by ID: %w", err)
	}

	return request, nil
}

// List retrieves all product requests, newest first
func (r *requestRepository) List(ctx context.Context) ([]*domain.ProductRequest, error) {
	query := `
		SELECT r.id, r.product_id, COALESCE(p.name, ''), r.quantity, r.note, r.requested_by, r.requested_email,
		       r.requested_at, r.status, r.response_message, r.processed_at, r.processed_by, r.sale_id
		FROM product_requests r
		LEFT JOIN products p ON p.id = r.product_id
		ORDER BY r.requested_at DESC
	`

	return r.queryRequests(ctx, query)
}

// ListByRequester retrieves the requests submitted by one user, newest first
func (r *requestRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.ProductRequest, error) {
	query := `
		SELECT r.id, r.product_id, COALESCE(p.name, ''), r.quantity, r.note, r.requested_by, r.requested_email,
		       r.requested_at, r.status, r.response_message, r.processed_at, r.processed_by, r.sale_id
		FROM product_requests r
		LEFT JOIN products p ON p.id = r.product_id
		WHERE r.requested_by = $1
		ORDER BY r.requested_at DESC
	`

	return r.queryRequests(ctx, query, requesterID)
}

// UpdateOutcome persists a processing result using parameterized queries
func (r *requestRepository) UpdateOutcome(ctx context.Context, request *domain.ProductRequest) error {
	query := `
		UPDATE product_requests
		SET status = $2, response_message = $3, processed_at = $4, processed_by = $5, sale_id = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		request.ID,
		request.Status,
		request.ResponseMessage,
		request.ProcessedAt,
		nullString(request.ProcessedBy),
		request.SaleID,
	)

	if err != nil {
		return fmt.Errorf("failed to update product request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrRequestNotFound
	}

	return nil
}

func (r *requestRepository) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*domain.ProductRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list product requests: %w", err)
	}
	defer rows.Close()

	requests := []*domain.ProductRequest{}
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product request: %w", err)
		}
		requests = append(requests, request)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product requests: %w", err)
	}

	return requests, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*domain.ProductRequest, error) {
	request := &domain.ProductRequest{}
	var productID uuid.NullUUID
	var processedBy sql.NullString

	err := row.Scan(
		&request.ID,
		&productID,
		&request.ProductName,
		&request.Quantity,
		&request.Note,
		&request.RequestedBy,
		&request.RequestedEmail,
		&request.RequestedAt,
		&request.Status,
		&request.ResponseMessage,
		&request.ProcessedAt,
		&processedBy,
		&request.SaleID,
	)
	if err != nil {
		return nil, err
	}

	// Nil product id means the product was retired after the request
	request.ProductID = productID.UUID
	request.ProcessedBy = processedBy.String
	return request, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
