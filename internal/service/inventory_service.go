package service

import (
	"context"
	"errors"
	"fmt"

	"saleflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrProductInactive = errors.New("product is not active")
)

// InsufficientStockError reports that a reservation asked for more units
// than the product has available. It carries the product name so callers
// can surface which item failed.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("insufficient stock for product %q", e.ProductName)
	}
	return "insufficient stock"
}

// InventoryService is the single source of truth for sellable quantity.
// All stock mutations go through TryReserve and Release; correctness under
// concurrent callers comes from the repository's guarded UPDATE, not from
// any in-process lock.
type InventoryService interface {
	// TryReserve atomically checks that the product exists, is active and
	// has at least qty units, and commits the decrement in the same step.
	// Returns repository.ErrProductNotFound, ErrProductInactive or an
	// *InsufficientStockError; these are per-item outcomes for the caller
	// to handle, never fatal.
	TryReserve(ctx context.Context, productID uuid.UUID, qty int) error

	// Release returns qty units to the product and reactivates it, so a
	// product drained to zero becomes sellable again when stock comes back.
	Release(ctx context.Context, productID uuid.UUID, qty int) error
}

type inventoryService struct {
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

// NewInventoryService creates a new instance of InventoryService
func NewInventoryService(productRepo repository.ProductRepository, logger *zap.Logger) InventoryService {
	return &inventoryService{
		productRepo: productRepo,
		logger:      logger,
	}
}

// TryReserve commits a reservation through the repository's
// compare-and-decrement, then retires the product if the reservation
// drained it to zero.
func (s *inventoryService) TryReserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidInput
	}

	err := s.productRepo.DecrementStock(ctx, productID, qty)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			return repository.ErrProductNotFound
		case errors.Is(err, repository.ErrProductInactive):
			return ErrProductInactive
		case errors.Is(err, repository.ErrStockExhausted):
			return s.insufficientStock(ctx, productID)
		default:
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
	}

	// A product drained to zero is no longer sellable. The guard inside
	// DeactivateIfExhausted keeps a concurrent release from being undone.
	if err := s.productRepo.DeactivateIfExhausted(ctx, productID); err != nil {
		s.logger.Warn("Failed to deactivate exhausted product",
			zap.String("product_id", productID.String()),
			zap.Error(err),
		)
	}

	return nil
}

// Release returns stock to the product and reactivates it
func (s *inventoryService) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidInput
	}

	if err := s.productRepo.IncrementStock(ctx, productID, qty); err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	return nil
}

// insufficientStock builds the typed error, resolving the product name for
// the caller-facing message.
func (s *inventoryService) insufficientStock(ctx context.Context, productID uuid.UUID) error {
	stockErr := &InsufficientStockError{ProductID: productID}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err == nil {
		stockErr.ProductName = product.Name
	}

	return stockErr
}
