package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saleflow/internal/domain"
	"saleflow/internal/notify"
	"saleflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrProductsNotFound = errors.New("one or more products do not exist")
	ErrSaleNotFound     = errors.New("sale not found")
)

// Clock supplies the current time. Injectable so timestamps are
// deterministic in tests.
type Clock func() time.Time

// SaleLine is one requested (product, quantity) pair of a sale.
type SaleLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// SaleService builds and persists immutable sales. A sale either commits
// stock for every line or for none: the first failing reservation unwinds
// everything reserved earlier in the same call.
type SaleService interface {
	CreateSale(ctx context.Context, customerID uuid.UUID, lines []SaleLine, createdBy string) (*domain.Sale, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	List(ctx context.Context, from, to *time.Time) ([]*domain.Sale, error)
}

type saleService struct {
	saleRepo     repository.SaleRepository
	customerRepo repository.CustomerRepository
	productRepo  repository.ProductRepository
	inventory    InventoryService
	sender       notify.Sender
	clock        Clock
	logger       *zap.Logger
}

// NewSaleService creates a new instance of SaleService
func NewSaleService(
	saleRepo repository.SaleRepository,
	customerRepo repository.CustomerRepository,
	productRepo repository.ProductRepository,
	inventory InventoryService,
	sender notify.Sender,
	clock Clock,
	logger *zap.Logger,
) SaleService {
	if clock == nil {
		clock = time.Now
	}
	return &saleService{
		saleRepo:     saleRepo,
		customerRepo: customerRepo,
		productRepo:  productRepo,
		inventory:    inventory,
		sender:       sender,
		clock:        clock,
		logger:       logger,
	}
}

// CreateSale validates the batch, reserves stock line by line and persists
// the sale with unit prices snapshotted from the current catalog. Any
// failure after a partial reservation releases every unit already reserved
// before the error is returned; a half-built sale is never observable.
func (s *saleService) CreateSale(ctx context.Context, customerID uuid.UUID, lines []SaleLine, createdBy string) (*domain.Sale, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidInput
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidInput
		}
	}

	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	// Validate the referenced products as a set before touching any stock.
	productIDs := distinctProductIDs(lines)
	products, err := s.productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve products: %w", err)
	}
	if len(products) != len(productIDs) {
		return nil, ErrProductsNotFound
	}

	reserved := []SaleLine{}
	unwind := func() {
		// Releases must run even when the surrounding context was
		// cancelled, otherwise the reservation leaks.
		releaseCtx := context.WithoutCancel(ctx)
		for _, line := range reserved {
			if err := s.inventory.Release(releaseCtx, line.ProductID, line.Quantity); err != nil {
				s.logger.Error("Failed to release reservation during unwind",
					zap.String("product_id", line.ProductID.String()),
					zap.Int("quantity", line.Quantity),
					zap.Error(err),
				)
			}
		}
	}

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			unwind()
			return nil, err
		}

		if err := s.inventory.TryReserve(ctx, line.ProductID, line.Quantity); err != nil {
			unwind()

			var stockErr *InsufficientStockError
			switch {
			case errors.As(err, &stockErr):
				return nil, stockErr
			case errors.Is(err, ErrProductInactive):
				// An inactive product is not sellable; to the caller that
				// is the same outcome as having no stock.
				return nil, &InsufficientStockError{
					ProductID:   line.ProductID,
					ProductName: products[line.ProductID].Name,
				}
			case errors.Is(err, repository.ErrProductNotFound):
				return nil, ErrProductsNotFound
			default:
				return nil, fmt.Errorf("failed to reserve stock: %w", err)
			}
		}
		reserved = append(reserved, line)
	}

	sale := &domain.Sale{
		ID:           uuid.New(),
		CustomerID:   customer.ID,
		CustomerName: customer.FullName,
		CreatedBy:    createdBy,
		CreatedAt:    s.clock(),
	}

	for _, line := range lines {
		product := products[line.ProductID]
		subtotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		sale.Items = append(sale.Items, &domain.SaleItem{
			ID:          uuid.New(),
			SaleID:      sale.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.UnitPrice,
			Subtotal:    subtotal,
		})
	}
	sale.Total = sale.SumSubtotals()

	if err := s.saleRepo.Create(ctx, sale); err != nil {
		unwind()
		return nil, fmt.Errorf("failed to persist sale: %w", err)
	}

	s.logger.Info("Sale created",
		zap.String("sale_id", sale.ID.String()),
		zap.String("customer_id", customer.ID.String()),
		zap.String("total", sale.Total.StringFixed(2)),
		zap.Int("items", len(sale.Items)),
	)

	if strings.TrimSpace(customer.Email) != "" {
		s.sendConfirmation(ctx, customer.Email, sale)
	}

	return sale, nil
}

// Get retrieves one sale with its items materialized
func (s *saleService) Get(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	sale, err := s.saleRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSaleNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	return sale, nil
}

// List retrieves sales with an optional creation date range
func (s *saleService) List(ctx context.Context, from, to *time.Time) ([]*domain.Sale, error) {
	sales, err := s.saleRepo.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

// sendConfirmation is fire-and-forget: a failed confirmation never fails
// the sale it confirms.
func (s *saleService) sendConfirmation(ctx context.Context, email string, sale *domain.Sale) {
	subject := fmt.Sprintf("Purchase confirmation #%s", sale.ID.String()[:8])

	var lines strings.Builder
	for _, item := range sale.Items {
		fmt.Fprintf(&lines, "<li>%s x%d - %s</li>", item.ProductName, item.Quantity, item.Subtotal.StringFixed(2))
	}
	body := fmt.Sprintf("<p>Thank you for your purchase.</p><p>Total: %s</p><ul>%s</ul>",
		sale.Total.StringFixed(2), lines.String())

	if err := s.sender.Send(ctx, email, subject, body); err != nil {
		s.logger.Warn("Failed to send sale confirmation",
			zap.String("sale_id", sale.ID.String()),
			zap.Error(err),
		)
	}
}

func distinctProductIDs(lines []SaleLine) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	ids := []uuid.UUID{}
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}
