package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saleflow/internal/domain"
	"saleflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// RetireResult reports what retiring a product actually did. DeletedSaleIDs
// lets the caller clean up artifacts derived from removed sales, such as
// stored receipts.
type RetireResult struct {
	Removed        bool        `json:"removed"`
	SetInactive    bool        `json:"set_inactive"`
	HasSales       bool        `json:"has_sales"`
	DeletedSaleIDs []uuid.UUID `json:"deleted_sale_ids"`
}

// ProductService manages the catalog, including retirement of products that
// historical sales still reference.
type ProductService interface {
	Create(ctx context.Context, name string, unitPrice decimal.Decimal, stock int, createdBy string) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, name string, unitPrice decimal.Decimal, stock int, active bool) (*domain.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, filter repository.ProductFilter, page, pageSize int) ([]*domain.Product, int, error)

	// Retire removes or deactivates a product. Products without sales are
	// deleted outright. Products with sales are deactivated unless force
	// is set, in which case their sale items are stripped, affected sale
	// totals are recomputed and sales left empty are deleted too.
	Retire(ctx context.Context, id uuid.UUID, force bool) (*RetireResult, error)
}

type productService struct {
	productRepo repository.ProductRepository
	saleRepo    repository.SaleRepository
	clock       Clock
	logger      *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	productRepo repository.ProductRepository,
	saleRepo repository.SaleRepository,
	clock Clock,
	logger *zap.Logger,
) ProductService {
	if clock == nil {
		clock = time.Now
	}
	return &productService{
		productRepo: productRepo,
		saleRepo:    saleRepo,
		clock:       clock,
		logger:      logger,
	}
}

// Create adds a product to the catalog
func (s *productService) Create(ctx context.Context, name string, unitPrice decimal.Decimal, stock int, createdBy string) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" || stock < 0 || unitPrice.IsNegative() {
		return nil, ErrInvalidInput
	}

	now := s.clock()
	product := &domain.Product{
		ID:        uuid.New(),
		Name:      name,
		UnitPrice: unitPrice.Round(2),
		Stock:     stock,
		Active:    true,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return product, nil
}

// Update modifies a product's catalog attributes
func (s *productService) Update(ctx context.Context, id uuid.UUID, name string, unitPrice decimal.Decimal, stock int, active bool) (*domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" || stock < 0 || unitPrice.IsNegative() {
		return nil, ErrInvalidInput
	}

	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	product.Name = name
	product.UnitPrice = unitPrice.Round(2)
	product.Stock = stock
	product.Active = active
	product.UpdatedAt = s.clock()

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return product, nil
}

// Get retrieves a product by ID
func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// List retrieves products with filtering and pagination
func (s *productService) List(ctx context.Context, filter repository.ProductFilter, page, pageSize int) ([]*domain.Product, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	products, total, err := s.productRepo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// Retire removes or deactivates a product while preserving the invariants
// of historical sales.
func (s *productService) Retire(ctx context.Context, id uuid.UUID, force bool) (*RetireResult, error) {
	result := &RetireResult{DeletedSaleIDs: []uuid.UUID{}}

	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			// Missing product maps to an all-false result; the transport
			// layer decides the status code.
			return result, nil
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	hasSales, err := s.saleRepo.ProductHasSales(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check product sales: %w", err)
	}
	result.HasSales = hasSales

	if hasSales && !force {
		product.Active = false
		product.UpdatedAt = s.clock()
		if err := s.productRepo.Update(ctx, product); err != nil {
			return nil, fmt.Errorf("failed to deactivate product: %w", err)
		}
		result.SetInactive = true

		s.logger.Info("Product soft-retired",
			zap.String("product_id", id.String()),
		)
		return result, nil
	}

	if hasSales {
		deleted, err := s.saleRepo.RemoveProductFromSales(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile sales: %w", err)
		}
		result.DeletedSaleIDs = deleted
	}

	if err := s.productRepo.Delete(ctx, id); err != nil {
		if !errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("failed to delete product: %w", err)
		}
	}
	result.Removed = true

	s.logger.Info("Product retired",
		zap.String("product_id", id.String()),
		zap.Bool("forced", force),
		zap.Int("deleted_sales", len(result.DeletedSaleIDs)),
	)

	return result, nil
}
