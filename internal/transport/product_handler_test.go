package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"saleflow/internal/domain"
	"saleflow/internal/repository"
	"saleflow/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mock repositories for testing

type mockCatalogRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newMockCatalogRepository() *mockCatalogRepository {
	return &mockCatalogRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockCatalogRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *product
	m.products[product.ID] = &stored
	return nil
}

func (m *mockCatalogRepository) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.products[product.ID]; !exists {
		return repository.ErrProductNotFound
	}
	stored := *product
	m.products[product.ID] = &stored
	return nil
}

func (m *mockCatalogRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.products[id]; !exists {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockCatalogRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return nil, repository.ErrProductNotFound
	}
	found := *product
	return &found, nil
}

func (m *mockCatalogRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if product, exists := m.products[id]; exists {
			copied := *product
			found[id] = &copied
		}
	}
	return found, nil
}

func (m *mockCatalogRepository) List(ctx context.Context, filter repository.ProductFilter, page, pageSize int) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listed := make([]*domain.Product, 0, len(m.products))
	for _, product := range m.products {
		if filter.OnlyAvailable && (!product.Active || product.Stock == 0) {
			continue
		}
		copied := *product
		listed = append(listed, &copied)
	}
	return listed, len(listed), nil
}

func (m *mockCatalogRepository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return repository.ErrProductNotFound
	}
	if !product.Active {
		return repository.ErrProductInactive
	}
	if product.Stock < qty {
		return repository.ErrStockExhausted
	}
	product.Stock -= qty
	return nil
}

func (m *mockCatalogRepository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, exists := m.products[id]
	if !exists {
		return repository.ErrProductNotFound
	}
	product.Stock += qty
	product.Active = true
	return nil
}

func (m *mockCatalogRepository) DeactivateIfExhausted(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if product, exists := m.products[id]; exists && product.Stock == 0 {
		product.Active = false
	}
	return nil
}

type mockSaleLookupRepository struct {
	mu          sync.Mutex
	soldProduct map[uuid.UUID]bool
}

func newMockSaleLookupRepository() *mockSaleLookupRepository {
	return &mockSaleLookupRepository{soldProduct: make(map[uuid.UUID]bool)}
}

func (m *mockSaleLookupRepository) Create(ctx context.Context, sale *domain.Sale) error { return nil }

func (m *mockSaleLookupRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	return nil, repository.ErrSaleNotFound
}

func (m *mockSaleLookupRepository) List(ctx context.Context, from, to *time.Time) ([]*domain.Sale, error) {
	return nil, nil
}

func (m *mockSaleLookupRepository) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (m *mockSaleLookupRepository) DeleteWithRestock(ctx context.Context, id uuid.UUID, productID uuid.UUID, qty int) error {
	return nil
}

func (m *mockSaleLookupRepository) ProductHasSales(ctx context.Context, productID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.soldProduct[productID], nil
}

func (m *mockSaleLookupRepository) RemoveProductFromSales(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.soldProduct, productID)
	return nil, nil
}

type catalogFixture struct {
	productRepo *mockCatalogRepository
	saleRepo    *mockSaleLookupRepository
	router      chi.Router
}

func newCatalogFixture() *catalogFixture {
	productRepo := newMockCatalogRepository()
	saleRepo := newMockSaleLookupRepository()
	productService := service.NewProductService(productRepo, saleRepo, nil, zap.NewNop())
	handler := NewProductHandler(productService, zap.NewNop())

	passthrough := func(next http.Handler) http.Handler { return next }
	router := chi.NewRouter()
	handler.RegisterRoutes(router, passthrough, passthrough)

	return &catalogFixture{
		productRepo: productRepo,
		saleRepo:    saleRepo,
		router:      router,
	}
}

func (f *catalogFixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestProperty_CreatedProductsEchoTheirAttributes(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("creation returns 201 with the stored attributes", prop.ForAll(
		func(name string, priceCents int, stock int) bool {
			fixture := newCatalogFixture()
			price := decimal.NewFromInt(int64(priceCents)).Div(decimal.NewFromInt(100))

			w := fixture.do(t, "POST", "/api/products", map[string]interface{}{
				"name":       name,
				"unit_price": price.String(),
				"stock":      stock,
			})
			if w.Code != http.StatusCreated {
				return false
			}

			var response ProductResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}
			if _, err := uuid.Parse(response.ID); err != nil {
				return false
			}
			return response.Name == name &&
				response.UnitPrice == price.StringFixed(2) &&
				response.Stock == stock &&
				response.Active
		},
		gen.RegexMatch(`[A-Z][a-z]{2,15} [a-z]{2,10}`),
		gen.IntRange(1, 500000),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProductHandler_CreateRejectsShortNames(t *testing.T) {
	fixture := newCatalogFixture()

	w := fixture.do(t, "POST", "/api/products", map[string]interface{}{
		"name":       "x",
		"unit_price": "10.00",
		"stock":      5,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	var response struct {
		Error struct {
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if _, ok := response.Error.Details["validation_errors"]; !ok {
		t.Error("Expected validation_errors in the error details")
	}
}

func TestProductHandler_GetUnknownProductReturns404(t *testing.T) {
	fixture := newCatalogFixture()

	if w := fixture.do(t, "GET", "/api/products/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestProductHandler_InvalidIDReturns400(t *testing.T) {
	fixture := newCatalogFixture()

	if w := fixture.do(t, "GET", "/api/products/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestProductHandler_RetireWithSalesDeactivates(t *testing.T) {
	fixture := newCatalogFixture()

	product := &domain.Product{
		ID:        uuid.New(),
		Name:      "Referenced Product",
		UnitPrice: decimal.RequireFromString("12.00"),
		Stock:     3,
		Active:    true,
	}
	fixture.productRepo.Create(context.Background(), product)
	fixture.saleRepo.soldProduct[product.ID] = true

	w := fixture.do(t, "DELETE", "/api/products/"+product.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var response RetireResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Removed {
		t.Error("Product with sales should not be removed without force")
	}
	if !response.SetInactive || !response.HasSales {
		t.Errorf("Expected deactivation of a referenced product, got %+v", response)
	}

	stored, err := fixture.productRepo.FindByID(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("Product should still exist: %v", err)
	}
	if stored.Active {
		t.Error("Product should be inactive after soft retirement")
	}
}

func TestProductHandler_RetireWithoutSalesDeletes(t *testing.T) {
	fixture := newCatalogFixture()

	product := &domain.Product{
		ID:        uuid.New(),
		Name:      "Unreferenced Product",
		UnitPrice: decimal.RequireFromString("8.00"),
		Stock:     1,
		Active:    true,
	}
	fixture.productRepo.Create(context.Background(), product)

	w := fixture.do(t, "DELETE", "/api/products/"+product.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var response RetireResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !response.Removed || response.SetInactive {
		t.Errorf("Expected outright removal, got %+v", response)
	}
	if _, err := fixture.productRepo.FindByID(context.Background(), product.ID); err == nil {
		t.Error("Product should be gone after retirement")
	}
}

func TestProductHandler_RetireUnknownProductReturns404(t *testing.T) {
	fixture := newCatalogFixture()

	w := fixture.do(t, "DELETE", "/api/products/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown product, got %d", w.Code)
	}
}
