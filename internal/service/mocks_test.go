package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"saleflow/internal/domain"
	"saleflow/internal/notify"
	"saleflow/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mock repositories for testing. The product mock mirrors the guarded
// UPDATE semantics of the real repository so concurrency tests observe the
// same compare-and-decrement behavior.

type mockProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{
		products: make(map[uuid.UUID]*domain.Product),
	}
}

func (m *mockProductRepository) add(product *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *product
	m.products[product.ID] = &copied
}

func (m *mockProductRepository) get(id uuid.UUID) *domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return nil
	}
	copied := *product
	return &copied
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.add(product)
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	copied := *product
	m.products[product.ID] = &copied
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product := m.get(id)
	if product == nil {
		return nil, repository.ErrProductNotFound
	}
	return product, nil
}

func (m *mockProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[uuid.UUID]*domain.Product)
	for _, id := range ids {
		if product, ok := m.products[id]; ok {
			copied := *product
			found[id] = &copied
		}
	}
	return found, nil
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter, page, pageSize int) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := []*domain.Product{}
	for _, product := range m.products {
		copied := *product
		products = append(products, &copied)
	}
	return products, len(products), nil
}

func (m *mockProductRepository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
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

func (m *mockProductRepository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	product.Stock += qty
	product.Active = true
	return nil
}

func (m *mockProductRepository) DeactivateIfExhausted(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	if product.Stock == 0 {
		product.Active = false
	}
	return nil
}

type mockCustomerRepository struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*domain.Customer
}

func newMockCustomerRepository() *mockCustomerRepository {
	return &mockCustomerRepository{
		customers: make(map[uuid.UUID]*domain.Customer),
	}
}

func (m *mockCustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *customer
	m.customers[customer.ID] = &copied
	return nil
}

func (m *mockCustomerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[customer.ID]; !ok {
		return repository.ErrCustomerNotFound
	}
	copied := *customer
	m.customers[customer.ID] = &copied
	return nil
}

func (m *mockCustomerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[id]; !ok {
		return repository.ErrCustomerNotFound
	}
	delete(m.customers, id)
	return nil
}

func (m *mockCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer, ok := m.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	copied := *customer
	return &copied, nil
}

func (m *mockCustomerRepository) FindByOwner(ctx context.Context, ownerID string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, customer := range m.customers {
		if customer.CreatedBy == ownerID {
			copied := *customer
			return &copied, nil
		}
	}
	return nil, repository.ErrCustomerNotFound
}

func (m *mockCustomerRepository) FindByEmail(ctx context.Context, email, createdBy string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, customer := range m.customers {
		if strings.EqualFold(customer.Email, email) && customer.CreatedBy == createdBy {
			copied := *customer
			return &copied, nil
		}
	}
	return nil, repository.ErrCustomerNotFound
}

func (m *mockCustomerRepository) List(ctx context.Context, search string) ([]*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customers := []*domain.Customer{}
	for _, customer := range m.customers {
		copied := *customer
		customers = append(customers, &copied)
	}
	return customers, nil
}

type mockSaleRepository struct {
	mu          sync.Mutex
	sales       map[uuid.UUID]*domain.Sale
	products    *mockProductRepository
	failCreate  bool
	failRestock bool
}

func newMockSaleRepository() *mockSaleRepository {
	return &mockSaleRepository{
		sales: make(map[uuid.UUID]*domain.Sale),
	}
}

func (m *mockSaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return errors.New("simulated persistence failure")
	}
	m.sales[sale.ID] = sale
	return nil
}

func (m *mockSaleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	return sale, nil
}

func (m *mockSaleRepository) List(ctx context.Context, from, to *time.Time) ([]*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sales := []*domain.Sale{}
	for _, sale := range m.sales {
		if from != nil && sale.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && sale.CreatedAt.After(*to) {
			continue
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (m *mockSaleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sales[id]; !ok {
		return repository.ErrSaleNotFound
	}
	delete(m.sales, id)
	return nil
}

func (m *mockSaleRepository) DeleteWithRestock(ctx context.Context, id uuid.UUID, productID uuid.UUID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sales[id]; !ok {
		return repository.ErrSaleNotFound
	}
	// An injected failure leaves both the sale and the stock untouched,
	// mirroring the rollback of the real transaction.
	if m.failRestock {
		return errors.New("simulated transaction failure")
	}
	delete(m.sales, id)
	if m.products != nil {
		if err := m.products.IncrementStock(ctx, productID, qty); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSaleRepository) ProductHasSales(ctx context.Context, productID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sale := range m.sales {
		for _, item := range sale.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockSaleRepository) RemoveProductFromSales(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := []uuid.UUID{}
	for id, sale := range m.sales {
		kept := []*domain.SaleItem{}
		touched := false
		for _, item := range sale.Items {
			if item.ProductID == productID {
				touched = true
				continue
			}
			kept = append(kept, item)
		}
		if !touched {
			continue
		}
		if len(kept) == 0 {
			delete(m.sales, id)
			deleted = append(deleted, id)
			continue
		}
		sale.Items = kept
		total := decimal.Zero
		for _, item := range kept {
			total = total.Add(item.Subtotal)
		}
		sale.Total = total
	}
	return deleted, nil
}

type mockRequestRepository struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*domain.ProductRequest
}

func newMockRequestRepository() *mockRequestRepository {
	return &mockRequestRepository{
		requests: make(map[uuid.UUID]*domain.ProductRequest),
	}
}

func (m *mockRequestRepository) Create(ctx context.Context, request *domain.ProductRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *request
	m.requests[request.ID] = &copied
	return nil
}

func (m *mockRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	copied := *request
	return &copied, nil
}

func (m *mockRequestRepository) List(ctx context.Context) ([]*domain.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	requests := []*domain.ProductRequest{}
	for _, request := range m.requests {
		copied := *request
		requests = append(requests, &copied)
	}
	return requests, nil
}

func (m *mockRequestRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	requests := []*domain.ProductRequest{}
	for _, request := range m.requests {
		if request.RequestedBy == requesterID {
			copied := *request
			requests = append(requests, &copied)
		}
	}
	return requests, nil
}

func (m *mockRequestRepository) UpdateOutcome(ctx context.Context, request *domain.ProductRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[request.ID]; !ok {
		return repository.ErrRequestNotFound
	}
	copied := *request
	m.requests[request.ID] = &copied
	return nil
}

// mockSender records outgoing messages and can be told to fail.
type mockSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	failSend bool
}

type sentMessage struct {
	to          string
	subject     string
	body        string
	attachments []notify.Attachment
}

func (m *mockSender) Send(ctx context.Context, to, subject, htmlBody string, attachments ...notify.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errors.New("simulated delivery failure")
	}
	m.sent = append(m.sent, sentMessage{to: to, subject: subject, body: htmlBody, attachments: attachments})
	return nil
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage{}, m.sent...)
}

// mockRenderer returns a fixed payload instead of a real PDF.
type mockRenderer struct {
	failRender bool
}

func (m *mockRenderer) RenderReceipt(sale *domain.Sale, customer *domain.Customer) ([]byte, error) {
	if m.failRender {
		return nil, errors.New("simulated render failure")
	}
	return []byte("receipt:" + sale.ID.String()), nil
}

func mustDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
