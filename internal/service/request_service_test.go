package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"saleflow/internal/domain"

	"github.com/google/uuid"
)

type requestFixture struct {
	productRepo  *mockProductRepository
	customerRepo *mockCustomerRepository
	saleRepo     *mockSaleRepository
	requestRepo  *mockRequestRepository
	sender       *mockSender
	renderer     *mockRenderer
	service      RequestService
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()

	productRepo := newMockProductRepository()
	customerRepo := newMockCustomerRepository()
	saleRepo := newMockSaleRepository()
	saleRepo.products = productRepo
	requestRepo := newMockRequestRepository()
	sender := &mockSender{}
	renderer := &mockRenderer{}

	clock := fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := testLogger()

	inventory := NewInventoryService(productRepo, logger)
	customers := NewCustomerService(customerRepo, clock, logger)
	sales := NewSaleService(saleRepo, customerRepo, productRepo, inventory, sender, clock, logger)
	requests := NewRequestService(
		requestRepo,
		productRepo,
		saleRepo,
		customers,
		sales,
		renderer,
		sender,
		clock,
		logger,
	)

	return &requestFixture{
		productRepo:  productRepo,
		customerRepo: customerRepo,
		saleRepo:     saleRepo,
		requestRepo:  requestRepo,
		sender:       sender,
		renderer:     renderer,
		service:      requests,
	}
}

func (f *requestFixture) seedProduct(t *testing.T, name, price string, stock int) *domain.Product {
	t.Helper()
	product := newTestProduct(stock)
	product.Name = name
	product.UnitPrice = mustDecimal(price)
	f.productRepo.add(product)
	return product
}

func (f *requestFixture) submit(t *testing.T, requesterID string, productID uuid.UUID, qty int) *domain.ProductRequest {
	t.Helper()
	result, err := f.service.CreateBatch(context.Background(), requesterID, requesterID+"@example.com", []BatchItem{
		{ProductID: productID, Quantity: qty},
	})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if len(result.Requests) != 1 {
		t.Fatalf("Expected one request, got %d (errors: %v)", len(result.Requests), result.Errors)
	}
	return result.Requests[0]
}

func TestCreateBatch_ValidItemsBecomePending(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)

	request := f.submit(t, "client-1", product.ID, 2)

	if request.Status != domain.RequestStatusPending {
		t.Errorf("Expected Pending status, got %s", request.Status)
	}
	if request.ProductName != "Coffee Beans" {
		t.Errorf("Expected product name snapshot, got %q", request.ProductName)
	}

	// Submission must not touch stock
	if stored := f.productRepo.get(product.ID); stored.Stock != 5 {
		t.Errorf("Submission must not reserve stock, got %d", stored.Stock)
	}
}

func TestCreateBatch_BadItemsReportedIndividually(t *testing.T) {
	f := newRequestFixture(t)
	available := f.seedProduct(t, "Available", "10.00", 5)
	drained := f.seedProduct(t, "Drained", "10.00", 0)
	missing := uuid.New()

	result, err := f.service.CreateBatch(context.Background(), "client-1", "client-1@example.com", []BatchItem{
		{ProductID: available.ID, Quantity: 1},
		{ProductID: missing, Quantity: 1},
		{ProductID: drained.ID, Quantity: 1},
		{ProductID: uuid.Nil, Quantity: 1}, // dropped silently
		{ProductID: available.ID, Quantity: 0},
	})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	if len(result.Requests) != 1 {
		t.Errorf("Expected one accepted request, got %d", len(result.Requests))
	}
	if len(result.Errors) != 2 {
		t.Fatalf("Expected two item errors, got %d", len(result.Errors))
	}

	byProduct := map[uuid.UUID]string{}
	for _, e := range result.Errors {
		byProduct[e.ProductID] = e.Message
	}
	if byProduct[missing] != "product does not exist" {
		t.Errorf("Expected missing-product message, got %q", byProduct[missing])
	}
	if byProduct[drained.ID] != "product has no available stock" {
		t.Errorf("Expected no-stock message, got %q", byProduct[drained.ID])
	}
}

func TestProcess_ApprovalCreatesSaleAndCommitsStock(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 2)

	processed, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "enjoy", "admin-1")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if processed.Status != domain.RequestStatusApproved {
		t.Errorf("Expected Approved, got %s", processed.Status)
	}
	if processed.SaleID == nil {
		t.Fatal("Approval must link a sale")
	}
	if processed.ProcessedAt == nil || processed.ProcessedBy != "admin-1" {
		t.Error("Processing metadata missing")
	}

	sale, err := f.saleRepo.FindByID(context.Background(), *processed.SaleID)
	if err != nil {
		t.Fatalf("Linked sale not found: %v", err)
	}
	if !sale.Total.Equal(mustDecimal("20.00")) {
		t.Errorf("Expected sale total 20.00, got %s", sale.Total)
	}

	if stored := f.productRepo.get(product.ID); stored.Stock != 3 {
		t.Errorf("Expected stock 3 after approval, got %d", stored.Stock)
	}

	// A customer record was resolved for the requester under the
	// processing admin's tenant
	if _, err := f.customerRepo.FindByEmail(context.Background(), "client-1@example.com", "admin-1"); err != nil {
		t.Errorf("Expected a customer record for the requester: %v", err)
	}
}

func TestProcess_ApprovalWithoutStockDowngradesToRejected(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 3)

	// Stock drains between submission and approval
	other := f.submit(t, "client-2", product.ID, 3)
	if _, err := f.service.Process(context.Background(), other.ID, domain.RequestStatusApproved, "", "admin-1"); err != nil {
		t.Fatalf("First approval failed: %v", err)
	}

	processed, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "approved", "admin-1")
	if err != nil {
		t.Fatalf("Process returned an error instead of downgrading: %v", err)
	}

	if processed.Status != domain.RequestStatusRejected {
		t.Errorf("Expected downgrade to Rejected, got %s", processed.Status)
	}
	if processed.ResponseMessage != "insufficient stock" {
		t.Errorf("Expected insufficient stock message, got %q", processed.ResponseMessage)
	}
	if processed.SaleID != nil {
		t.Error("Downgraded request must not link a sale")
	}
	if processed.ProcessedAt == nil {
		t.Error("Downgraded request must record processing metadata")
	}

	if stored := f.productRepo.get(product.ID); stored.Stock != 2 {
		t.Errorf("Downgrade must not consume stock, got %d", stored.Stock)
	}
}

func TestProcess_RejectionAfterApprovalCompensates(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 2)

	approved, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "", "admin-1")
	if err != nil {
		t.Fatalf("Approval failed: %v", err)
	}
	saleID := *approved.SaleID

	rejected, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusRejected, "changed our mind", "admin-2")
	if err != nil {
		t.Fatalf("Rejection failed: %v", err)
	}

	if rejected.Status != domain.RequestStatusRejected {
		t.Errorf("Expected Rejected, got %s", rejected.Status)
	}
	if rejected.SaleID != nil {
		t.Error("Compensation must clear the sale link")
	}
	if rejected.ProcessedBy != "admin-2" {
		t.Errorf("Expected second processor recorded, got %q", rejected.ProcessedBy)
	}

	// The generated sale is gone and the stock flowed back
	if _, err := f.saleRepo.FindByID(context.Background(), saleID); err == nil {
		t.Error("Compensated sale should be deleted")
	}
	if stored := f.productRepo.get(product.ID); stored.Stock != 5 {
		t.Errorf("Expected stock back at 5, got %d", stored.Stock)
	}
}

func TestProcess_ReApprovingApprovedRequestIsIdempotent(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 2)

	first, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "", "admin-1")
	if err != nil {
		t.Fatalf("First approval failed: %v", err)
	}

	second, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "again", "admin-2")
	if err != nil {
		t.Fatalf("Second approval failed: %v", err)
	}

	if second.SaleID == nil || *second.SaleID != *first.SaleID {
		t.Error("Re-approval must keep the original sale link")
	}
	if len(f.saleRepo.sales) != 1 {
		t.Errorf("Re-approval must not create another sale, got %d", len(f.saleRepo.sales))
	}
	if stored := f.productRepo.get(product.ID); stored.Stock != 3 {
		t.Errorf("Re-approval must not reserve again, got stock %d", stored.Stock)
	}
	if second.ProcessedBy != "admin-2" {
		t.Errorf("Metadata should reflect the latest pass, got %q", second.ProcessedBy)
	}
}

func TestProcess_ReRejectingRejectedRequestSkipsRelease(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 2)

	if _, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusRejected, "no", "admin-1"); err != nil {
		t.Fatalf("First rejection failed: %v", err)
	}
	if _, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusRejected, "still no", "admin-1"); err != nil {
		t.Fatalf("Second rejection failed: %v", err)
	}

	// Stock never moved, so a double rejection must not inflate it
	if stored := f.productRepo.get(product.ID); stored.Stock != 5 {
		t.Errorf("Expected stock 5, got %d", stored.Stock)
	}
}

func TestProcess_ApproveRejectRoundTripRestoresBaseline(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 2)

	if _, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "", "admin-1"); err != nil {
		t.Fatalf("Approval failed: %v", err)
	}
	if _, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusRejected, "", "admin-1"); err != nil {
		t.Fatalf("Rejection failed: %v", err)
	}

	reloaded := f.productRepo.get(product.ID)
	if reloaded.Stock != 5 {
		t.Errorf("Round trip must restore stock to 5, got %d", reloaded.Stock)
	}
	if !reloaded.Active {
		t.Error("Round trip must leave the product active")
	}
	if len(f.saleRepo.sales) != 0 {
		t.Errorf("Round trip must leave no sales, got %d", len(f.saleRepo.sales))
	}
}

func TestProcess_FailedCompensationRetainsStockAndRetries(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 2)

	approved, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "", "admin-1")
	if err != nil {
		t.Fatalf("Approval failed: %v", err)
	}
	saleID := *approved.SaleID

	// The compensating transaction fails; nothing may be half-applied.
	f.saleRepo.failRestock = true
	if _, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusRejected, "no", "admin-2"); err == nil {
		t.Fatal("Expected rejection to fail when compensation cannot commit")
	}

	if _, err := f.saleRepo.FindByID(context.Background(), saleID); err != nil {
		t.Errorf("Failed compensation must keep the sale: %v", err)
	}
	if stored := f.productRepo.get(product.ID); stored.Stock != 3 {
		t.Errorf("Failed compensation must not move stock, got %d", stored.Stock)
	}
	reloaded, err := f.requestRepo.FindByID(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("Failed to reload request: %v", err)
	}
	if reloaded.SaleID == nil {
		t.Fatal("Failed compensation must keep the sale link so a retry can find it")
	}

	// The retry sees the intact sale link and completes the round trip.
	f.saleRepo.failRestock = false
	rejected, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusRejected, "no", "admin-2")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	if rejected.Status != domain.RequestStatusRejected {
		t.Errorf("Expected Rejected, got %s", rejected.Status)
	}
	if rejected.SaleID != nil {
		t.Error("Retry must clear the sale link")
	}
	if _, err := f.saleRepo.FindByID(context.Background(), saleID); err == nil {
		t.Error("Retry must delete the sale")
	}
	if stored := f.productRepo.get(product.ID); stored.Stock != 5 {
		t.Errorf("Expected stock back at 5 after retry, got %d", stored.Stock)
	}
}

func TestProcess_InvalidTargetStatusRejected(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 1)

	if _, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusPending, "", "admin-1"); err != ErrInvalidInput {
		t.Errorf("Expected ErrInvalidInput for Pending target, got %v", err)
	}
	if _, err := f.service.Process(context.Background(), uuid.New(), domain.RequestStatusApproved, "", "admin-1"); err != ErrRequestNotFound {
		t.Errorf("Expected ErrRequestNotFound, got %v", err)
	}
}

func TestProcess_ApprovalNotifiesWithReceipt(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 1)

	if _, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "", "admin-1"); err != nil {
		t.Fatalf("Approval failed: %v", err)
	}

	messages := f.sender.messages()
	// One sale confirmation plus one decision notification
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}

	var decision *sentMessage
	for i := range messages {
		if strings.Contains(messages[i].subject, "Request for") {
			decision = &messages[i]
		}
	}
	if decision == nil {
		t.Fatal("Decision notification missing")
	}
	if len(decision.attachments) != 1 {
		t.Fatalf("Expected receipt attachment, got %d attachments", len(decision.attachments))
	}
	if decision.attachments[0].ContentType != "application/pdf" {
		t.Errorf("Expected PDF attachment, got %s", decision.attachments[0].ContentType)
	}
}

func TestProcess_NotificationFailureDoesNotFailDecision(t *testing.T) {
	f := newRequestFixture(t)
	product := f.seedProduct(t, "Coffee Beans", "10.00", 5)
	request := f.submit(t, "client-1", product.ID, 1)
	f.sender.failSend = true
	f.renderer.failRender = true

	processed, err := f.service.Process(context.Background(), request.ID, domain.RequestStatusApproved, "", "admin-1")
	if err != nil {
		t.Fatalf("Decision must commit despite notification failure: %v", err)
	}
	if processed.Status != domain.RequestStatusApproved {
		t.Errorf("Expected Approved, got %s", processed.Status)
	}

	reloaded, err := f.requestRepo.FindByID(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("Failed to reload request: %v", err)
	}
	if reloaded.Status != domain.RequestStatusApproved {
		t.Errorf("Persisted status must be Approved, got %s", reloaded.Status)
	}
}
