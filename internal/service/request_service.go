package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saleflow/internal/domain"
	"saleflow/internal/notify"
	"saleflow/internal/receipt"
	"saleflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRequestNotFound = errors.New("product request not found")
)

const insufficientStockMessage = "insufficient stock"

// BatchItem is one line of a request submission.
type BatchItem struct {
	ProductID uuid.UUID
	Quantity  int
	Note      string
}

// BatchError reports why one submitted item could not become a request.
type BatchError struct {
	ProductID uuid.UUID `json:"product_id"`
	Message   string    `json:"message"`
}

// BatchResult carries the per-item outcome of a submission: which items
// became Pending requests and which failed, with the reason. One bad item
// never fails the whole batch.
type BatchResult struct {
	Requests []*domain.ProductRequest `json:"requests"`
	Errors   []BatchError             `json:"errors"`
}

// RequestService owns the purchase request lifecycle: Pending at creation,
// moved to Approved or Rejected by an admin. Requests never touch inventory
// at creation time; stock is committed only at the single point where an
// admin approves, and the same compensation path that serves rejection also
// serves an approve-then-reject correction.
type RequestService interface {
	CreateBatch(ctx context.Context, requesterID, email string, items []BatchItem) (*BatchResult, error)
	Process(ctx context.Context, requestID uuid.UUID, desired domain.RequestStatus, message, processedBy string) (*domain.ProductRequest, error)
	List(ctx context.Context) ([]*domain.ProductRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*domain.ProductRequest, error)
}

type requestService struct {
	requestRepo repository.RequestRepository
	productRepo repository.ProductRepository
	saleRepo    repository.SaleRepository
	customers   CustomerService
	sales       SaleService
	renderer    receipt.Renderer
	sender      notify.Sender
	clock       Clock
	logger      *zap.Logger
}

// NewRequestService creates a new instance of RequestService
func NewRequestService(
	requestRepo repository.RequestRepository,
	productRepo repository.ProductRepository,
	saleRepo repository.SaleRepository,
	customers CustomerService,
	sales SaleService,
	renderer receipt.Renderer,
	sender notify.Sender,
	clock Clock,
	logger *zap.Logger,
) RequestService {
	if clock == nil {
		clock = time.Now
	}
	return &requestService{
		requestRepo: requestRepo,
		productRepo: productRepo,
		saleRepo:    saleRepo,
		customers:   customers,
		sales:       sales,
		renderer:    renderer,
		sender:      sender,
		clock:       clock,
		logger:      logger,
	}
}

// CreateBatch turns a submission into Pending requests, one per valid item.
// Invalid items are reported individually; no stock is touched here.
func (s *requestService) CreateBatch(ctx context.Context, requesterID, email string, items []BatchItem) (*BatchResult, error) {
	result := &BatchResult{Requests: []*domain.ProductRequest{}, Errors: []BatchError{}}

	sanitized := []BatchItem{}
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 {
			continue
		}
		sanitized = append(sanitized, item)
	}
	if len(sanitized) == 0 {
		return result, nil
	}

	ids := []uuid.UUID{}
	seen := map[uuid.UUID]bool{}
	for _, item := range sanitized {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve products: %w", err)
	}

	for _, item := range sanitized {
		product, ok := products[item.ProductID]
		if !ok {
			result.Errors = append(result.Errors, BatchError{
				ProductID: item.ProductID,
				Message:   "product does not exist",
			})
			continue
		}

		if !product.Sellable() {
			result.Errors = append(result.Errors, BatchError{
				ProductID: item.ProductID,
				Message:   "product has no available stock",
			})
			continue
		}

		request := &domain.ProductRequest{
			ID:             uuid.New(),
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       item.Quantity,
			Note:           item.Note,
			RequestedBy:    requesterID,
			RequestedEmail: strings.TrimSpace(email),
			RequestedAt:    s.clock(),
			Status:         domain.RequestStatusPending,
		}

		if err := s.requestRepo.Create(ctx, request); err != nil {
			return nil, fmt.Errorf("failed to create product request: %w", err)
		}

		result.Requests = append(result.Requests, request)
	}

	s.logger.Info("Request batch submitted",
		zap.String("requester_id", requesterID),
		zap.Int("created", len(result.Requests)),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}

// Process moves a request to the desired terminal status and performs the
// inventory and sale effects of the transition. Re-processing an already
// terminal request is safe: approving an approved request touches metadata
// only, rejecting a rejected request skips the release.
func (s *requestService) Process(ctx context.Context, requestID uuid.UUID, desired domain.RequestStatus, message, processedBy string) (*domain.ProductRequest, error) {
	if desired != domain.RequestStatusApproved && desired != domain.RequestStatusRejected {
		return nil, ErrInvalidInput
	}

	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}

	status := desired
	responseMessage := message

	if desired == domain.RequestStatusApproved && request.SaleID == nil {
		sale, err := s.fulfill(ctx, request, processedBy)
		switch {
		case err == nil:
			request.SaleID = &sale.ID
		case isStockFailure(err):
			// The admin's approval intent cannot be honored silently;
			// downgrade to an explicit rejection with the reason recorded.
			status = domain.RequestStatusRejected
			responseMessage = insufficientStockMessage
			s.logger.Info("Approval downgraded to rejection",
				zap.String("request_id", request.ID.String()),
				zap.Error(err),
			)
		default:
			return nil, err
		}
	}

	if status == domain.RequestStatusRejected && request.SaleID != nil {
		if err := s.compensate(ctx, request); err != nil {
			return nil, err
		}
	}

	request.Status = status
	request.ResponseMessage = responseMessage
	now := s.clock()
	request.ProcessedAt = &now
	request.ProcessedBy = processedBy

	if err := s.requestRepo.UpdateOutcome(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to persist request outcome: %w", err)
	}

	s.logger.Info("Request processed",
		zap.String("request_id", request.ID.String()),
		zap.String("status", string(request.Status)),
		zap.String("processed_by", processedBy),
	)

	s.notify(ctx, request)

	return request, nil
}

// List retrieves every request, newest first
func (s *requestService) List(ctx context.Context) ([]*domain.ProductRequest, error) {
	requests, err := s.requestRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, nil
}

// ListByRequester retrieves one user's requests, newest first
func (s *requestService) ListByRequester(ctx context.Context, requesterID string) ([]*domain.ProductRequest, error) {
	requests, err := s.requestRepo.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, nil
}

// fulfill resolves the requester to a customer and commits the request as a
// single-line sale. The sale aggregator reserves the stock; its failure
// modes surface here for the downgrade decision.
func (s *requestService) fulfill(ctx context.Context, request *domain.ProductRequest, processedBy string) (*domain.Sale, error) {
	customer, err := s.customers.ResolveRequester(ctx, request.RequestedBy, request.RequestedEmail, processedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve requester: %w", err)
	}

	sale, err := s.sales.CreateSale(ctx, customer.ID, []SaleLine{{
		ProductID: request.ProductID,
		Quantity:  request.Quantity,
	}}, processedBy)
	if err != nil {
		return nil, err
	}

	return sale, nil
}

// compensate reverses a prior approval: the generated sale is removed and
// the committed stock flows back to the ledger, reactivating the product if
// it had been drained. Deletion and restock commit in one transaction, so a
// request still carrying a sale id is never a request whose stock was lost.
func (s *requestService) compensate(ctx context.Context, request *domain.ProductRequest) error {
	saleID := *request.SaleID

	err := s.saleRepo.DeleteWithRestock(ctx, saleID, request.ProductID, request.Quantity)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrSaleNotFound):
		// A previous attempt already committed the compensation.
		s.logger.Warn("Sale referenced by request was already gone",
			zap.String("request_id", request.ID.String()),
			zap.String("sale_id", saleID.String()),
		)
	default:
		return fmt.Errorf("failed to compensate sale %s: %w", saleID, err)
	}

	request.SaleID = nil
	return nil
}

// notify tells the requester about the decision. On approval the receipt is
// attached when it renders; any failure here is logged and swallowed.
func (s *requestService) notify(ctx context.Context, request *domain.ProductRequest) {
	if strings.TrimSpace(request.RequestedEmail) == "" {
		return
	}

	subject := fmt.Sprintf("Request for %s - %s", request.ProductName, request.Status)
	body := fmt.Sprintf("Hello,<br/>Your request for <strong>%s</strong> was marked as <strong>%s</strong>.",
		request.ProductName, request.Status)
	if strings.TrimSpace(request.ResponseMessage) != "" {
		body += fmt.Sprintf("<br/><em>Note:</em> %s", request.ResponseMessage)
	}

	attachments := []notify.Attachment{}
	if request.Status == domain.RequestStatusApproved && request.SaleID != nil {
		if content := s.renderReceipt(ctx, *request.SaleID); content != nil {
			attachments = append(attachments, notify.Attachment{
				Filename:    fmt.Sprintf("receipt-%s.pdf", request.SaleID.String()[:8]),
				ContentType: "application/pdf",
				Content:     content,
			})
		}
	}

	if err := s.sender.Send(ctx, request.RequestedEmail, subject, body, attachments...); err != nil {
		s.logger.Warn("Failed to notify requester",
			zap.String("request_id", request.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *requestService) renderReceipt(ctx context.Context, saleID uuid.UUID) []byte {
	sale, err := s.saleRepo.FindByID(ctx, saleID)
	if err != nil {
		s.logger.Warn("Failed to load sale for receipt", zap.String("sale_id", saleID.String()), zap.Error(err))
		return nil
	}

	customer, err := s.customers.Get(ctx, sale.CustomerID)
	if err != nil {
		s.logger.Warn("Failed to load customer for receipt", zap.String("sale_id", saleID.String()), zap.Error(err))
		return nil
	}

	content, err := s.renderer.RenderReceipt(sale, customer)
	if err != nil {
		s.logger.Warn("Failed to render receipt", zap.String("sale_id", saleID.String()), zap.Error(err))
		return nil
	}

	return content
}

// isStockFailure reports whether a sale creation error means the stock
// could not be committed, which is the downgrade trigger during approval.
func isStockFailure(err error) bool {
	var stockErr *InsufficientStockError
	return errors.As(err, &stockErr) || errors.Is(err, ErrProductInactive)
}
