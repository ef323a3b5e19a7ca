package transport

import (
	"errors"
	"net/http"
	"time"

	"saleflow/internal/domain"
	"saleflow/internal/middleware"
	"saleflow/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchItemRequest represents one submitted purchase request item
type BatchItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Note      string    `json:"note" validate:"max=500"`
}

// CreateBatchRequest represents the batch submission payload
type CreateBatchRequest struct {
	Items []BatchItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ProcessRequest represents the admin decision payload
type ProcessRequest struct {
	Status  string `json:"status" validate:"required,oneof=Approved Rejected"`
	Message string `json:"message" validate:"max=500"`
}

// RequestResponse represents a purchase request returned to clients
type RequestResponse struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"product_id"`
	ProductName     string     `json:"product_name"`
	Quantity        int        `json:"quantity"`
	Note            string     `json:"note,omitempty"`
	Status          string     `json:"status"`
	ResponseMessage string     `json:"response_message,omitempty"`
	RequestedAt     time.Time  `json:"requested_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	SaleID          string     `json:"sale_id,omitempty"`
}

// BatchResponse carries the per-item outcome of a batch submission
type BatchResponse struct {
	Requests []RequestResponse    `json:"requests"`
	Errors   []service.BatchError `json:"errors"`
}

// RequestHandler handles HTTP requests for purchase request operations
type RequestHandler struct {
	requestService service.RequestService
	userService    service.UserService
	logger         *zap.Logger
}

// NewRequestHandler creates a new RequestHandler
func NewRequestHandler(requestService service.RequestService, userService service.UserService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		userService:    userService,
		logger:         logger,
	}
}

// RegisterRoutes registers all purchase request routes
func (h *RequestHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/requests", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/", h.CreateBatch)
		r.Get("/mine", h.ListMine)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", h.List)
			r.Post("/{id}/process", h.Process)
		})
	})
}

func requestResponse(request *domain.ProductRequest) RequestResponse {
	response := RequestResponse{
		ID:              request.ID.String(),
		ProductID:       request.ProductID.String(),
		ProductName:     request.ProductName,
		Quantity:        request.Quantity,
		Note:            request.Note,
		Status:          string(request.Status),
		ResponseMessage: request.ResponseMessage,
		RequestedAt:     request.RequestedAt,
		ProcessedAt:     request.ProcessedAt,
	}
	if request.SaleID != nil {
		response.SaleID = request.SaleID.String()
	}
	return response
}

// CreateBatch handles batch submission of purchase requests. Items are
// validated individually; valid ones become Pending requests and invalid
// ones come back in the errors list.
func (h *RequestHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Batch submission validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requesterID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	email := h.requesterEmail(r, requesterID)

	items := make([]service.BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.BatchItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Note:      item.Note,
		})
	}

	result, err := h.requestService.CreateBatch(r.Context(), requesterID, email, items)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to create purchase requests", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create purchase requests")
		return
	}

	response := BatchResponse{
		Requests: make([]RequestResponse, 0, len(result.Requests)),
		Errors:   result.Errors,
	}
	for _, request := range result.Requests {
		response.Requests = append(response.Requests, requestResponse(request))
	}

	h.logger.Info("Purchase requests submitted",
		zap.String("requester_id", requesterID),
		zap.Int("accepted", len(result.Requests)),
		zap.Int("rejected", len(result.Errors)),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, response)
}

// List handles listing all purchase requests
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	requests, err := h.requestService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list purchase requests", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list purchase requests")
		return
	}

	response := make([]RequestResponse, 0, len(requests))
	for _, request := range requests {
		response = append(response, requestResponse(request))
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// ListMine handles listing the caller's own purchase requests
func (h *RequestHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requests, err := h.requestService.ListByRequester(r.Context(), requesterID)
	if err != nil {
		h.logger.Error("Failed to list purchase requests", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list purchase requests")
		return
	}

	response := make([]RequestResponse, 0, len(requests))
	for _, request := range requests {
		response = append(response, requestResponse(request))
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Process handles the admin decision on a purchase request. Approving a
// request the stock cannot cover records it as Rejected instead; the
// response carries the final status either way.
func (h *RequestHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request ID")
		return
	}

	var req ProcessRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Process validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	processedBy, _ := middleware.GetUserID(r.Context())

	request, err := h.requestService.Process(r.Context(), id, domain.RequestStatus(req.Status), req.Message, processedBy)
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "purchase request not found")
			return
		}
		if errors.Is(err, service.ErrInvalidInput) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to process purchase request", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to process purchase request")
		return
	}

	h.logger.Info("Purchase request processed",
		zap.String("request_id", id.String()),
		zap.String("status", string(request.Status)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, requestResponse(request))
}

// requesterEmail resolves the caller's account email, falling back to
// empty when the lookup fails. The email is only used to link requests
// to a customer record at approval time.
func (h *RequestHandler) requesterEmail(r *http.Request, requesterID string) string {
	userID, err := uuid.Parse(requesterID)
	if err != nil {
		return ""
	}

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Debug("Failed to resolve requester email", zap.Error(err))
		return ""
	}

	return user.Email
}
