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

// SaleLineRequest represents one requested line of a sale
type SaleLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// CreateSaleRequest represents the sale creation payload
type CreateSaleRequest struct {
	CustomerID uuid.UUID         `json:"customer_id" validate:"required"`
	Lines      []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// SaleItemResponse represents one line of a recorded sale
type SaleItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

// SaleResponse represents a recorded sale
type SaleResponse struct {
	ID           string             `json:"id"`
	CustomerID   string             `json:"customer_id"`
	CustomerName string             `json:"customer_name"`
	Total        string             `json:"total"`
	CreatedAt    time.Time          `json:"created_at"`
	Items        []SaleItemResponse `json:"items"`
}

// SaleHandler handles HTTP requests for sale operations
type SaleHandler struct {
	saleService service.SaleService
	logger      *zap.Logger
}

// NewSaleHandler creates a new SaleHandler
func NewSaleHandler(saleService service.SaleService, logger *zap.Logger) *SaleHandler {
	return &SaleHandler{
		saleService: saleService,
		logger:      logger,
	}
}

// RegisterRoutes registers all sale routes
func (h *SaleHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/sales", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminOnly)

		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/", h.Create)
	})
}

func saleResponse(sale *domain.Sale) SaleResponse {
	response := SaleResponse{
		ID:           sale.ID.String(),
		CustomerID:   sale.CustomerID.String(),
		CustomerName: sale.CustomerName,
		Total:        sale.Total.StringFixed(2),
		CreatedAt:    sale.CreatedAt,
		Items:        make([]SaleItemResponse, 0, len(sale.Items)),
	}
	for _, item := range sale.Items {
		response.Items = append(response.Items, SaleItemResponse{
			ProductID:   item.ProductID.String(),
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Subtotal:    item.Subtotal.StringFixed(2),
		})
	}
	return response
}

// Create handles sale creation. Stock for every line is committed
// atomically; any line that cannot be covered fails the whole sale.
func (h *SaleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Sale creation validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	createdBy, _ := middleware.GetUserID(r.Context())

	lines := make([]service.SaleLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, service.SaleLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	sale, err := h.saleService.CreateSale(r.Context(), req.CustomerID, lines, createdBy)
	if err != nil {
		var stockErr *service.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			middleware.RespondWithError(w, http.StatusConflict, stockErr.Error())
		case errors.Is(err, service.ErrCustomerNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "customer not found")
		case errors.Is(err, service.ErrProductsNotFound):
			middleware.RespondWithError(w, http.StatusUnprocessableEntity, "one or more products do not exist")
		case errors.Is(err, service.ErrInvalidInput):
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("Failed to create sale", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create sale")
		}
		return
	}

	h.logger.Info("Sale created",
		zap.String("sale_id", sale.ID.String()),
		zap.Int("items", len(sale.Items)),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, saleResponse(sale))
}

// Get handles fetching a single sale with its items
func (h *SaleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sale ID")
		return
	}

	sale, err := h.saleService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "sale not found")
			return
		}
		h.logger.Error("Failed to get sale", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get sale")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, saleResponse(sale))
}

// List handles sale listing with an optional date window
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var from, to *time.Time
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = &t
	}

	sales, err := h.saleService.List(r.Context(), from, to)
	if err != nil {
		h.logger.Error("Failed to list sales", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list sales")
		return
	}

	response := make([]SaleResponse, 0, len(sales))
	for _, sale := range sales {
		response = append(response, saleResponse(sale))
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}
