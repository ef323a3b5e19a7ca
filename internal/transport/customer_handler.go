package transport

import (
	"errors"
	"net/http"
	"time"

	"saleflow/internal/middleware"
	"saleflow/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerRequest represents the customer create/update payload
type CustomerRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
}

// CustomerResponse represents customer data returned to clients
type CustomerResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerHandler handles HTTP requests for customer operations
type CustomerHandler struct {
	customerService service.CustomerService
	logger          *zap.Logger
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(customerService service.CustomerService, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{
		customerService: customerService,
		logger:          logger,
	}
}

// RegisterRoutes registers all customer routes
func (h *CustomerHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/customers", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminOnly)

		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// List handles customer listing with optional name search
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customerService.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.logger.Error("Failed to list customers", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}

	response := make([]CustomerResponse, 0, len(customers))
	for _, c := range customers {
		response = append(response, CustomerResponse{
			ID:        c.ID.String(),
			FullName:  c.FullName,
			Email:     c.Email,
			Phone:     c.Phone,
			CreatedAt: c.CreatedAt,
		})
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Get handles fetching a single customer
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid customer ID")
		return
	}

	customer, err := h.customerService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "customer not found")
			return
		}
		h.logger.Error("Failed to get customer", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get customer")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CustomerResponse{
		ID:        customer.ID.String(),
		FullName:  customer.FullName,
		Email:     customer.Email,
		Phone:     customer.Phone,
		CreatedAt: customer.CreatedAt,
	})
}

// Create handles customer creation
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Customer creation validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	createdBy, _ := middleware.GetUserID(r.Context())

	customer, err := h.customerService.Create(r.Context(), req.FullName, req.Email, req.Phone, createdBy)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to create customer", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create customer")
		return
	}

	h.logger.Info("Customer created", zap.String("customer_id", customer.ID.String()))
	middleware.RespondWithJSON(w, http.StatusCreated, CustomerResponse{
		ID:        customer.ID.String(),
		FullName:  customer.FullName,
		Email:     customer.Email,
		Phone:     customer.Phone,
		CreatedAt: customer.CreatedAt,
	})
}

// Update handles customer updates
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid customer ID")
		return
	}

	var req CustomerRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Customer update validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	customer, err := h.customerService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "customer not found")
			return
		}
		h.logger.Error("Failed to get customer", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update customer")
		return
	}

	customer.FullName = req.FullName
	customer.Email = req.Email
	customer.Phone = req.Phone

	if err := h.customerService.Update(r.Context(), customer); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to update customer", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update customer")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CustomerResponse{
		ID:        customer.ID.String(),
		FullName:  customer.FullName,
		Email:     customer.Email,
		Phone:     customer.Phone,
		CreatedAt: customer.CreatedAt,
	})
}

// Delete handles customer deletion
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid customer ID")
		return
	}

	if err := h.customerService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "customer not found")
			return
		}
		h.logger.Error("Failed to delete customer", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete customer")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "customer deleted"})
}
