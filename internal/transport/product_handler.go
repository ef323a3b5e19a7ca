package transport

import (
	"errors"
	"net/http"
	"strconv"

	"saleflow/internal/middleware"
	"saleflow/internal/repository"
	"saleflow/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateProductRequest represents the product creation payload
type CreateProductRequest struct {
	Name      string          `json:"name" validate:"required,min=2,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
	Stock     int             `json:"stock" validate:"gte=0"`
}

// UpdateProductRequest represents the product update payload
type UpdateProductRequest struct {
	Name      string          `json:"name" validate:"required,min=2,max=200"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
	Stock     int             `json:"stock" validate:"gte=0"`
	Active    bool            `json:"active"`
}

// ProductListResponse represents a paginated product listing
type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ProductResponse represents product data returned to clients
type ProductResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Stock     int    `json:"stock"`
	Active    bool   `json:"active"`
}

// RetireResponse reports what happened to a retired product
type RetireResponse struct {
	Removed        bool     `json:"removed"`
	SetInactive    bool     `json:"set_inactive"`
	HasSales       bool     `json:"has_sales"`
	DeletedSaleIDs []string `json:"deleted_sale_ids"`
}

// ProductHandler handles HTTP requests for catalog operations
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Retire)
		})
	})
}

// List handles product listing with filtering and pagination
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ProductFilter{
		Search:        q.Get("search"),
		OnlyAvailable: q.Get("only_available") == "true",
		SortBy:        repository.ProductSort(q.Get("sort_by")),
		SortDesc:      q.Get("sort_desc") == "true",
	}

	if raw := q.Get("min_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid min_price")
			return
		}
		filter.MinPrice = &price
	}
	if raw := q.Get("max_price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid max_price")
			return
		}
		filter.MaxPrice = &price
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	products, total, err := h.productService.List(r.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	response := ProductListResponse{
		Products: make([]ProductResponse, 0, len(products)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, p := range products {
		response.Products = append(response.Products, ProductResponse{
			ID:        p.ID.String(),
			Name:      p.Name,
			UnitPrice: p.UnitPrice.StringFixed(2),
			Stock:     p.Stock,
			Active:    p.Active,
		})
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Get handles fetching a single product
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.productService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Failed to get product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductResponse{
		ID:        product.ID.String(),
		Name:      product.Name,
		UnitPrice: product.UnitPrice.StringFixed(2),
		Stock:     product.Stock,
		Active:    product.Active,
	})
}

// Create handles product creation
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product creation validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	createdBy, _ := middleware.GetUserID(r.Context())

	product, err := h.productService.Create(r.Context(), req.Name, req.UnitPrice, req.Stock, createdBy)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to create product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	h.logger.Info("Product created", zap.String("product_id", product.ID.String()))
	middleware.RespondWithJSON(w, http.StatusCreated, ProductResponse{
		ID:        product.ID.String(),
		Name:      product.Name,
		UnitPrice: product.UnitPrice.StringFixed(2),
		Stock:     product.Stock,
		Active:    product.Active,
	})
}

// Update handles product updates
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product update validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.productService.Update(r.Context(), id, req.Name, req.UnitPrice, req.Stock, req.Active)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		if errors.Is(err, service.ErrInvalidInput) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to update product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ProductResponse{
		ID:        product.ID.String(),
		Name:      product.Name,
		UnitPrice: product.UnitPrice.StringFixed(2),
		Stock:     product.Stock,
		Active:    product.Active,
	})
}

// Retire handles product retirement. Products referenced by sales are
// deactivated unless force=true is passed, which strips them out of their
// sales instead.
func (h *ProductHandler) Retire(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	force := r.URL.Query().Get("force") == "true"

	result, err := h.productService.Retire(r.Context(), id, force)
	if err != nil {
		h.logger.Error("Failed to retire product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to retire product")
		return
	}

	// An all-false result means the product never existed
	if !result.Removed && !result.SetInactive && !result.HasSales {
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		return
	}

	response := RetireResponse{
		Removed:        result.Removed,
		SetInactive:    result.SetInactive,
		HasSales:       result.HasSales,
		DeletedSaleIDs: make([]string, 0, len(result.DeletedSaleIDs)),
	}
	for _, saleID := range result.DeletedSaleIDs {
		response.DeletedSaleIDs = append(response.DeletedSaleIDs, saleID.String())
	}

	h.logger.Info("Product retired",
		zap.String("product_id", id.String()),
		zap.Bool("force", force),
		zap.Bool("removed", result.Removed),
	)
	middleware.RespondWithJSON(w, http.StatusOK, response)
}
