package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"saleflow/internal/config"
	custommiddleware "saleflow/internal/middleware"
	"saleflow/internal/notify"
	"saleflow/internal/receipt"
	"saleflow/internal/repository"
	"saleflow/internal/service"
	"saleflow/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env == "development"))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Rate limiting requires Redis; skip it when none is configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		router.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: 100,
			Window:            time.Minute,
			KeyPrefix:         "saleflow:ratelimit",
		}, logger))
	}

	// Receipt emails go out only when SMTP is configured
	var sender notify.Sender
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		sender = notify.NewNoopSender(logger)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	productRepo := repository.NewProductRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	requestRepo := repository.NewRequestRepository(db)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT.Secret)
	inventoryService := service.NewInventoryService(productRepo, logger)
	productService := service.NewProductService(productRepo, saleRepo, nil, logger)
	customerService := service.NewCustomerService(customerRepo, nil, logger)
	saleService := service.NewSaleService(saleRepo, customerRepo, productRepo, inventoryService, sender, nil, logger)
	requestService := service.NewRequestService(
		requestRepo,
		productRepo,
		saleRepo,
		customerService,
		saleService,
		receipt.NewPDFRenderer(),
		sender,
		nil,
		logger,
	)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	productHandler := transport.NewProductHandler(productService, logger)
	customerHandler := transport.NewCustomerHandler(customerService, logger)
	saleHandler := transport.NewSaleHandler(saleService, logger)
	requestHandler := transport.NewRequestHandler(requestService, userService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminOnly := custommiddleware.RequireAdmin(logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware)
	productHandler.RegisterRoutes(router, authMiddleware, adminOnly)
	customerHandler.RegisterRoutes(router, authMiddleware, adminOnly)
	saleHandler.RegisterRoutes(router, authMiddleware, adminOnly)
	requestHandler.RegisterRoutes(router, authMiddleware, adminOnly)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	return server
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
