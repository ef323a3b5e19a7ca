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
	"go.uber.org/zap"
)

// CustomerService manages buyer records and resolves requesters to
// customers during approval.
type CustomerService interface {
	Create(ctx context.Context, fullName, email, phone, createdBy string) (*domain.Customer, error)
	Update(ctx context.Context, customer *domain.Customer) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	List(ctx context.Context, search string) ([]*domain.Customer, error)

	// ResolveRequester maps a requester to a customer record: by owning
	// user id first, then by normalized email within the processing
	// admin's tenant, and as a last resort by creating a new customer
	// named after the requester's email.
	ResolveRequester(ctx context.Context, requesterID, email, processedBy string) (*domain.Customer, error)
}

type customerService struct {
	customerRepo repository.CustomerRepository
	clock        Clock
	logger       *zap.Logger
}

// NewCustomerService creates a new instance of CustomerService
func NewCustomerService(customerRepo repository.CustomerRepository, clock Clock, logger *zap.Logger) CustomerService {
	if clock == nil {
		clock = time.Now
	}
	return &customerService{
		customerRepo: customerRepo,
		clock:        clock,
		logger:       logger,
	}
}

// Create adds a new customer record
func (s *customerService) Create(ctx context.Context, fullName, email, phone, createdBy string) (*domain.Customer, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ErrInvalidInput
	}

	customer := &domain.Customer{
		ID:        uuid.New(),
		FullName:  fullName,
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		CreatedBy: createdBy,
		CreatedAt: s.clock(),
	}

	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	return customer, nil
}

// Update modifies an existing customer record
func (s *customerService) Update(ctx context.Context, customer *domain.Customer) error {
	customer.FullName = strings.TrimSpace(customer.FullName)
	if customer.FullName == "" {
		return ErrInvalidInput
	}

	if err := s.customerRepo.Update(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}

	return nil
}

// Delete removes a customer record
func (s *customerService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.customerRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	return nil
}

// Get retrieves a customer by ID
func (s *customerService) Get(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	customer, err := s.customerRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return customer, nil
}

// List retrieves customers with an optional search term
func (s *customerService) List(ctx context.Context, search string) ([]*domain.Customer, error) {
	customers, err := s.customerRepo.List(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

// ResolveRequester finds the customer to attribute an approved request to.
// Precedence when several tenants share an email is an implementation
// choice here: the requester's own record wins, then the processing
// admin's tenant-scoped email match.
func (s *customerService) ResolveRequester(ctx context.Context, requesterID, email, processedBy string) (*domain.Customer, error) {
	customer, err := s.customerRepo.FindByOwner(ctx, requesterID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, fmt.Errorf("failed to resolve customer by owner: %w", err)
	}

	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized != "" {
		customer, err = s.customerRepo.FindByEmail(ctx, normalized, processedBy)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, fmt.Errorf("failed to resolve customer by email: %w", err)
		}
	}

	name := normalized
	if name == "" {
		name = requesterID
	}

	customer = &domain.Customer{
		ID:        uuid.New(),
		FullName:  name,
		Email:     normalized,
		CreatedBy: processedBy,
		CreatedAt: s.clock(),
	}

	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer for requester: %w", err)
	}

	s.logger.Info("Customer created for requester",
		zap.String("customer_id", customer.ID.String()),
		zap.String("requester_id", requesterID),
	)

	return customer, nil
}
