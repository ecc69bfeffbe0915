package transaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Transaction, error)

	// UpdateStatus applies res only while the transaction is still pending and
	// returns ErrAlreadyResolved otherwise. It is a single conditional write.
	UpdateStatus(ctx context.Context, id uuid.UUID, res Resolution) error

	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	PhoneNumber       string
	Amount            decimal.Decimal
	UserID            *string
	CheckoutRequestID string
	MerchantRequestID string
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type ListFilter struct {
	Status *Status
	UserID *string
	Limit  int
}

// Create records a pending transaction for an acknowledged push request.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Transaction, error) {
	if strings.TrimSpace(params.CheckoutRequestID) == "" {
		return nil, fmt.Errorf("creating transaction: checkout request id is required")
	}

	tx := &Transaction{
		PhoneNumber:       params.PhoneNumber,
		Amount:            params.Amount,
		UserID:            params.UserID,
		Status:            StatusPending,
		CheckoutRequestID: params.CheckoutRequestID,
		MerchantRequestID: params.MerchantRequestID,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	return tx, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Transaction, error) {
	return s.repo.FindByCheckoutRequestID(ctx, checkoutRequestID)
}

// Resolve moves a pending transaction to a terminal status exactly once.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, res Resolution) error {
	if !res.Status.IsTerminal() {
		return fmt.Errorf("%w: pending -> %s", ErrInvalidTransition, res.Status)
	}

	return s.repo.UpdateStatus(ctx, id, res)
}

// List returns the newest transactions first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}

	return s.repo.ListTransactions(ctx, filter)
}
